// Package httputil holds the response helpers shared by the portal's HTTP handlers.
package httputil

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xplorixa/portal/internal/apperrors"
)

// RespondError writes err as {"error": msg}, plus "fields" for validation errors.
// Server-side failures are logged with the request's route; their cause never reaches
// the client.
func RespondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	body := gin.H{"error": apperrors.PublicMessage(err)}

	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

// Page is a resolved page/limit pair.
type Page struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePage reads ?page and ?limit. Missing or non-positive values fall back to page 1 and
// defaultLimit; limit is capped at maxLimit. page is clamped so the offset never overflows.
func ParsePage(c *gin.Context, defaultLimit, maxLimit int) Page {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	if limit < 1 {
		limit = 1
	}
	if maxPage := math.MaxInt/limit + 1; page > maxPage {
		page = maxPage
	}
	return Page{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// UUIDParam returns the path parameter name in canonical UUID form. ok is false when it
// does not parse; every portal table is keyed by UUID, so such an ID matches no row.
func UUIDParam(c *gin.Context, name string) (id string, ok bool) {
	u, err := uuid.Parse(c.Param(name))
	if err != nil {
		return "", false
	}
	return u.String(), true
}
