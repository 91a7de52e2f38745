// endpoints.go manages the endpoint directory shown on the API docs page. Entries are
// documentation only; the portal never proxies to a target URL.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/xplorixa/portal/internal/api/httputil"
	"github.com/xplorixa/portal/internal/apperrors"
	"github.com/xplorixa/portal/internal/db/models"
	"github.com/xplorixa/portal/internal/middleware"
)

// DefaultEndpointCategory is used when an entry is created without a category.
const DefaultEndpointCategory = "General"

// EndpointStore is the endpoint repository surface the handlers need.
type EndpointStore interface {
	Create(ctx context.Context, e *models.CustomEndpoint) error
	List(ctx context.Context) ([]*models.CustomEndpoint, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// EndpointHandlers handles the endpoint directory
type EndpointHandlers struct {
	endpoints EndpointStore
}

// NewEndpointHandlers creates a new EndpointHandlers instance
func NewEndpointHandlers(endpoints EndpointStore) *EndpointHandlers {
	return &EndpointHandlers{endpoints: endpoints}
}

// CreateEndpointRequest is the body of POST /admin/endpoints.
type CreateEndpointRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	TargetURL   string `json:"targetUrl" validate:"required,http_url"`
	Method      string `json:"method" validate:"oneof=GET POST PUT DELETE PATCH"`
	Category    string `json:"category" validate:"max=100"`
}

var endpointValidate = newEndpointValidator()

func newEndpointValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

var endpointMessages = map[string]string{
	"name.required":      "Name is required",
	"name.max":           "Name must be at most 200 characters",
	"description.max":    "Description must be at most 2000 characters",
	"targetUrl.required": "Target URL is required",
	"targetUrl.http_url": "Target URL must be an absolute http or https URL",
	"method.oneof":       "Method must be one of " + strings.Join(models.EndpointMethods, ", "),
	"category.max":       "Category must be at most 100 characters",
}

// toEndpoint normalizes and validates req and builds the record to store.
func (req *CreateEndpointRequest) toEndpoint() (*models.CustomEndpoint, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.TargetURL = strings.TrimSpace(req.TargetURL)
	req.Method = strings.ToUpper(strings.TrimSpace(req.Method))
	req.Category = strings.TrimSpace(req.Category)

	if err := endpointValidate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		verr := apperrors.NewValidationError()
		for _, fe := range fieldErrs {
			msg, ok := endpointMessages[fe.Field()+"."+fe.Tag()]
			if !ok {
				msg = "Invalid value"
			}
			verr.Add(fe.Field(), msg)
		}
		return nil, verr
	}

	category := req.Category
	if category == "" {
		category = DefaultEndpointCategory
	}

	return &models.CustomEndpoint{
		Name:         req.Name,
		Description:  req.Description,
		TargetURL:    req.TargetURL,
		Method:       req.Method,
		Category:     category,
		RequiresAuth: true,
	}, nil
}

// @Summary      List directory endpoints
// @Tags         Endpoints
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "endpoints: []models.CustomEndpoint"
// @Router       /api/v1/admin/endpoints [get]
func (h *EndpointHandlers) ListEndpointsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.endpoints.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list endpoints", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list endpoints"})
			return
		}
		if list == nil {
			list = []*models.CustomEndpoint{}
		}
		c.JSON(http.StatusOK, gin.H{"endpoints": list})
	}
}

// @Summary      Add directory endpoint
// @Description  Registers an external endpoint for the docs page. requiresAuth is always true and the timestamp is set by the server.
// @Tags         Endpoints
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateEndpointRequest  true  "Endpoint"
// @Success      201  {object}  models.CustomEndpoint
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/v1/admin/endpoints [post]
func (h *EndpointHandlers) CreateEndpointHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEndpointRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		endpoint, err := req.toEndpoint()
		if err != nil {
			httputil.RespondError(c, err)
			return
		}

		if err := h.endpoints.Create(c.Request.Context(), endpoint); err != nil {
			slog.Error("failed to create endpoint", "name", endpoint.Name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create endpoint"})
			return
		}

		c.Set(middleware.AuditResourceIDKey, endpoint.ID)
		c.Set(middleware.AuditMetadataKey, map[string]any{"name": endpoint.Name, "method": endpoint.Method})
		c.JSON(http.StatusCreated, endpoint)
	}
}

// @Summary      Remove directory endpoint
// @Tags         Endpoints
// @Security     Bearer
// @Param        id  path  string  true  "Endpoint ID"
// @Success      204
// @Failure      404  {object}  map[string]interface{}  "Endpoint not found"
// @Router       /api/v1/admin/endpoints/{id} [delete]
func (h *EndpointHandlers) DeleteEndpointHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httputil.UUIDParam(c, "id")
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
			return
		}
		deleted, err := h.endpoints.Delete(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to delete endpoint", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete endpoint"})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
