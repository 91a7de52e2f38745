// Package docs builds the public API documentation served at /api/docs: the built-in
// gateway endpoints followed by the admin-managed endpoint directory.
package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xplorixa/portal/internal/auth"
	"github.com/xplorixa/portal/internal/db/models"
)

// EndpointLister lists the endpoint directory.
type EndpointLister interface {
	List(ctx context.Context) ([]*models.CustomEndpoint, error)
}

// Entry is one documented endpoint.
type Entry struct {
	Name        string          `json:"name"`
	Method      string          `json:"method"`
	URL         string          `json:"url"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Scope       models.Scope    `json:"scope,omitempty"`
	RateLimit   int             `json:"rateLimitPerMinute,omitempty"`
	Curl        string          `json:"curl"`
	Response    json.RawMessage `json:"sampleResponse,omitempty"`

	// BuiltIn is false for directory entries.
	BuiltIn bool `json:"builtIn"`

	// RequiresAuth is whether a caller must send the x-api-key header.
	RequiresAuth bool `json:"requiresAuth"`
}

// Catalog is the body of GET /api/docs.
type Catalog struct {
	AuthHeader string  `json:"authHeader"`
	Endpoints  []Entry `json:"endpoints"`
}

// Limits are the per-minute gateway rate limits shown next to each built-in route.
type Limits struct {
	Count int
	List  int
}

// Builder assembles the catalog.
type Builder struct {
	baseURL   string
	limits    Limits
	endpoints EndpointLister
}

// NewBuilder creates a Builder. baseURL is the public origin used in curl examples.
func NewBuilder(baseURL string, limits Limits, endpoints EndpointLister) *Builder {
	return &Builder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		limits:    limits,
		endpoints: endpoints,
	}
}

func (b *Builder) builtIn() []Entry {
	countScope, _ := auth.RequiredScope(http.MethodGet, "/api/users/count")
	listScope, _ := auth.RequiredScope(http.MethodGet, "/api/users/list")

	return []Entry{
		{
			Name:         "User count",
			Method:       http.MethodGet,
			URL:          b.baseURL + "/api/users/count",
			Description:  "Retrieve the total number of registered users in the system.",
			Category:     "Users",
			Scope:        countScope,
			RateLimit:    b.limits.Count,
			Curl:         curl(http.MethodGet, b.baseURL+"/api/users/count"),
			RequiresAuth: true,
			Response:     json.RawMessage(`{"count":1250,"timestamp":"2023-10-27T10:00:00Z"}`),
			BuiltIn:      true,
		},
		{
			Name:         "User list",
			Method:       http.MethodGet,
			URL:          b.baseURL + "/api/users/list",
			Description:  "Get a paginated list of users. Requires FULL_ACCESS scope.",
			Category:     "Users",
			Scope:        listScope,
			RateLimit:    b.limits.List,
			Curl:         curl(http.MethodGet, b.baseURL+"/api/users/list?page=1&limit=10"),
			RequiresAuth: true,
			Response:     json.RawMessage(`{"users":[],"page":1,"limit":10,"total":0}`),
			BuiltIn:      true,
		},
	}
}

func curl(method, url string) string {
	return fmt.Sprintf("curl -X %s %q \\\n  -H \"%s: YOUR_API_KEY\"", method, url, auth.APIKeyHeader)
}

// Build returns the built-in entries followed by the directory, newest first.
func (b *Builder) Build(ctx context.Context) (*Catalog, error) {
	entries := b.builtIn()

	custom, err := b.endpoints.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range custom {
		entries = append(entries, Entry{
			Name:         e.Name,
			Method:       e.Method,
			URL:          e.TargetURL,
			Description:  e.Description,
			Category:     e.Category,
			Curl:         curl(e.Method, e.TargetURL),
			RequiresAuth: e.RequiresAuth,
		})
	}

	return &Catalog{AuthHeader: auth.APIKeyHeader, Endpoints: entries}, nil
}

// @Summary      API documentation
// @Description  Lists the gateway endpoints and the endpoint directory with curl examples.
// @Tags         Docs
// @Produce      json
// @Success      200  {object}  Catalog
// @Router       /api/docs [get]
func (b *Builder) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		catalog, err := b.Build(c.Request.Context())
		if err != nil {
			slog.Error("failed to build api docs", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load documentation"})
			return
		}
		c.JSON(http.StatusOK, catalog)
	}
}
