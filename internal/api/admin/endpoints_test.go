package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplorixa/portal/internal/db/models"
)

type memEndpoints struct {
	items []*models.CustomEndpoint
	// handedID records any ID the handler set before the store assigned one.
	handedID string
}

func (m *memEndpoints) Create(_ context.Context, e *models.CustomEndpoint) error {
	m.handedID = e.ID
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	m.items = append(m.items, e)
	return nil
}

func (m *memEndpoints) List(context.Context) ([]*models.CustomEndpoint, error) { return m.items, nil }

func (m *memEndpoints) Delete(_ context.Context, id string) (bool, error) {
	for i, e := range m.items {
		if e.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func TestCreateEndpoint(t *testing.T) {
	store := &memEndpoints{}
	h := NewEndpointHandlers(store)
	r := newAPIKeyRouter(&fakeIssuer{}, &fakeKeys{})
	r.POST("/endpoints", h.CreateEndpointHandler())

	w := do(r, http.MethodPost, "/endpoints",
		`{"name":" Weather ","targetUrl":"https://api.example.com/weather","method":"get","requiresAuth":false}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got models.CustomEndpoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Weather", got.Name)
	assert.Equal(t, "GET", got.Method)
	assert.Equal(t, DefaultEndpointCategory, got.Category)
	assert.True(t, got.RequiresAuth)
	assert.False(t, got.CreatedAt.IsZero())
	require.Len(t, store.items, 1)
	assert.Empty(t, store.handedID, "the store assigns the ID")
	assert.Equal(t, store.items[0].ID, got.ID)
}

func TestCreateEndpoint_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"blank name", `{"name":"  ","targetUrl":"https://x.io/a","method":"GET"}`, "name"},
		{"relative url", `{"name":"A","targetUrl":"/a","method":"GET"}`, "targetUrl"},
		{"ftp url", `{"name":"A","targetUrl":"ftp://x.io/a","method":"GET"}`, "targetUrl"},
		{"not a url", `{"name":"A","targetUrl":"hello","method":"GET"}`, "targetUrl"},
		{"schemeless url", `{"name":"A","targetUrl":"x.io/a","method":"GET"}`, "targetUrl"},
		{"missing url", `{"name":"A","method":"GET"}`, "targetUrl"},
		{"bad method", `{"name":"A","targetUrl":"https://x.io/a","method":"TRACE"}`, "method"},
		{"missing method", `{"name":"A","targetUrl":"https://x.io/a"}`, "method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memEndpoints{}
			h := NewEndpointHandlers(store)
			r := newAPIKeyRouter(&fakeIssuer{}, &fakeKeys{})
			r.POST("/endpoints", h.CreateEndpointHandler())

			w := do(r, http.MethodPost, "/endpoints", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp struct {
				Fields map[string]string `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Contains(t, resp.Fields, tt.field)
			assert.Empty(t, store.items)
		})
	}
}

func TestListAndDeleteEndpoints(t *testing.T) {
	const id = "5c1d2e3f-4a5b-4c6d-8e7f-901a2b3c4d5e"
	store := &memEndpoints{items: []*models.CustomEndpoint{{ID: id, Name: "A"}}}
	h := NewEndpointHandlers(store)
	r := newAPIKeyRouter(&fakeIssuer{}, &fakeKeys{})
	r.GET("/endpoints", h.ListEndpointsHandler())
	r.DELETE("/endpoints/:id", h.DeleteEndpointHandler())

	w := do(r, http.MethodGet, "/endpoints", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"`+id+`"`)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/endpoints/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/endpoints/"+id, "").Code)

	w = do(r, http.MethodGet, "/endpoints", "")
	assert.JSONEq(t, `{"endpoints":[]}`, w.Body.String())
}

func TestDeleteEndpoint_MalformedID(t *testing.T) {
	store := &memEndpoints{items: []*models.CustomEndpoint{{ID: "e1", Name: "A"}}}
	h := NewEndpointHandlers(store)
	r := newAPIKeyRouter(&fakeIssuer{}, &fakeKeys{})
	r.DELETE("/endpoints/:id", h.DeleteEndpointHandler())

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/endpoints/e1", "").Code)
	assert.Len(t, store.items, 1)
}
