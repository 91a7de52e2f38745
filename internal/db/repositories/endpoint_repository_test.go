package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/xplorixa/portal/internal/db/models"
)

var endpointCols = []string{"id", "name", "description", "target_url", "method", "category", "requires_auth", "created_at"}

func newEndpointRepo(t *testing.T) (*EndpointRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewEndpointRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestEndpointCreate(t *testing.T) {
	repo, mock := newEndpointRepo(t)
	mock.ExpectExec("INSERT INTO custom_endpoints").
		WillReturnResult(sqlmock.NewResult(1, 1))

	e := &models.CustomEndpoint{
		Name:         "Weather",
		TargetURL:    "https://api.example.com/weather",
		Method:       "GET",
		RequiresAuth: true,
	}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Errorf("server fields not assigned: %+v", e)
	}
}

func TestEndpointList(t *testing.T) {
	repo, mock := newEndpointRepo(t)
	mock.ExpectQuery("SELECT \\* FROM custom_endpoints ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(endpointCols).
			AddRow("e-2", "Stocks", "", "https://api.example.com/stocks", "POST", "finance", true, time.Now()).
			AddRow("e-1", "Weather", "", "https://api.example.com/weather", "GET", "", true, time.Now().Add(-time.Hour)))

	endpoints, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(endpoints) != 2 || endpoints[0].ID != "e-2" {
		t.Errorf("endpoints = %+v", endpoints)
	}
}

func TestEndpointGetByID_NotFound(t *testing.T) {
	repo, mock := newEndpointRepo(t)
	mock.ExpectQuery("SELECT \\* FROM custom_endpoints WHERE id").
		WillReturnRows(sqlmock.NewRows(endpointCols))

	e, err := repo.GetByID(context.Background(), "missing")
	if err != nil || e != nil {
		t.Fatalf("GetByID = %+v, %v; want nil, nil", e, err)
	}
}

func TestEndpointDelete(t *testing.T) {
	repo, mock := newEndpointRepo(t)
	mock.ExpectExec("DELETE FROM custom_endpoints").
		WithArgs("e-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Delete(context.Background(), "e-1")
	if err != nil || ok {
		t.Fatalf("Delete = %v, %v; want false, nil", ok, err)
	}
}
