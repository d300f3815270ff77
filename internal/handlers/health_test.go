package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/marketguard/internal/handlers"
)

type stubDB struct{ err error }

func (s stubDB) HealthCheck(context.Context) error { return s.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		db       handlers.HealthChecker
		status   int
		database string
	}{
		{"no database", nil, http.StatusOK, "disabled"},
		{"database ok", stubDB{}, http.StatusOK, "ok"},
		{"database down", stubDB{err: errors.New("timeout")}, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewHealthHandler("local", tt.db)
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest("GET", "/health", nil))

			var resp handlers.HealthResponse
			handlers.AssertJSONResponse(t, w, tt.status, &resp)
			assert.Equal(t, "local", resp.StoreKind)
			assert.Equal(t, tt.database, resp.Database)
		})
	}
}
