package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/marketguard/pkg/http"
)

// HealthChecker reports the health of an optional dependency
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	StoreKind string `json:"storeKind"`
	Database  string `json:"database"`
	Time      string `json:"time"`
}

// HealthHandler reports the selected counter store and database state
type HealthHandler struct {
	storeKind string
	db        HealthChecker // nil when no database is configured
}

func NewHealthHandler(storeKind string, db HealthChecker) *HealthHandler {
	return &HealthHandler{storeKind: storeKind, db: db}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		StoreKind: h.storeKind,
		Database:  "disabled",
		Time:      time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}

	pkghttp.WriteJSON(w, status, resp)
}
