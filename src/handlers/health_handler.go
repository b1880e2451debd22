// src/handlers/health_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/custoimport/src/database"
	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/logger"
)

type HealthHandler struct {
	tables *fiscal.Tables
}

func NewHealthHandler(tables *fiscal.Tables) *HealthHandler {
	return &HealthHandler{tables: tables}
}

type healthResponse struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	PackVersions map[string]string `json:"pacotes_fiscais"`
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "ok",
		Database:     "ok",
		PackVersions: h.tables.Versions(),
	}

	status := http.StatusOK
	if err := database.DB.Ping(); err != nil {
		logger.FromContext(r.Context()).Error("Health check: database ping failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
