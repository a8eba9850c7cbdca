package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cliniq-dev/cliniq/backend/internal/service"
	"github.com/cliniq-dev/cliniq/shared/config"
	"github.com/cliniq-dev/cliniq/shared/logger"
)

// Pinger is anything the readiness probe should check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	auth    service.AuthService
	cfg     *config.Config
	storage Pinger
	cache   Pinger
}

func New(auth service.AuthService, cfg *config.Config, storage, cache Pinger) *Handler {
	return &Handler{auth: auth, cfg: cfg, storage: storage, cache: cache}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("failed to encode response", "error", err)
	}
}
