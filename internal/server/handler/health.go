package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantarc/oracled/internal/domain"
	"github.com/quantarc/oracled/internal/service"
)

// HealthReader defines what the health handler needs from the service layer.
type HealthReader interface {
	Health(ctx context.Context, symbol string) (service.SymbolHealth, error)
	HealthAll(ctx context.Context) ([]service.SymbolHealth, error)
}

// HealthHandler serves the liveness and per-symbol freshness endpoints.
type HealthHandler struct {
	oracle HealthReader
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the given service and logger.
func NewHealthHandler(oracle HealthReader, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{oracle: oracle, logger: logger}
}

// HealthCheck responds with overall process liveness plus the freshness of
// every configured symbol.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.oracle.HealthAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: health check failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "health check failed")
		return
	}
	if symbols == nil {
		symbols = []service.SymbolHealth{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"symbols":   symbols,
	})
}

// SymbolHealth reports freshness for a single symbol.
// GET /api/health/{symbol}
func (h *HealthHandler) SymbolHealth(w http.ResponseWriter, r *http.Request) {
	symbol := pathParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	sh, err := h.oracle.Health(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) {
			writeError(w, http.StatusNotFound, "unknown symbol")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: symbol health failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "health check failed")
		return
	}

	status := http.StatusOK
	if sh.State != service.HealthHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, sh)
}
