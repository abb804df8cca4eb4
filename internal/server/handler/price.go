package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantarc/oracled/internal/domain"
)

// OracleReader defines the methods the price and history handlers require
// from the service layer. It is declared locally so the handler package does
// not depend on the concrete service implementation.
type OracleReader interface {
	Latest(ctx context.Context, symbol string) (domain.ConsensusResult, error)
	LatestAll(ctx context.Context) (map[string]domain.ConsensusResult, error)
	History(ctx context.Context, symbol string, limit, offset int) ([]domain.ConsensusResult, int64, error)
}

// PriceHandler serves the latest-consensus endpoints.
type PriceHandler struct {
	oracle  OracleReader
	metrics domain.MetricsSink
	logger  *slog.Logger
}

// NewPriceHandler creates a PriceHandler with the given service and logger.
func NewPriceHandler(oracle OracleReader, metrics domain.MetricsSink, logger *slog.Logger) *PriceHandler {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &PriceHandler{
		oracle:  oracle,
		metrics: metrics,
		logger:  logger,
	}
}

// GetPrice returns the latest consensus round for one symbol.
// GET /api/price/{symbol}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	h.metrics.APIHit("price")

	symbol := pathParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	res, err := h.oracle.Latest(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) {
			writeError(w, http.StatusNotFound, "unknown symbol")
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no consensus yet")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get price failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get price")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// listPricesResponse wraps the list endpoint output.
type listPricesResponse struct {
	Prices map[string]domain.ConsensusResult `json:"prices"`
}

// ListPrices returns the latest consensus for every configured symbol.
// Symbols without a cached round yet are omitted.
// GET /api/prices
func (h *PriceHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	h.metrics.APIHit("prices")

	prices, err := h.oracle.LatestAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list prices failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list prices")
		return
	}

	writeJSON(w, http.StatusOK, listPricesResponse{Prices: prices})
}
