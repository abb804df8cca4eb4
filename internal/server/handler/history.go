package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantarc/oracled/internal/domain"
)

// HistoryHandler serves the consensus round history endpoint.
type HistoryHandler struct {
	oracle  OracleReader
	metrics domain.MetricsSink
	logger  *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler with the given service and logger.
func NewHistoryHandler(oracle OracleReader, metrics domain.MetricsSink, logger *slog.Logger) *HistoryHandler {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &HistoryHandler{
		oracle:  oracle,
		metrics: metrics,
		logger:  logger,
	}
}

// listHistoryResponse wraps the history endpoint output with pagination
// echo and the total round count for the symbol.
type listHistoryResponse struct {
	Symbol string                   `json:"symbol"`
	Rounds []domain.ConsensusResult `json:"rounds"`
	Total  int64                    `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// ListHistory returns recent consensus rounds for a symbol, newest first.
// Failed rounds are included; clients filter on status.
// GET /api/history/{symbol}?limit=50&offset=0
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	h.metrics.APIHit("history")

	symbol := pathParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}
	opts := parseListOpts(r)

	rounds, total, err := h.oracle.History(r.Context(), symbol, opts.Limit, opts.Offset)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) {
			writeError(w, http.StatusNotFound, "unknown symbol")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list history failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if rounds == nil {
		rounds = []domain.ConsensusResult{}
	}

	writeJSON(w, http.StatusOK, listHistoryResponse{
		Symbol: symbol,
		Rounds: rounds,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
