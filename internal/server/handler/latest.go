package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mpaquette/depthmetrics/internal/domain"
)

// LatestHandler serves the most recent tick for a pair from the cache. When
// the cache is disabled the handler still registers but always answers 404,
// so clients see the same surface either way.
type LatestHandler struct {
	cache  domain.TickCache
	logger *slog.Logger
}

// NewLatestHandler creates a LatestHandler; cache may be nil.
func NewLatestHandler(cache domain.TickCache, logger *slog.Logger) *LatestHandler {
	return &LatestHandler{cache: cache, logger: logger}
}

// GetLatest returns the freshest tick for a pair.
// GET /latest?exchange=coinbase&asset=ADA
func (h *LatestHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	exchange, asset := pairParams(r)
	if exchange == "" || asset == "" {
		writeError(w, http.StatusBadRequest, "params: exchange, asset required")
		return
	}

	if h.cache == nil {
		writeError(w, http.StatusNotFound, "latest-tick cache disabled")
		return
	}

	tick, err := h.cache.GetLatest(r.Context(), exchange, asset)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no recent tick for "+exchange+"/"+asset)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "cache fetch failed",
			slog.String("exchange", exchange),
			slog.String("asset", asset),
			slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "cache unavailable")
		return
	}

	writeJSON(w, http.StatusOK, tick)
}
