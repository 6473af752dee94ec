package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/mpaquette/depthmetrics/internal/blob"
	"github.com/mpaquette/depthmetrics/internal/domain"
)

// fileCacheControl lets CDNs and browsers hold daily artifacts briefly; the
// current day's files are rewritten about once a minute.
const fileCacheControl = "public, max-age=300"

// FileHandler serves daily artifacts and catalog listings straight from the
// blob store. It holds no state beyond the reader; every request is a
// pass-through.
type FileHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewFileHandler creates a FileHandler backed by the given reader.
func NewFileHandler(reader domain.BlobReader, logger *slog.Logger) *FileHandler {
	return &FileHandler{reader: reader, logger: logger}
}

// GetDailyJSON streams a day's minute-average JSON artifact.
// GET /files/json?exchange=coinbase&asset=ADA&day=2026-08-30
func (h *FileHandler) GetDailyJSON(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "application/json; charset=utf-8", blob.DailyJSONKey)
}

// GetDailyCSV streams a day's per-second CSV artifact.
// GET /files/csv?exchange=coinbase&asset=ADA&day=2026-08-30
func (h *FileHandler) GetDailyCSV(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "text/csv; charset=utf-8", blob.DailyCSVKey)
}

func (h *FileHandler) serveFile(w http.ResponseWriter, r *http.Request, contentType string, keyFn func(exchange, asset, day string) string) {
	exchange, asset := pairParams(r)
	day := dayParam(r)
	if exchange == "" || asset == "" || day == "" {
		writeError(w, http.StatusBadRequest, "params: exchange, asset, day=YYYY-MM-DD required")
		return
	}

	key := keyFn(exchange, asset, day)
	rc, err := h.reader.Get(r.Context(), key)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found: "+key)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "blob fetch failed",
			slog.String("key", key),
			slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", fileCacheControl)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "file stream interrupted",
			slog.String("key", key),
			slog.Any("error", err))
	}
}

// ListDays enumerates the days with a published JSON artifact for a pair.
// GET /list/days?exchange=coinbase&asset=ADA
func (h *FileHandler) ListDays(w http.ResponseWriter, r *http.Request) {
	exchange, asset := pairParams(r)
	if exchange == "" || asset == "" {
		writeError(w, http.StatusBadRequest, "params: exchange, asset required")
		return
	}

	infos, err := h.reader.List(r.Context(), blob.ShardPrefix(exchange, asset))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "blob list failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "storage unavailable")
		return
	}

	seen := map[string]bool{}
	for _, info := range infos {
		if day := blob.DayFromDailyJSONKey(info.Path, asset); day != "" {
			seen[day] = true
		}
	}
	days := make([]string, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Strings(days)

	writeJSON(w, http.StatusOK, map[string]any{
		"exchange": exchange,
		"asset":    asset,
		"days":     days,
	})
}

// ListExchanges enumerates the top-level exchange prefixes in the bucket.
// GET /list/exchanges
func (h *FileHandler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	infos, err := h.reader.List(r.Context(), "")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "blob list failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "storage unavailable")
		return
	}

	seen := map[string]bool{}
	for _, info := range infos {
		if name, _, ok := strings.Cut(info.Path, "/"); ok && name != "" {
			seen[name] = true
		}
	}
	exchanges := make([]string, 0, len(seen))
	for name := range seen {
		exchanges = append(exchanges, name)
	}
	sort.Strings(exchanges)

	writeJSON(w, http.StatusOK, map[string]any{"exchanges": exchanges})
}

// ListAssets enumerates the assets stored under one exchange prefix.
// GET /list/assets?exchange=coinbase
func (h *FileHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	exchange, _ := pairParams(r)
	if exchange == "" {
		writeError(w, http.StatusBadRequest, "param: exchange required")
		return
	}

	infos, err := h.reader.List(r.Context(), exchange+"/")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "blob list failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "storage unavailable")
		return
	}

	seen := map[string]bool{}
	for _, info := range infos {
		parts := strings.SplitN(info.Path, "/", 3)
		if len(parts) >= 2 && parts[1] != "" {
			seen[parts[1]] = true
		}
	}
	assets := make([]string, 0, len(seen))
	for name := range seen {
		assets = append(assets, name)
	}
	sort.Strings(assets)

	writeJSON(w, http.StatusOK, map[string]any{
		"exchange": exchange,
		"assets":   assets,
	})
}
