package handlers

import (
	"bytes"
	"fmt"
	"guardpost/activity"
	"guardpost/logging"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ActivityHandler serves the activity log to management.
type ActivityHandler struct {
	query  *activity.Query
	logger *zap.Logger
}

func NewActivityHandler(query *activity.Query, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{
		query:  query,
		logger: logging.WithComponent(logger, "activity_handler"),
	}
}

// Query returns one page of filtered entries with aggregate stats.
func (h *ActivityHandler) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter, err := activity.ParseFilter(q)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	page, limit := activity.ParsePage(q)

	result, err := h.query.Search(r.Context(), filter, page, limit)
	if err != nil {
		h.logger.Error("failed to query activity", zap.Error(err))
		writeError(w, "Failed to retrieve activity", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Export streams every filtered entry as CSV.
func (h *ActivityHandler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter, err := activity.ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.query.All(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query activity", zap.Error(err))
		writeError(w, "Failed to retrieve activity", http.StatusInternalServerError)
		return
	}

	// Render fully before writing headers so a CSV error can still become a 500.
	var buf bytes.Buffer
	if err := activity.WriteCSV(&buf, entries); err != nil {
		h.logger.Error("failed to render activity export", zap.Error(err))
		writeError(w, "Failed to export activity", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("activity_log_%s.csv", time.Now().UTC().Format("2006-01-02_15-04-05"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)

	h.logger.Info("activity exported", zap.Int("entries", len(entries)))
}
