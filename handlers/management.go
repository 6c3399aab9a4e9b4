package handlers

import (
	"guardpost/activity"
	"guardpost/logging"
	"guardpost/shift"
	"guardpost/stats"
	"net/http"

	"go.uber.org/zap"
)

// ManagementHandler serves supervisory views and overrides.
type ManagementHandler struct {
	ledger     *shift.Ledger
	aggregator *stats.Aggregator
	locator    locator
	logger     *zap.Logger
}

func NewManagementHandler(ledger *shift.Ledger, aggregator *stats.Aggregator, locations LocationResolver, logger *zap.Logger) *ManagementHandler {
	return &ManagementHandler{
		ledger:     ledger,
		aggregator: aggregator,
		locator:    newLocator(locations),
		logger:     logging.WithComponent(logger, "management_handler"),
	}
}

// Dashboard returns duty counts, shift averages and activity trends.
func (h *ManagementHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dashboard, err := h.aggregator.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("failed to build dashboard", zap.Error(err))
		writeError(w, "Failed to build dashboard", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, dashboard)
}

type ForceEndShiftRequest struct {
	GuardID string `json:"guardId" validate:"required"`
	Notes   string `json:"notes" validate:"max=2000"`
	LocationInput
}

// EndShift ends a guard's shift on their behalf. The manager is recorded as
// the actor and the shift's ClosedBy.
func (h *ManagementHandler) EndShift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, _, ok := currentActor(r)
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req ForceEndShiftRequest
	if err := decode(r, w, &req, false); err != nil {
		writeLedgerError(w, h.logger, h.ledger.Reject(r.Context(), actor, activity.ActionEndShift, req.GuardID, err), "Invalid request")
		return
	}

	s, err := h.ledger.EndShift(r.Context(), req.GuardID, actor, shift.EndInput{
		Notes:        req.Notes,
		LocationData: h.locator.resolve(r, req.LocationInput),
	})
	if err != nil {
		writeLedgerError(w, h.logger, err, "Failed to end shift")
		return
	}

	h.logger.Info("shift ended by manager",
		zap.String("guard_id", req.GuardID),
		zap.String("manager_id", actor.UserID))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Shift ended",
		"shift":   s,
	})
}
