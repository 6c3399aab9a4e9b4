package handlers

import (
	"errors"
	"guardpost/activity"
	"guardpost/location"
	"guardpost/logging"
	"guardpost/models"
	"guardpost/shift"
	"guardpost/storage"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// ShiftHandler serves the guard's own duty lifecycle.
type ShiftHandler struct {
	ledger  *shift.Ledger
	photos  storage.PhotoStore
	locator locator
	logger  *zap.Logger
}

func NewShiftHandler(ledger *shift.Ledger, photos storage.PhotoStore, locations LocationResolver, logger *zap.Logger) *ShiftHandler {
	return &ShiftHandler{
		ledger:  ledger,
		photos:  photos,
		locator: newLocator(locations),
		logger:  logging.WithComponent(logger, "shift_handler"),
	}
}

type StartShiftRequest struct {
	Location string `json:"location" validate:"max=200"`
	Notes    string `json:"notes" validate:"max=2000"`
	LocationInput
}

// Start checks the guard in.
func (h *ShiftHandler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, _, ok := currentActor(r)
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req StartShiftRequest
	if err := decode(r, w, &req, true); err != nil {
		writeLedgerError(w, h.logger, h.ledger.Reject(r.Context(), actor, activity.ActionStartShift, actor.UserID, err), "Invalid request")
		return
	}

	s, err := h.ledger.StartShift(r.Context(), actor, shift.StartInput{
		Location:     req.Location,
		Notes:        req.Notes,
		LocationData: h.locator.resolve(r, req.LocationInput),
	})
	if err != nil {
		writeLedgerError(w, h.logger, err, "Failed to start shift")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Shift started",
		"shift":   s,
	})
}

type EndShiftRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
	LocationInput
}

// End checks the guard out, closing any open break.
func (h *ShiftHandler) End(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, _, ok := currentActor(r)
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req EndShiftRequest
	if err := decode(r, w, &req, true); err != nil {
		writeLedgerError(w, h.logger, h.ledger.Reject(r.Context(), actor, activity.ActionEndShift, actor.UserID, err), "Invalid request")
		return
	}

	s, err := h.ledger.EndShift(r.Context(), actor.UserID, actor, shift.EndInput{
		Notes:        req.Notes,
		LocationData: h.locator.resolve(r, req.LocationInput),
	})
	if err != nil {
		writeLedgerError(w, h.logger, err, "Failed to end shift")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Shift ended",
		"shift":   s,
	})
}

type BreakRequest struct {
	Action string           `json:"action" validate:"required,oneof=start end"`
	Type   models.BreakType `json:"breakType"`
	LocationInput
}

// Break starts or ends a break depending on the request action.
func (h *ShiftHandler) Break(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, _, ok := currentActor(r)
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req BreakRequest
	if err := decode(r, w, &req, false); err != nil {
		action := activity.StartBreakAction(req.Type)
		if req.Action == "end" {
			action = activity.ActionEndBreak
		}
		writeLedgerError(w, h.logger, h.ledger.Reject(r.Context(), actor, action, actor.UserID, err), "Invalid request")
		return
	}
	loc := h.locator.resolve(r, req.LocationInput)

	if req.Action == "start" {
		if req.Type == "" {
			req.Type = models.BreakShort
		}
		s, err := h.ledger.StartBreak(r.Context(), actor, shift.BreakInput{Type: req.Type, LocationData: loc})
		if err != nil {
			writeLedgerError(w, h.logger, err, "Failed to start break")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Break started",
			"shift":   s,
		})
		return
	}

	result, err := h.ledger.EndBreak(r.Context(), actor, loc)
	if err != nil {
		writeLedgerError(w, h.logger, err, "Failed to end break")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Break ended",
		"break":   result,
	})
}

// ShiftStatus is the guard's current duty view.
type ShiftStatus struct {
	OnDuty       bool               `json:"onDuty"`
	OnBreak      bool               `json:"onBreak"`
	ActiveShift  *models.Shift      `json:"activeShift"`
	CurrentBreak *models.BreakEntry `json:"currentBreak,omitempty"`
	History      []models.Shift     `json:"history"`
}

// Status returns the active shift, if any, and recent history.
// The optional "limit" query parameter bounds the history.
func (h *ShiftHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, _, ok := currentActor(r)
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	active, err := h.ledger.GetActiveShift(r.Context(), actor.UserID)
	if err != nil {
		writeLedgerError(w, h.logger, err, "Failed to load shift status")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := h.ledger.GetShiftHistory(r.Context(), actor.UserID, limit)
	if err != nil {
		writeLedgerError(w, h.logger, err, "Failed to load shift history")
		return
	}
	if history == nil {
		history = []models.Shift{}
	}

	status := ShiftStatus{ActiveShift: active, History: history}
	if active != nil {
		status.OnDuty = true
		if i := active.OpenBreak(); i >= 0 {
			b := active.Breaks[i]
			status.OnBreak = true
			status.CurrentBreak = &b
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// Photo stores a check-in or check-out photo and links it to a shift.
// Form fields: "photo" (file), "slot", and optionally "shiftId" for a shift
// that has already ended; otherwise the active shift is used.
func (h *ShiftHandler) Photo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, _, ok := currentActor(r)
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxPhotoBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	slot := models.PhotoSlot(r.FormValue("slot"))
	if !slot.Valid() {
		writeLedgerError(w, h.logger, shift.ErrInvalidPhotoSlot, "Invalid photo slot")
		return
	}

	shiftID, err := h.ownedShift(r, actor.UserID, r.FormValue("shiftId"))
	if err != nil {
		writeLedgerError(w, h.logger, err, "Failed to resolve shift")
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, "field 'photo' is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ref, err := h.photos.Put(r.Context(), storage.Upload{
		GuardID:     actor.UserID,
		ShiftID:     shiftID,
		Slot:        slot,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) || errors.Is(err, storage.ErrTooLarge) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to store photo", zap.String("shift_id", shiftID), zap.Error(err))
		writeError(w, "Failed to store photo", http.StatusInternalServerError)
		return
	}

	if err := h.ledger.AttachPhoto(r.Context(), shiftID, slot, ref); err != nil {
		writeLedgerError(w, h.logger, err, "Failed to attach photo")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"shiftId": shiftID,
		"photo":   ref,
	})
}

// ownedShift resolves the target shift for a photo and checks that it
// belongs to guardID.
func (h *ShiftHandler) ownedShift(r *http.Request, guardID, shiftID string) (string, error) {
	if shiftID == "" {
		active, err := h.ledger.GetActiveShift(r.Context(), guardID)
		if err != nil {
			return "", err
		}
		if active == nil {
			return "", shift.ErrNoActiveShift
		}
		return active.ShiftID, nil
	}

	history, err := h.ledger.GetShiftHistory(r.Context(), guardID, shift.DefaultHistoryLimit)
	if err != nil {
		return "", err
	}
	for _, s := range history {
		if s.ShiftID == shiftID {
			return shiftID, nil
		}
	}
	return "", shift.ErrShiftNotFound
}

var _ LocationResolver = (*location.Resolver)(nil)
