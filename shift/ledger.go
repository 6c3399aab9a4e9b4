// Package shift implements the guard duty lifecycle:
//
//	NoActiveShift -> OnDuty -> {OnBreak, OnLunch} -> OnDuty -> ShiftEnded
//
// Every transition goes through a Ledger so that the one-open-shift and
// one-open-break rules hold for guards and management alike.
package shift

import (
	"context"
	"errors"
	"fmt"
	"guardpost/activity"
	"guardpost/db"
	"guardpost/metrics"
	"guardpost/models"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NoNotes replaces empty notes so stored notes are never blank.
const NoNotes = "No notes provided"

// DefaultHistoryLimit is used when GetShiftHistory is called with limit <= 0.
const DefaultHistoryLimit = 10

// Recorder receives one activity event per transition attempt.
type Recorder interface {
	Record(ctx context.Context, ev activity.Event)
}

// Actor is the user performing a transition and the request it came from.
type Actor struct {
	models.Identity
	Meta models.RequestMeta
}

// Ledger owns all shift and break mutations.
type Ledger struct {
	store    db.ShiftStore
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewLedger creates a ledger over store, emitting events to recorder.
func NewLedger(store db.ShiftStore, recorder Recorder, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:    store,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "shift")),
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Minutes rounds a duration to whole minutes.
func Minutes(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(math.Round(float64(d.Milliseconds()) / 60000))
}

// StartInput is the payload of a check-in.
type StartInput struct {
	Location     string
	Notes        string
	LocationData *models.LocationResult
}

// StartShift checks the actor in. It fails with ErrAlreadyActive when the
// guard already has an open shift.
func (l *Ledger) StartShift(ctx context.Context, actor Actor, in StartInput) (*models.Shift, error) {
	if actor.Anonymous() {
		l.fail(ctx, actor, activity.ActionStartShift, "", in.LocationData, ErrMissingIdentity)
		return nil, ErrMissingIdentity
	}

	now := l.now().UTC()
	shift := &models.Shift{
		ShiftID:           uuid.NewString(),
		GuardID:           actor.UserID,
		GuardName:         actor.UserName,
		GuardEmail:        actor.UserEmail,
		CheckInTime:       now,
		Status:            models.ShiftActive,
		Breaks:            []models.BreakEntry{},
		Location:          strings.TrimSpace(in.Location),
		StartNotes:        strings.TrimSpace(in.Notes),
		StartLocationData: in.LocationData.Clone(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := l.store.CreateShift(ctx, shift); err != nil {
		if errors.Is(err, db.ErrActiveShiftExists) {
			err = ErrAlreadyActive
		} else {
			err = fmt.Errorf("start shift: %w", err)
		}
		l.fail(ctx, actor, activity.ActionStartShift, actor.UserID, in.LocationData, err)
		return nil, err
	}

	l.logger.Info("shift started", zap.String("guard_id", shift.GuardID), zap.String("shift_id", shift.ShiftID))
	l.succeed(ctx, actor, activity.ActionStartShift, activity.ShiftStarted{
		ShiftID:  shift.ShiftID,
		Location: shift.Location,
		Notes:    orDefault(shift.StartNotes, NoNotes),
	}, in.LocationData)
	return shift, nil
}

// EndInput is the payload of a check-out.
type EndInput struct {
	Notes        string
	LocationData *models.LocationResult
}

// EndShift checks guardID out. The actor is the guard on self-service and a
// manager on an override. An open break is closed at checkout time.
//
// The primary path updates through the open-shift marker. If that fails, the
// open shift is looked up by field and closed with a compare-and-swap on its
// null checkout, so both paths share one invariant and one duration rule.
func (l *Ledger) EndShift(ctx context.Context, guardID string, actor Actor, in EndInput) (*models.Shift, error) {
	if actor.Anonymous() {
		l.fail(ctx, actor, activity.ActionEndShift, guardID, in.LocationData, ErrMissingIdentity)
		return nil, ErrMissingIdentity
	}

	now := l.now().UTC()
	notes := orDefault(strings.TrimSpace(in.Notes), NoNotes)
	var closedBreak bool
	closeShift := func(s *models.Shift) error {
		closedBreak = closeOpenBreak(s, now)
		duration := Minutes(now.Sub(s.CheckInTime))
		end := now
		s.CheckOutTime = &end
		s.Status = models.ShiftCompleted
		s.ShiftDuration = &duration
		s.EndLocationData = in.LocationData.Clone()
		s.Notes = notes
		s.ClosedBy = actor.UserID
		s.UpdatedAt = now
		return nil
	}

	shift, err := l.store.UpdateActiveShift(ctx, guardID, closeShift)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			l.logger.Warn("end shift primary path failed, falling back to open-shift lookup",
				zap.String("guard_id", guardID), zap.Error(err))
		}
		shift, err = l.endShiftFallback(ctx, guardID, closeShift, err)
	}
	if err != nil {
		l.fail(ctx, actor, activity.ActionEndShift, guardID, in.LocationData, err)
		return nil, err
	}

	l.logger.Info("shift ended",
		zap.String("guard_id", guardID),
		zap.String("shift_id", shift.ShiftID),
		zap.Int("duration_minutes", *shift.ShiftDuration))
	l.succeed(ctx, actor, activity.ActionEndShift, activity.ShiftEnded{
		ShiftID:         shift.ShiftID,
		GuardID:         guardID,
		EndedBy:         actor.UserID,
		DurationMinutes: *shift.ShiftDuration,
		Notes:           notes,
		OpenBreakClosed: closedBreak,
	}, in.LocationData)
	return shift, nil
}

func (l *Ledger) endShiftFallback(ctx context.Context, guardID string, closeShift db.ShiftMutator, primaryErr error) (*models.Shift, error) {
	open, err := l.store.FindOpenShifts(ctx, guardID)
	if err != nil {
		if errors.Is(primaryErr, db.ErrNotFound) {
			return nil, fmt.Errorf("end shift: %w", err)
		}
		return nil, fmt.Errorf("end shift: %w", primaryErr)
	}

	for _, candidate := range open {
		shift, err := l.store.UpdateShiftIfOpen(ctx, candidate.ShiftID, closeShift)
		if errors.Is(err, db.ErrShiftClosed) || errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("end shift: %w", err)
		}
		return shift, nil
	}
	if !errors.Is(primaryErr, db.ErrNotFound) {
		return nil, fmt.Errorf("end shift: %w", primaryErr)
	}
	return nil, ErrNoActiveShift
}

// BreakInput is the payload of a break start.
type BreakInput struct {
	Type         models.BreakType
	LocationData *models.LocationResult
}

// StartBreak opens a break on the actor's active shift.
func (l *Ledger) StartBreak(ctx context.Context, actor Actor, in BreakInput) (*models.Shift, error) {
	action := activity.StartBreakAction(in.Type)
	if !in.Type.Valid() {
		l.fail(ctx, actor, action, actor.UserID, in.LocationData, ErrInvalidBreakType)
		return nil, ErrInvalidBreakType
	}

	now := l.now().UTC()
	shift, err := l.store.UpdateActiveShift(ctx, actor.UserID, func(s *models.Shift) error {
		if s.OpenBreak() >= 0 {
			return ErrBreakAlreadyOpen
		}
		s.Breaks = append(s.Breaks, models.BreakEntry{Type: in.Type, StartTime: now})
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		err = l.translate(err, "start break")
		l.fail(ctx, actor, action, actor.UserID, in.LocationData, err)
		return nil, err
	}

	l.succeed(ctx, actor, action, activity.BreakStarted{
		ShiftID:   shift.ShiftID,
		BreakType: in.Type,
	}, in.LocationData)
	return shift, nil
}

// BreakResult describes the break closed by EndBreak.
type BreakResult struct {
	ShiftID         string            `json:"shiftId"`
	Type            models.BreakType  `json:"breakType"`
	DurationMinutes int               `json:"duration"`
	Break           models.BreakEntry `json:"break"`
}

// EndBreak closes the open break on the actor's active shift and reports its
// type and duration, taken from the entry that was actually open.
func (l *Ledger) EndBreak(ctx context.Context, actor Actor, loc *models.LocationResult) (*BreakResult, error) {
	now := l.now().UTC()
	var result BreakResult
	shift, err := l.store.UpdateActiveShift(ctx, actor.UserID, func(s *models.Shift) error {
		i := s.OpenBreak()
		if i < 0 {
			return ErrNoOpenBreak
		}
		end := now
		s.Breaks[i].EndTime = &end
		s.UpdatedAt = now
		result = BreakResult{
			ShiftID:         s.ShiftID,
			Type:            s.Breaks[i].Type,
			DurationMinutes: Minutes(now.Sub(s.Breaks[i].StartTime)),
			Break:           s.Breaks[i],
		}
		return nil
	})
	if err != nil {
		err = l.translate(err, "end break")
		l.fail(ctx, actor, activity.ActionEndBreak, actor.UserID, loc, err)
		return nil, err
	}

	result.ShiftID = shift.ShiftID
	l.succeed(ctx, actor, activity.EndBreakAction(result.Type), activity.BreakEnded{
		ShiftID:         result.ShiftID,
		BreakType:       result.Type,
		DurationMinutes: result.DurationMinutes,
	}, loc)
	return &result, nil
}

// AttachPhoto upserts an evidence reference on a shift. It does not change state.
func (l *Ledger) AttachPhoto(ctx context.Context, shiftID string, slot models.PhotoSlot, photo *models.PhotoRef) error {
	if !slot.Valid() {
		return ErrInvalidPhotoSlot
	}
	err := l.store.SetShiftPhoto(ctx, shiftID, slot, photo)
	if errors.Is(err, db.ErrNotFound) {
		return ErrShiftNotFound
	}
	if err != nil {
		return fmt.Errorf("attach photo: %w", err)
	}
	return nil
}

// GetActiveShift returns the guard's open shift, or nil when off duty.
func (l *Ledger) GetActiveShift(ctx context.Context, guardID string) (*models.Shift, error) {
	shift, err := l.store.ActiveShift(ctx, guardID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active shift: %w", err)
	}
	return shift, nil
}

// GetShiftHistory returns up to limit shifts, most recent first.
func (l *Ledger) GetShiftHistory(ctx context.Context, guardID string, limit int) ([]models.Shift, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	history, err := l.store.ShiftHistory(ctx, guardID, limit)
	if err != nil {
		return nil, fmt.Errorf("get shift history: %w", err)
	}
	return history, nil
}

// closeOpenBreak ends any open break at t and reports whether one was open.
func closeOpenBreak(s *models.Shift, t time.Time) bool {
	i := s.OpenBreak()
	if i < 0 {
		return false
	}
	end := t
	s.Breaks[i].EndTime = &end
	return true
}

// Reject records a request for action that was refused before reaching a
// transition, such as a malformed body, and returns it as ErrInvalidRequest.
func (l *Ledger) Reject(ctx context.Context, actor Actor, action activity.Action, guardID string, reason error) error {
	err := ErrInvalidRequest.WithMessage(reason.Error())
	l.fail(ctx, actor, action, guardID, nil, err)
	return err
}

func (l *Ledger) translate(err error, op string) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrNoActiveShift
	}
	if IsStateViolation(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (l *Ledger) succeed(ctx context.Context, actor Actor, action activity.Action, details activity.Details, loc *models.LocationResult) {
	metrics.ShiftTransitionsTotal.WithLabelValues(string(action), "ok").Inc()
	l.recorder.Record(ctx, activity.Event{
		Actor:    actor.Identity,
		Meta:     actor.Meta,
		Action:   action,
		Details:  details,
		Location: loc,
	})
}

func (l *Ledger) fail(ctx context.Context, actor Actor, action activity.Action, guardID string, loc *models.LocationResult, err error) {
	details := activity.ActionFailed{Error: err.Error(), GuardID: guardID}
	outcome := "error"
	var se *Error
	if errors.As(err, &se) {
		details.Code = se.Code
		outcome = strings.ToLower(se.Code)
	} else {
		l.logger.Error("shift transition failed",
			zap.String("action", string(action)),
			zap.String("guard_id", guardID),
			zap.Error(err))
	}
	metrics.ShiftTransitionsTotal.WithLabelValues(string(action), outcome).Inc()
	l.recorder.Record(ctx, activity.Event{
		Actor:    actor.Identity,
		Meta:     actor.Meta,
		Action:   action.Failed(),
		Details:  details,
		Location: loc,
	})
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
