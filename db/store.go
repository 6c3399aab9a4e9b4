package db

import (
	"context"
	"errors"
	"guardpost/models"
	"time"
)

var (
	// ErrNotFound is returned when a document or the active shift does not exist.
	ErrNotFound = errors.New("not found")
	// ErrActiveShiftExists is returned when a guard already has an unresolved checkout.
	ErrActiveShiftExists = errors.New("active shift already exists")
	// ErrShiftClosed is returned by conditional updates when the shift has been checked out.
	ErrShiftClosed = errors.New("shift already closed")
)

// ShiftMutator changes a shift inside an atomic update. It may be called more
// than once if the store retries, so it must only touch the shift it is given.
type ShiftMutator func(shift *models.Shift) error

// ShiftStore persists shifts and enforces the one-open-shift-per-guard rule.
type ShiftStore interface {
	// CreateShift inserts an active shift, or returns ErrActiveShiftExists.
	CreateShift(ctx context.Context, shift *models.Shift) error
	// ActiveShift returns the guard's open shift, or ErrNotFound.
	ActiveShift(ctx context.Context, guardID string) (*models.Shift, error)
	// UpdateActiveShift atomically applies fn to the guard's open shift. When fn
	// sets CheckOutTime the open-shift marker is released in the same write.
	UpdateActiveShift(ctx context.Context, guardID string, fn ShiftMutator) (*models.Shift, error)
	// FindOpenShifts queries shifts by field, bypassing the open-shift marker.
	FindOpenShifts(ctx context.Context, guardID string) ([]models.Shift, error)
	// UpdateShiftIfOpen applies fn only while the shift has no checkout
	// (compare-and-swap); otherwise it returns ErrShiftClosed.
	UpdateShiftIfOpen(ctx context.Context, shiftID string, fn ShiftMutator) (*models.Shift, error)
	SetShiftPhoto(ctx context.Context, shiftID string, slot models.PhotoSlot, photo *models.PhotoRef) error
	ShiftHistory(ctx context.Context, guardID string, limit int) ([]models.Shift, error)
	ShiftsSince(ctx context.Context, since time.Time) ([]models.Shift, error)
	ListActiveShifts(ctx context.Context) ([]models.Shift, error)
}

// ActivityStore persists immutable activity entries.
type ActivityStore interface {
	InsertActivity(ctx context.Context, entry *models.ActivityLogEntry) error
	// FindActivities returns every entry matching filter, most recent first.
	FindActivities(ctx context.Context, filter ActivityFilter) ([]models.ActivityLogEntry, error)
}

// UserStore holds staff accounts and password hashes.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	StorePasswordHash(ctx context.Context, userID, passwordHash string) error
	GetPasswordHash(ctx context.Context, userID string) (string, error)
}

// Store is the full persistence handle opened once at process start.
type Store interface {
	ShiftStore
	ActivityStore
	UserStore
	Close() error
}

func photoField(slot models.PhotoSlot) (string, bool) {
	switch slot {
	case models.SlotCheckIn:
		return "check_in_photo", true
	case models.SlotCheckOut:
		return "check_out_photo", true
	}
	return "", false
}
