package db

import (
	"context"
	"guardpost/models"
	"sort"
	"sync"
	"time"
)

var (
	_ Store = (*FirestoreDB)(nil)
	_ Store = (*MemoryDB)(nil)
)

// MemoryDB is an in-process Store for local development and tests. Every
// method holds the lock for its whole read-modify-write, giving the same
// atomic conditional semantics as the Firestore transactions.
type MemoryDB struct {
	mu         sync.RWMutex
	shifts     map[string]*models.Shift
	active     map[string]string // guard id -> open shift id
	activities []models.ActivityLogEntry
	users      map[string]models.User
	passwords  map[string]string
}

// NewMemoryDB returns an empty store.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		shifts:    make(map[string]*models.Shift),
		active:    make(map[string]string),
		users:     make(map[string]models.User),
		passwords: make(map[string]string),
	}
}

// Close is a no-op.
func (m *MemoryDB) Close() error { return nil }

// --- Shift Operations ---

func (m *MemoryDB) CreateShift(_ context.Context, shift *models.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.active[shift.GuardID]; ok {
		if existing, found := m.shifts[id]; found && existing.Active() {
			return ErrActiveShiftExists
		}
	}
	m.shifts[shift.ShiftID] = shift.Clone()
	m.active[shift.GuardID] = shift.ShiftID
	return nil
}

func (m *MemoryDB) ActiveShift(_ context.Context, guardID string) (*models.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if shift := m.activeLocked(guardID); shift != nil {
		return shift.Clone(), nil
	}
	if open := m.openLocked(guardID); len(open) > 0 {
		return &open[0], nil
	}
	return nil, ErrNotFound
}

func (m *MemoryDB) activeLocked(guardID string) *models.Shift {
	id, ok := m.active[guardID]
	if !ok {
		return nil
	}
	shift, ok := m.shifts[id]
	if !ok || !shift.Active() {
		return nil
	}
	return shift
}

func (m *MemoryDB) UpdateActiveShift(_ context.Context, guardID string, fn ShiftMutator) (*models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.activeLocked(guardID)
	if current == nil {
		return nil, ErrNotFound
	}
	return m.applyLocked(current, fn)
}

// applyLocked mutates a copy so a failing fn leaves the stored shift untouched.
func (m *MemoryDB) applyLocked(current *models.Shift, fn ShiftMutator) (*models.Shift, error) {
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.shifts[next.ShiftID] = next
	if !next.Active() && m.active[next.GuardID] == next.ShiftID {
		delete(m.active, next.GuardID)
	}
	return next.Clone(), nil
}

func (m *MemoryDB) FindOpenShifts(_ context.Context, guardID string) ([]models.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openLocked(guardID), nil
}

func (m *MemoryDB) openLocked(guardID string) []models.Shift {
	var open []models.Shift
	for _, s := range m.shifts {
		if s.GuardID == guardID && s.Active() {
			open = append(open, *s.Clone())
		}
	}
	sortByCheckInDesc(open)
	return open
}

func (m *MemoryDB) UpdateShiftIfOpen(_ context.Context, shiftID string, fn ShiftMutator) (*models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.shifts[shiftID]
	if !ok {
		return nil, ErrNotFound
	}
	if !current.Active() {
		return nil, ErrShiftClosed
	}
	return m.applyLocked(current, fn)
}

func (m *MemoryDB) SetShiftPhoto(_ context.Context, shiftID string, slot models.PhotoSlot, photo *models.PhotoRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	shift, ok := m.shifts[shiftID]
	if !ok {
		return ErrNotFound
	}
	p := *photo
	switch slot {
	case models.SlotCheckIn:
		shift.CheckInPhoto = &p
	case models.SlotCheckOut:
		shift.CheckOutPhoto = &p
	default:
		return ErrNotFound
	}
	shift.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryDB) ShiftHistory(_ context.Context, guardID string, limit int) ([]models.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var history []models.Shift
	for _, s := range m.shifts {
		if s.GuardID == guardID {
			history = append(history, *s.Clone())
		}
	}
	sortByCheckInDesc(history)
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (m *MemoryDB) ShiftsSince(_ context.Context, since time.Time) ([]models.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Shift
	for _, s := range m.shifts {
		if !s.CheckInTime.Before(since) {
			out = append(out, *s.Clone())
		}
	}
	sortByCheckInDesc(out)
	return out, nil
}

func (m *MemoryDB) ListActiveShifts(_ context.Context) ([]models.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Shift
	for _, s := range m.shifts {
		if s.Active() {
			out = append(out, *s.Clone())
		}
	}
	sortByCheckInDesc(out)
	return out, nil
}

func sortByCheckInDesc(shifts []models.Shift) {
	sort.SliceStable(shifts, func(i, j int) bool {
		return shifts[i].CheckInTime.After(shifts[j].CheckInTime)
	})
}

// --- Activity Operations ---

func (m *MemoryDB) InsertActivity(_ context.Context, entry *models.ActivityLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := *entry
	e.LocationData = entry.LocationData.Clone()
	m.activities = append(m.activities, e)
	return nil
}

func (m *MemoryDB) FindActivities(_ context.Context, filter ActivityFilter) ([]models.ActivityLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ActivityLogEntry
	for i := range m.activities {
		if filter.Matches(&m.activities[i]) {
			e := m.activities[i]
			e.LocationData = e.LocationData.Clone()
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// --- User Operations ---

func (m *MemoryDB) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = *user
	return nil
}

func (m *MemoryDB) GetUser(_ context.Context, userID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (m *MemoryDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryDB) GetAllUsers(_ context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]models.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

func (m *MemoryDB) UpdateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.UserID]; !ok {
		return ErrNotFound
	}
	m.users[user.UserID] = *user
	return nil
}

func (m *MemoryDB) StorePasswordHash(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwords[userID] = passwordHash
	return nil
}

func (m *MemoryDB) GetPasswordHash(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hash, ok := m.passwords[userID]
	if !ok {
		return "", ErrNotFound
	}
	return hash, nil
}
