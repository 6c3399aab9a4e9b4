package db_test

import (
	"context"
	"errors"
	"guardpost/db"
	"guardpost/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openShift(id, guardID string, checkIn time.Time) *models.Shift {
	return &models.Shift{
		ShiftID:     id,
		GuardID:     guardID,
		CheckInTime: checkIn,
		Status:      models.ShiftActive,
	}
}

func closeAt(t time.Time) db.ShiftMutator {
	return func(s *models.Shift) error {
		end := t
		s.CheckOutTime = &end
		s.Status = models.ShiftCompleted
		return nil
	}
}

func TestMemoryDB_CreateShiftEnforcesOneOpenShift(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateShift(ctx, openShift("s1", "g1", now)))
	assert.ErrorIs(t, store.CreateShift(ctx, openShift("s2", "g1", now)), db.ErrActiveShiftExists)
	require.NoError(t, store.CreateShift(ctx, openShift("s3", "g2", now)))

	_, err := store.UpdateActiveShift(ctx, "g1", closeAt(now.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, store.CreateShift(ctx, openShift("s4", "g1", now.Add(2*time.Hour))))
	active, err := store.ActiveShift(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "s4", active.ShiftID)
}

func TestMemoryDB_FailedMutationLeavesShiftUntouched(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateShift(ctx, openShift("s1", "g1", now)))

	boom := errors.New("boom")
	_, err := store.UpdateActiveShift(ctx, "g1", func(s *models.Shift) error {
		s.Breaks = append(s.Breaks, models.BreakEntry{Type: models.BreakShort, StartTime: now})
		return boom
	})
	require.ErrorIs(t, err, boom)

	active, err := store.ActiveShift(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, active.Breaks)
}

func TestMemoryDB_ReturnedShiftsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateShift(ctx, openShift("s1", "g1", now)))

	active, err := store.ActiveShift(ctx, "g1")
	require.NoError(t, err)
	active.Status = models.ShiftCompleted

	again, err := store.ActiveShift(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, models.ShiftActive, again.Status)
}

func TestMemoryDB_UpdateShiftIfOpen(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateShift(ctx, openShift("s1", "g1", now)))

	_, err := store.UpdateShiftIfOpen(ctx, "missing", closeAt(now))
	assert.ErrorIs(t, err, db.ErrNotFound)

	closed, err := store.UpdateShiftIfOpen(ctx, "s1", closeAt(now.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, closed.Active())

	_, err = store.UpdateShiftIfOpen(ctx, "s1", closeAt(now.Add(2*time.Hour)))
	assert.ErrorIs(t, err, db.ErrShiftClosed)

	_, err = store.ActiveShift(ctx, "g1")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestMemoryDB_ShiftQueries(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateShift(ctx, openShift(id, "g1", base.Add(time.Duration(i)*24*time.Hour))))
		if id != "c" {
			_, err := store.UpdateActiveShift(ctx, "g1", closeAt(base.Add(time.Duration(i)*24*time.Hour+8*time.Hour)))
			require.NoError(t, err)
		}
	}
	require.NoError(t, store.CreateShift(ctx, openShift("d", "g2", base)))

	history, err := store.ShiftHistory(ctx, "g1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].ShiftID)
	assert.Equal(t, "b", history[1].ShiftID)

	since, err := store.ShiftsSince(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, since, 2)

	active, err := store.ListActiveShifts(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, store.SetShiftPhoto(ctx, "a", models.SlotCheckOut, &models.PhotoRef{ID: "p"}))
	assert.ErrorIs(t, store.SetShiftPhoto(ctx, "zzz", models.SlotCheckOut, &models.PhotoRef{ID: "p"}), db.ErrNotFound)
}

func TestMemoryDB_FindActivitiesFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	lat, lon := 6.5, 3.4

	entries := []models.ActivityLogEntry{
		{EntryID: "1", UserID: "g1", Action: "login", Category: models.CategoryAuthentication, UserRole: models.RoleGuard, Timestamp: base},
		{EntryID: "2", UserID: "g1", Action: "start_shift", Category: models.CategoryShift, UserRole: models.RoleGuard, Timestamp: base.Add(time.Minute),
			LocationData: &models.LocationResult{Source: models.SourceGPS, Latitude: &lat, Longitude: &lon, City: "Lagos"}},
		{EntryID: "3", UserID: "m1", Action: "login", Category: models.CategoryAuthentication, UserRole: models.RoleManager, Timestamp: base.Add(2 * time.Minute),
			LocationData: &models.LocationResult{Source: models.SourceIP, City: "Abuja"}},
	}
	for i := range entries {
		require.NoError(t, store.InsertActivity(ctx, &entries[i]))
	}

	all, err := store.FindActivities(ctx, db.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].EntryID)
	assert.Equal(t, "1", all[2].EntryID)

	byCategory, err := store.FindActivities(ctx, db.ActivityFilter{Category: models.CategoryAuthentication})
	require.NoError(t, err)
	assert.Len(t, byCategory, 2)

	yes := true
	withLocation, err := store.FindActivities(ctx, db.ActivityFilter{HasLocation: &yes})
	require.NoError(t, err)
	assert.Len(t, withLocation, 2)

	byCity, err := store.FindActivities(ctx, db.ActivityFilter{City: "lag"})
	require.NoError(t, err)
	require.Len(t, byCity, 1)
	assert.Equal(t, "2", byCity[0].EntryID)

	bySource, err := store.FindActivities(ctx, db.ActivityFilter{LocationSource: models.SourceIP})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, "3", bySource[0].EntryID)

	window, err := store.FindActivities(ctx, db.ActivityFilter{DateFrom: base.Add(30 * time.Second), DateTo: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "2", window[0].EntryID)
}

func TestMemoryDB_Users(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()

	user := &models.User{UserID: "u1", Name: "Ada", Email: "ada@example.com", Role: models.RoleGuard, Active: true}
	require.NoError(t, store.CreateUser(ctx, user))

	found, err := store.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.UserID)

	_, err = store.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, db.ErrNotFound)

	_, err = store.GetPasswordHash(ctx, "u1")
	assert.ErrorIs(t, err, db.ErrNotFound)
	require.NoError(t, store.StorePasswordHash(ctx, "u1", "hash"))
	hash, err := store.GetPasswordHash(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "hash", hash)

	found.Active = false
	require.NoError(t, store.UpdateUser(ctx, found))
	all, err := store.GetAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)
}
