package activity_test

import (
	"context"
	"errors"
	"guardpost/activity"
	"guardpost/db"
	"guardpost/models"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// flakyStore fails the first failures inserts, then delegates to the memory store.
type flakyStore struct {
	*db.MemoryDB
	mu       sync.Mutex
	failures int
	attempts int
}

func (s *flakyStore) InsertActivity(ctx context.Context, entry *models.ActivityLogEntry) error {
	s.mu.Lock()
	s.attempts++
	fail := s.attempts <= s.failures
	s.mu.Unlock()
	if fail {
		return errors.New("transient write error")
	}
	return s.MemoryDB.InsertActivity(ctx, entry)
}

var actor = models.Identity{UserID: "g1", UserName: "Grace", UserEmail: "grace@example.com", UserRole: models.RoleGuard}

func TestRecorder_WritesStampedEntry(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	rec := activity.NewRecorder(store, zaptest.NewLogger(t), activity.Options{})
	stamp := time.Date(2024, 3, 4, 9, 0, 0, 0, time.FixedZone("WAT", 3600))
	rec.SetClock(func() time.Time { return stamp })

	rec.Record(ctx, activity.Event{
		Actor:    actor,
		Meta:     models.RequestMeta{DeviceType: "mobile", IPAddress: "203.0.113.7", UserAgent: "test"},
		Action:   activity.ActionStartShift,
		Details:  activity.ShiftStarted{ShiftID: "s1", Location: "North Gate", Notes: "No notes provided"},
		Location: &models.LocationResult{Source: models.SourceGPS, Latitude: models.Float(1), Longitude: models.Float(2)},
	})
	require.NoError(t, rec.Close(ctx))

	entries, err := store.FindActivities(ctx, db.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.NotEmpty(t, e.EntryID)
	assert.Equal(t, "start_shift", e.Action)
	assert.Equal(t, models.CategoryShift, e.Category)
	assert.Equal(t, "Grace", e.UserName)
	assert.Equal(t, models.RoleGuard, e.UserRole)
	assert.Equal(t, "mobile", e.DeviceType)
	assert.Equal(t, "s1", e.Details["shiftId"])
	assert.Equal(t, time.UTC, e.Timestamp.Location())
	assert.True(t, e.Timestamp.Equal(stamp))
	require.NotNil(t, e.LocationData)
	assert.Equal(t, models.SourceGPS, e.LocationData.Source)
}

func TestRecorder_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryDB: db.NewMemoryDB(), failures: 2}
	rec := activity.NewRecorder(store, zaptest.NewLogger(t), activity.Options{MaxAttempts: 3, RetryBackoff: time.Millisecond})

	rec.Record(ctx, activity.Event{Actor: actor, Action: activity.ActionLogin, Details: activity.LoginSucceeded{Email: actor.UserEmail}})
	require.NoError(t, rec.Close(ctx))

	entries, err := store.FindActivities(ctx, db.ActivityFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 3, store.attempts)
}

func TestRecorder_DropsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryDB: db.NewMemoryDB(), failures: 100}
	rec := activity.NewRecorder(store, zaptest.NewLogger(t), activity.Options{MaxAttempts: 2, RetryBackoff: -1})

	rec.Record(ctx, activity.Event{Actor: actor, Action: activity.ActionLogout, Details: activity.LoggedOut{}})
	require.NoError(t, rec.Close(ctx))

	entries, err := store.FindActivities(ctx, db.ActivityFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 2, store.attempts)
}

func TestRecorder_RejectsInvalidEvents(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	rec := activity.NewRecorder(store, zaptest.NewLogger(t), activity.Options{})

	rec.Record(ctx, activity.Event{Actor: actor, Action: "teleport"})
	rec.Record(ctx, activity.Event{Actor: actor, Action: activity.ActionLogin, Details: activity.ShiftStarted{ShiftID: "s1"}})
	require.NoError(t, rec.Close(ctx))

	entries, err := store.FindActivities(ctx, db.ActivityFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecorder_AnonymousFailedLogin(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	rec := activity.NewRecorder(store, zaptest.NewLogger(t), activity.Options{})

	rec.Record(ctx, activity.Event{
		Action:  activity.ActionLoginFailed,
		Details: activity.ActionFailed{Error: "user not found", Email: "who@example.com"},
	})
	require.NoError(t, rec.Close(ctx))

	entries, err := store.FindActivities(ctx, db.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].UserID)
	assert.Equal(t, models.CategoryAuthentication, entries[0].Category)
	assert.Equal(t, "who@example.com", entries[0].Details["email"])
}

func TestRecorder_CloseTwiceAndRecordAfterClose(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	rec := activity.NewRecorder(store, zaptest.NewLogger(t), activity.Options{})

	require.NoError(t, rec.Close(ctx))
	assert.ErrorIs(t, rec.Close(ctx), activity.ErrRecorderClosed)

	rec.Record(ctx, activity.Event{Actor: actor, Action: activity.ActionLogout, Details: activity.LoggedOut{}})
	entries, err := store.FindActivities(ctx, db.ActivityFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAction_Category(t *testing.T) {
	cases := map[activity.Action]models.ActivityCategory{
		activity.ActionLogin:               models.CategoryAuthentication,
		activity.ActionLoginFailed:         models.CategoryAuthentication,
		activity.ActionStartShift.Failed(): models.CategoryShift,
		activity.ActionStartLunch:          models.CategoryBreak,
		activity.ActionEndBreak.Failed():   models.CategoryBreak,
		activity.ActionCreateIncident:      models.CategoryIncident,
	}
	for action, want := range cases {
		got, ok := action.Category()
		assert.True(t, ok, action)
		assert.Equal(t, want, got, action)
	}

	_, ok := activity.Action("teleport").Category()
	assert.False(t, ok)
	_, ok = activity.Action("teleport_failed").Category()
	assert.False(t, ok)

	assert.Equal(t, activity.ActionLoginFailed, activity.ActionLogin.Failed())
	assert.Equal(t, activity.ActionLoginFailed, activity.ActionLoginFailed.Failed())
	assert.Equal(t, activity.ActionStartLunch, activity.StartBreakAction(models.BreakLunch))
	assert.Equal(t, activity.ActionEndBreak, activity.EndBreakAction(models.BreakShort))
}

func TestDetails_Fields(t *testing.T) {
	assert.Equal(t, "8h 0m", activity.FormatDuration(480))
	assert.Equal(t, "1h 5m", activity.FormatDuration(65))

	ended := activity.BreakEnded{ShiftID: "s1", BreakType: models.BreakLunch, DurationMinutes: 30}.Fields()
	assert.Equal(t, "30 minutes", ended["duration"])
	assert.Equal(t, "lunch", ended["breakType"])

	failed := activity.ActionFailed{Error: "No active shift found"}.Fields()
	assert.NotContains(t, failed, "code")
}
