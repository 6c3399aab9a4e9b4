// Package stats computes read-only dashboard projections over shifts and
// activity. Every projection tolerates empty input and returns zeros.
package stats

import (
	"context"
	"fmt"
	"guardpost/activity"
	"guardpost/db"
	"guardpost/models"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Bucket is a count for one day ("2006-01-02") or ISO week ("2006-W01").
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// GuardPerformance ranks a guard over the trailing window.
type GuardPerformance struct {
	GuardID         string  `json:"guardId"`
	GuardName       string  `json:"guardName"`
	CompletedShifts int     `json:"completedShifts"`
	TotalMinutes    int     `json:"totalMinutes"`
	TotalHours      float64 `json:"totalHours"`
}

// DutyCounts splits the guard roster by whether each guard has an open shift.
type DutyCounts struct {
	TotalGuards int `json:"totalGuards"`
	OnDuty      int `json:"onDuty"`
	OffDuty     int `json:"offDuty"`
}

// Dashboard is the management overview.
type Dashboard struct {
	GeneratedAt         time.Time          `json:"generatedAt"`
	WindowDays          int                `json:"windowDays"`
	Duty                DutyCounts         `json:"duty"`
	CompletedShifts     int                `json:"completedShifts"`
	AverageShiftMinutes float64            `json:"averageShiftMinutes"`
	ActivityTotal       int                `json:"activityTotal"`
	ActivityByDay       []Bucket           `json:"activityByDay"`
	ActivityByWeek      []Bucket           `json:"activityByWeek"`
	IncidentsByDay      []Bucket           `json:"incidentsByDay"`
	IncidentsByWeek     []Bucket           `json:"incidentsByWeek"`
	TopGuards           []GuardPerformance `json:"topGuards"`
	LocationCoverage    float64            `json:"locationCoverage"` // percent
}

// Aggregator builds dashboards. It never writes.
type Aggregator struct {
	shifts     db.ShiftStore
	activities db.ActivityStore
	users      db.UserStore
	window     time.Duration
	topN       int
	now        func() time.Time
}

// NewAggregator creates an aggregator over a trailing window of windowDays.
func NewAggregator(shifts db.ShiftStore, activities db.ActivityStore, users db.UserStore, windowDays, topN int) *Aggregator {
	if windowDays <= 0 {
		windowDays = 30
	}
	if topN <= 0 {
		topN = 5
	}
	return &Aggregator{
		shifts:     shifts,
		activities: activities,
		users:      users,
		window:     time.Duration(windowDays) * 24 * time.Hour,
		topN:       topN,
		now:        time.Now,
	}
}

// SetClock overrides the time source.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// Dashboard loads the roster, open shifts, windowed shifts and windowed
// activity concurrently and projects them.
func (a *Aggregator) Dashboard(ctx context.Context) (*Dashboard, error) {
	now := a.now().UTC()
	since := now.Add(-a.window)

	var (
		users   []models.User
		active  []models.Shift
		shifts  []models.Shift
		entries []models.ActivityLogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = a.users.GetAllUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		active, err = a.shifts.ListActiveShifts(gctx)
		return err
	})
	g.Go(func() (err error) {
		shifts, err = a.shifts.ShiftsSince(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		entries, err = a.activities.FindActivities(gctx, db.ActivityFilter{DateFrom: since})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load dashboard data: %w", err)
	}

	completed, avg := AverageShiftMinutes(shifts)
	incidents := filterCategory(entries, models.CategoryIncident)
	return &Dashboard{
		GeneratedAt:         now,
		WindowDays:          int(a.window / (24 * time.Hour)),
		Duty:                CountDuty(users, active),
		CompletedShifts:     completed,
		AverageShiftMinutes: avg,
		ActivityTotal:       len(entries),
		ActivityByDay:       ByDay(entries),
		ActivityByWeek:      ByWeek(entries),
		IncidentsByDay:      ByDay(incidents),
		IncidentsByWeek:     ByWeek(incidents),
		TopGuards:           TopGuards(shifts, a.topN),
		LocationCoverage:    LocationCoverage(entries),
	}, nil
}

// CountDuty counts active guards on the roster against open shifts.
func CountDuty(users []models.User, active []models.Shift) DutyCounts {
	open := make(map[string]bool, len(active))
	for _, s := range active {
		open[s.GuardID] = true
	}
	var c DutyCounts
	for _, u := range users {
		if u.Role != models.RoleGuard || !u.Active {
			continue
		}
		c.TotalGuards++
		if open[u.UserID] {
			c.OnDuty++
		}
	}
	c.OffDuty = c.TotalGuards - c.OnDuty
	return c
}

// AverageShiftMinutes averages the frozen duration of completed shifts.
func AverageShiftMinutes(shifts []models.Shift) (completed int, avg float64) {
	total := 0
	for _, s := range shifts {
		if s.Active() || s.ShiftDuration == nil {
			continue
		}
		completed++
		total += *s.ShiftDuration
	}
	if completed == 0 {
		return 0, 0
	}
	return completed, float64(total) / float64(completed)
}

// TopGuards ranks guards by completed shifts, then total minutes, then id.
func TopGuards(shifts []models.Shift, n int) []GuardPerformance {
	byGuard := map[string]*GuardPerformance{}
	for _, s := range shifts {
		if s.Active() || s.ShiftDuration == nil {
			continue
		}
		p, ok := byGuard[s.GuardID]
		if !ok {
			p = &GuardPerformance{GuardID: s.GuardID, GuardName: s.GuardName}
			byGuard[s.GuardID] = p
		}
		p.CompletedShifts++
		p.TotalMinutes += *s.ShiftDuration
	}

	ranked := make([]GuardPerformance, 0, len(byGuard))
	for _, p := range byGuard {
		p.TotalHours = float64(p.TotalMinutes) / 60
		ranked = append(ranked, *p)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].CompletedShifts != ranked[j].CompletedShifts {
			return ranked[i].CompletedShifts > ranked[j].CompletedShifts
		}
		if ranked[i].TotalMinutes != ranked[j].TotalMinutes {
			return ranked[i].TotalMinutes > ranked[j].TotalMinutes
		}
		return ranked[i].GuardID < ranked[j].GuardID
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// ByDay buckets entries by UTC calendar day, oldest first.
func ByDay(entries []models.ActivityLogEntry) []Bucket {
	return bucket(entries, func(t time.Time) string {
		return t.UTC().Format("2006-01-02")
	})
}

// ByWeek buckets entries by ISO week, oldest first.
func ByWeek(entries []models.ActivityLogEntry) []Bucket {
	return bucket(entries, func(t time.Time) string {
		year, week := t.UTC().ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	})
}

func bucket(entries []models.ActivityLogEntry, key func(time.Time) string) []Bucket {
	counts := map[string]int{}
	for _, e := range entries {
		counts[key(e.Timestamp)]++
	}
	out := make([]Bucket, 0, len(counts))
	for k, c := range counts {
		out = append(out, Bucket{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// LocationCoverage is the percentage of entries carrying location data.
func LocationCoverage(entries []models.ActivityLogEntry) float64 {
	with := 0
	for _, e := range entries {
		if e.LocationData != nil {
			with++
		}
	}
	return activity.Coverage(with, len(entries))
}

func filterCategory(entries []models.ActivityLogEntry, c models.ActivityCategory) []models.ActivityLogEntry {
	var out []models.ActivityLogEntry
	for _, e := range entries {
		if e.Category == c {
			out = append(out, e)
		}
	}
	return out
}
