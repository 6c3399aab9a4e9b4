package activity

import (
	"context"
	"fmt"
	"guardpost/db"
	"guardpost/models"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Summary aggregates a set of entries for dashboards and the query endpoint.
type Summary struct {
	Total            int            `json:"total"`
	ByCategory       map[string]int `json:"byCategory"`
	ByAction         map[string]int `json:"byAction"`
	ByRole           map[string]int `json:"byRole"`
	BySource         map[string]int `json:"byLocationSource"`
	WithLocation     int            `json:"withLocation"`
	LocationCoverage float64        `json:"locationCoverage"` // percent
}

// Summarize counts entries by category, action, role and location source.
// An empty input yields zero counts.
func Summarize(entries []models.ActivityLogEntry) Summary {
	s := Summary{
		Total:      len(entries),
		ByCategory: map[string]int{},
		ByAction:   map[string]int{},
		ByRole:     map[string]int{},
		BySource:   map[string]int{},
	}
	for i := range entries {
		e := &entries[i]
		s.ByCategory[string(e.Category)]++
		s.ByAction[e.Action]++
		role := string(e.UserRole)
		if role == "" {
			role = "anonymous"
		}
		s.ByRole[role]++
		if e.LocationData != nil {
			s.WithLocation++
			source := string(e.LocationData.Source)
			if source == "" {
				source = "none"
			}
			s.BySource[source]++
		}
	}
	s.LocationCoverage = Coverage(s.WithLocation, s.Total)
	return s
}

// Coverage returns part/total as a percentage, 0 when total is 0.
func Coverage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Page is one page of a query result.
type Page struct {
	Entries []models.ActivityLogEntry `json:"entries"`
	Total   int                       `json:"total"`
	Page    int                       `json:"page"`
	Pages   int                       `json:"pages"`
	Limit   int                       `json:"limit"`
	Stats   Summary                   `json:"stats"`
}

// Query is the read side of the activity log.
type Query struct {
	store db.ActivityStore
}

// NewQuery creates a Query over store.
func NewQuery(store db.ActivityStore) *Query {
	return &Query{store: store}
}

// Search returns one page of entries matching filter, most recent first,
// with stats computed over every match.
func (q *Query) Search(ctx context.Context, filter db.ActivityFilter, page, limit int) (*Page, error) {
	entries, err := q.store.FindActivities(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	return Paginate(entries, page, limit), nil
}

// ForUser is Search restricted to one user.
func (q *Query) ForUser(ctx context.Context, userID string, filter db.ActivityFilter, page, limit int) (*Page, error) {
	filter.UserID = userID
	return q.Search(ctx, filter, page, limit)
}

// All returns every match, for export.
func (q *Query) All(ctx context.Context, filter db.ActivityFilter) ([]models.ActivityLogEntry, error) {
	entries, err := q.store.FindActivities(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	return entries, nil
}

// Paginate slices entries into a 1-based page, clamping page and limit.
func Paginate(entries []models.ActivityLogEntry, page, limit int) *Page {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	total := len(entries)
	pages := (total + limit - 1) / limit

	start := total
	if page <= pages {
		start = (page - 1) * limit
	}
	end := start + limit
	if end > total {
		end = total
	}
	return &Page{
		Entries: append([]models.ActivityLogEntry{}, entries[start:end]...),
		Total:   total,
		Page:    page,
		Pages:   pages,
		Limit:   limit,
		Stats:   Summarize(entries),
	}
}

// ParseFilter reads filter fields from URL query parameters. Dates accept
// RFC3339 or YYYY-MM-DD; a bare dateTo covers the whole day.
func ParseFilter(v url.Values) (db.ActivityFilter, error) {
	f := db.ActivityFilter{
		UserID:         v.Get("userId"),
		Category:       models.ActivityCategory(v.Get("category")),
		Action:         v.Get("action"),
		UserRole:       models.UserRole(v.Get("userRole")),
		LocationSource: models.LocationSource(v.Get("locationSource")),
		City:           v.Get("city"),
	}

	if f.Category != "" && !knownCategory(f.Category) {
		return f, fmt.Errorf("unknown category %q", f.Category)
	}
	if f.UserRole != "" && !f.UserRole.Valid() {
		return f, fmt.Errorf("unknown role %q", f.UserRole)
	}
	if f.LocationSource != "" && !f.LocationSource.Valid() {
		return f, fmt.Errorf("unknown location source %q", f.LocationSource)
	}

	var err error
	if s := v.Get("dateFrom"); s != "" {
		if f.DateFrom, _, err = parseDate(s); err != nil {
			return f, fmt.Errorf("invalid dateFrom: %w", err)
		}
	}
	if s := v.Get("dateTo"); s != "" {
		var dayOnly bool
		if f.DateTo, dayOnly, err = parseDate(s); err != nil {
			return f, fmt.Errorf("invalid dateTo: %w", err)
		}
		if dayOnly {
			f.DateTo = f.DateTo.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if s := v.Get("hasLocation"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return f, fmt.Errorf("invalid hasLocation: %w", err)
		}
		f.HasLocation = &b
	}
	return f, nil
}

// ParsePage reads page and limit, falling back to defaults on bad input.
func ParsePage(v url.Values) (page, limit int) {
	page, _ = strconv.Atoi(v.Get("page"))
	limit, _ = strconv.Atoi(v.Get("limit"))
	return page, limit
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.Parse("2006-01-02", s)
	return t, true, err
}

func knownCategory(c models.ActivityCategory) bool {
	for _, k := range Categories() {
		if k == c {
			return true
		}
	}
	return false
}
