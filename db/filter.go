package db

import (
	"guardpost/models"
	"strings"
	"time"
)

// ActivityFilter selects activity entries. Zero fields do not filter.
type ActivityFilter struct {
	UserID         string
	Category       models.ActivityCategory
	Action         string
	UserRole       models.UserRole
	DateFrom       time.Time
	DateTo         time.Time
	HasLocation    *bool
	LocationSource models.LocationSource
	City           string
}

// Matches reports whether entry satisfies every set field of the filter.
// City matches case-insensitively on a substring.
func (f ActivityFilter) Matches(entry *models.ActivityLogEntry) bool {
	if f.UserID != "" && entry.UserID != f.UserID {
		return false
	}
	if f.Category != "" && entry.Category != f.Category {
		return false
	}
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if f.UserRole != "" && entry.UserRole != f.UserRole {
		return false
	}
	if !f.DateFrom.IsZero() && entry.Timestamp.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && entry.Timestamp.After(f.DateTo) {
		return false
	}
	if f.HasLocation != nil && (entry.LocationData != nil) != *f.HasLocation {
		return false
	}
	if f.LocationSource != "" {
		if entry.LocationData == nil || entry.LocationData.Source != f.LocationSource {
			return false
		}
	}
	if f.City != "" {
		if entry.LocationData == nil ||
			!strings.Contains(strings.ToLower(entry.LocationData.City), strings.ToLower(f.City)) {
			return false
		}
	}
	return true
}
