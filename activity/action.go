package activity

import (
	"guardpost/models"
	"strings"
)

// Action is a taxonomy-constrained activity action name.
type Action string

const (
	ActionLogin          Action = "login"
	ActionLoginFailed    Action = "login_failed"
	ActionLogout         Action = "logout"
	ActionStartShift     Action = "start_shift"
	ActionEndShift       Action = "end_shift"
	ActionStartBreak     Action = "start_break"
	ActionStartLunch     Action = "start_lunch"
	ActionEndBreak       Action = "end_break"
	ActionEndLunch       Action = "end_lunch"
	ActionCreateIncident Action = "create_incident"
	ActionViewIncident   Action = "view_incident"
)

const failedSuffix = "_failed"

var categories = map[Action]models.ActivityCategory{
	ActionLogin:          models.CategoryAuthentication,
	ActionLoginFailed:    models.CategoryAuthentication,
	ActionLogout:         models.CategoryAuthentication,
	ActionStartShift:     models.CategoryShift,
	ActionEndShift:       models.CategoryShift,
	ActionStartBreak:     models.CategoryBreak,
	ActionStartLunch:     models.CategoryBreak,
	ActionEndBreak:       models.CategoryBreak,
	ActionEndLunch:       models.CategoryBreak,
	ActionCreateIncident: models.CategoryIncident,
	ActionViewIncident:   models.CategoryIncident,
}

// Failed returns the "{action}_failed" counterpart of a.
func (a Action) Failed() Action {
	if a.IsFailure() {
		return a
	}
	return a + failedSuffix
}

// IsFailure reports whether a names a failed attempt.
func (a Action) IsFailure() bool {
	return strings.HasSuffix(string(a), failedSuffix)
}

// Category returns the category for a known action, including the failure
// variants of known actions.
func (a Action) Category() (models.ActivityCategory, bool) {
	if c, ok := categories[a]; ok {
		return c, true
	}
	if a.IsFailure() {
		c, ok := categories[Action(strings.TrimSuffix(string(a), failedSuffix))]
		return c, ok
	}
	return "", false
}

// StartBreakAction picks start_break or start_lunch.
func StartBreakAction(t models.BreakType) Action {
	if t == models.BreakLunch {
		return ActionStartLunch
	}
	return ActionStartBreak
}

// EndBreakAction picks end_break or end_lunch.
func EndBreakAction(t models.BreakType) Action {
	if t == models.BreakLunch {
		return ActionEndLunch
	}
	return ActionEndBreak
}

// Categories lists every category, for filter validation.
func Categories() []models.ActivityCategory {
	return []models.ActivityCategory{
		models.CategoryAuthentication,
		models.CategoryShift,
		models.CategoryBreak,
		models.CategoryIncident,
	}
}
