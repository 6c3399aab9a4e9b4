package activity

import (
	"fmt"
	"guardpost/models"
)

// Details is the closed set of per-action payloads. The unexported method
// keeps implementations inside this package.
type Details interface {
	allows(a Action) bool
	Fields() map[string]interface{}
}

// FormatDuration renders whole minutes as "{h}h {m}m".
func FormatDuration(minutes int) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// ShiftStarted accompanies start_shift.
type ShiftStarted struct {
	ShiftID  string
	Location string
	Notes    string
}

func (ShiftStarted) allows(a Action) bool { return a == ActionStartShift }

func (d ShiftStarted) Fields() map[string]interface{} {
	return map[string]interface{}{
		"shiftId":  d.ShiftID,
		"location": d.Location,
		"notes":    d.Notes,
	}
}

// ShiftEnded accompanies end_shift. EndedBy differs from the guard on a
// management override.
type ShiftEnded struct {
	ShiftID         string
	GuardID         string
	EndedBy         string
	DurationMinutes int
	Notes           string
	OpenBreakClosed bool
}

func (ShiftEnded) allows(a Action) bool { return a == ActionEndShift }

func (d ShiftEnded) Fields() map[string]interface{} {
	return map[string]interface{}{
		"shiftId":         d.ShiftID,
		"guardId":         d.GuardID,
		"endedBy":         d.EndedBy,
		"duration":        FormatDuration(d.DurationMinutes),
		"durationMinutes": d.DurationMinutes,
		"notes":           d.Notes,
		"openBreakClosed": d.OpenBreakClosed,
	}
}

// BreakStarted accompanies start_break and start_lunch.
type BreakStarted struct {
	ShiftID   string
	BreakType models.BreakType
}

func (BreakStarted) allows(a Action) bool { return a == ActionStartBreak || a == ActionStartLunch }

func (d BreakStarted) Fields() map[string]interface{} {
	return map[string]interface{}{
		"shiftId":   d.ShiftID,
		"breakType": string(d.BreakType),
	}
}

// BreakEnded accompanies end_break and end_lunch.
type BreakEnded struct {
	ShiftID         string
	BreakType       models.BreakType
	DurationMinutes int
}

func (BreakEnded) allows(a Action) bool { return a == ActionEndBreak || a == ActionEndLunch }

func (d BreakEnded) Fields() map[string]interface{} {
	return map[string]interface{}{
		"shiftId":         d.ShiftID,
		"breakType":       string(d.BreakType),
		"duration":        fmt.Sprintf("%d minutes", d.DurationMinutes),
		"durationMinutes": d.DurationMinutes,
	}
}

// ActionFailed accompanies every "{action}_failed" entry.
type ActionFailed struct {
	Error   string
	Code    string
	GuardID string
	Email   string
}

func (ActionFailed) allows(a Action) bool { return a.IsFailure() }

func (d ActionFailed) Fields() map[string]interface{} {
	f := map[string]interface{}{"error": d.Error}
	if d.Code != "" {
		f["code"] = d.Code
	}
	if d.GuardID != "" {
		f["guardId"] = d.GuardID
	}
	if d.Email != "" {
		f["email"] = d.Email
	}
	return f
}

// LoginSucceeded accompanies login.
type LoginSucceeded struct {
	Email string
}

func (LoginSucceeded) allows(a Action) bool { return a == ActionLogin }

func (d LoginSucceeded) Fields() map[string]interface{} {
	return map[string]interface{}{"email": d.Email}
}

// LoggedOut accompanies logout.
type LoggedOut struct{}

func (LoggedOut) allows(a Action) bool { return a == ActionLogout }

func (LoggedOut) Fields() map[string]interface{} { return map[string]interface{}{} }

// IncidentDetails accompanies create_incident and view_incident.
type IncidentDetails struct {
	IncidentID string
	Title      string
	Recipients int
}

func (IncidentDetails) allows(a Action) bool {
	return a == ActionCreateIncident || a == ActionViewIncident
}

func (d IncidentDetails) Fields() map[string]interface{} {
	return map[string]interface{}{
		"incidentId": d.IncidentID,
		"title":      d.Title,
		"recipients": d.Recipients,
	}
}
