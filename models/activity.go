package models

import (
	"time"
)

// ActivityCategory is the coarse grouping of an activity action.
type ActivityCategory string

const (
	CategoryAuthentication ActivityCategory = "authentication"
	CategoryShift          ActivityCategory = "shift"
	CategoryBreak          ActivityCategory = "break"
	CategoryIncident       ActivityCategory = "incident"
)

// ActivityLogEntry is one immutable audit record. Actor fields are empty for
// anonymous events such as failed logins.
type ActivityLogEntry struct {
	EntryID      string                 `firestore:"entry_id" json:"id"`
	UserID       string                 `firestore:"user_id" json:"userId"`
	UserName     string                 `firestore:"user_name" json:"userName"`
	UserEmail    string                 `firestore:"user_email" json:"userEmail"`
	UserRole     UserRole               `firestore:"user_role" json:"userRole"`
	Action       string                 `firestore:"action" json:"action"`
	Category     ActivityCategory       `firestore:"category" json:"category"`
	Details      map[string]interface{} `firestore:"details" json:"details"`
	DeviceType   string                 `firestore:"device_type" json:"deviceType"`
	IPAddress    string                 `firestore:"ip_address" json:"ipAddress"`
	UserAgent    string                 `firestore:"user_agent" json:"userAgent"`
	LocationData *LocationResult        `firestore:"location_data,omitempty" json:"locationData,omitempty"`
	Timestamp    time.Time              `firestore:"timestamp" json:"timestamp"`
}
