package models

import (
	"time"
)

// ShiftStatus is the persisted lifecycle status of a shift.
type ShiftStatus string

const (
	ShiftActive    ShiftStatus = "active"
	ShiftCompleted ShiftStatus = "completed"
)

// BreakType distinguishes short breaks from lunch.
type BreakType string

const (
	BreakShort BreakType = "break"
	BreakLunch BreakType = "lunch"
)

// Valid reports whether t is a known break type.
func (t BreakType) Valid() bool {
	return t == BreakShort || t == BreakLunch
}

// BreakEntry is one break inside a shift. EndTime is nil while the break is open.
type BreakEntry struct {
	Type      BreakType  `firestore:"type" json:"type"`
	StartTime time.Time  `firestore:"start_time" json:"startTime"`
	EndTime   *time.Time `firestore:"end_time" json:"endTime"`
}

// Open reports whether the break has not been ended yet.
func (b BreakEntry) Open() bool {
	return b.EndTime == nil
}

// PhotoSlot names the evidence attachment point on a shift.
type PhotoSlot string

const (
	SlotCheckIn  PhotoSlot = "checkInPhoto"
	SlotCheckOut PhotoSlot = "checkOutPhoto"
)

// Valid reports whether s is a known slot.
func (s PhotoSlot) Valid() bool {
	return s == SlotCheckIn || s == SlotCheckOut
}

// PhotoRef references evidence held by the file storage collaborator.
type PhotoRef struct {
	Path       string    `firestore:"path" json:"path"`
	ID         string    `firestore:"id" json:"id"`
	Size       int64     `firestore:"size" json:"size"`
	MimeType   string    `firestore:"mime_type" json:"mimeType"`
	Type       string    `firestore:"type" json:"type"`
	UploadedAt time.Time `firestore:"uploaded_at" json:"uploadedAt"`
}

// Shift is one duty period for a guard. CheckOutTime is nil while the shift
// is active; at most one such shift exists per guard.
type Shift struct {
	ShiftID    string `firestore:"shift_id" json:"id"`
	GuardID    string `firestore:"guard_id" json:"guardId"`
	GuardName  string `firestore:"guard_name" json:"guardName"`
	GuardEmail string `firestore:"guard_email" json:"guardEmail"`

	CheckInTime  time.Time    `firestore:"check_in_time" json:"checkInTime"`
	CheckOutTime *time.Time   `firestore:"check_out_time" json:"checkOutTime"`
	Status       ShiftStatus  `firestore:"status" json:"status"`
	Breaks       []BreakEntry `firestore:"breaks" json:"breaks"`

	Location   string `firestore:"location" json:"location"`
	StartNotes string `firestore:"start_notes" json:"startNotes"`
	Notes      string `firestore:"notes" json:"notes"`

	CheckInPhoto      *PhotoRef       `firestore:"check_in_photo,omitempty" json:"checkInPhoto,omitempty"`
	CheckOutPhoto     *PhotoRef       `firestore:"check_out_photo,omitempty" json:"checkOutPhoto,omitempty"`
	StartLocationData *LocationResult `firestore:"start_location_data,omitempty" json:"startLocationData,omitempty"`
	EndLocationData   *LocationResult `firestore:"end_location_data,omitempty" json:"endLocationData,omitempty"`

	// ShiftDuration is frozen at checkout, in whole minutes.
	ShiftDuration *int   `firestore:"shift_duration" json:"shiftDuration"`
	ClosedBy      string `firestore:"closed_by,omitempty" json:"closedBy,omitempty"`

	CreatedAt time.Time `firestore:"created_at" json:"createdAt"`
	UpdatedAt time.Time `firestore:"updated_at" json:"updatedAt"`
}

// Active reports whether the shift has no checkout yet.
func (s *Shift) Active() bool {
	return s.CheckOutTime == nil
}

// OpenBreak returns the index of the open break, or -1.
func (s *Shift) OpenBreak() int {
	for i := range s.Breaks {
		if s.Breaks[i].Open() {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the shift.
func (s *Shift) Clone() *Shift {
	if s == nil {
		return nil
	}
	c := *s
	if s.CheckOutTime != nil {
		t := *s.CheckOutTime
		c.CheckOutTime = &t
	}
	if s.Breaks != nil {
		c.Breaks = make([]BreakEntry, len(s.Breaks))
		for i, b := range s.Breaks {
			c.Breaks[i] = b
			if b.EndTime != nil {
				t := *b.EndTime
				c.Breaks[i].EndTime = &t
			}
		}
	}
	if s.ShiftDuration != nil {
		d := *s.ShiftDuration
		c.ShiftDuration = &d
	}
	if s.CheckInPhoto != nil {
		p := *s.CheckInPhoto
		c.CheckInPhoto = &p
	}
	if s.CheckOutPhoto != nil {
		p := *s.CheckOutPhoto
		c.CheckOutPhoto = &p
	}
	c.StartLocationData = s.StartLocationData.Clone()
	c.EndLocationData = s.EndLocationData.Clone()
	return &c
}
