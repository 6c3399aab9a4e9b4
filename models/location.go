package models

import (
	"time"
)

// LocationSource records which resolver step produced a location.
type LocationSource string

const (
	SourceGPS    LocationSource = "gps"
	SourceIP     LocationSource = "ip"
	SourceManual LocationSource = "manual"
)

// Valid reports whether s is one of the known sources.
func (s LocationSource) Valid() bool {
	switch s {
	case SourceGPS, SourceIP, SourceManual:
		return true
	}
	return false
}

// LocationResult is a best-effort resolved location. It is embedded wherever
// a location is recorded and never stored on its own.
//
// A result either carries Error or carries Source; Error and coordinates are
// mutually exclusive.
type LocationResult struct {
	Source    LocationSource `firestore:"source,omitempty" json:"source,omitempty"`
	Latitude  *float64       `firestore:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude *float64       `firestore:"longitude,omitempty" json:"longitude,omitempty"`
	Accuracy  *float64       `firestore:"accuracy,omitempty" json:"accuracy,omitempty"` // meters
	Address   string         `firestore:"address,omitempty" json:"address,omitempty"`
	City      string         `firestore:"city,omitempty" json:"city,omitempty"`
	Country   string         `firestore:"country,omitempty" json:"country,omitempty"`
	Error     string         `firestore:"error,omitempty" json:"error,omitempty"`
	Timestamp time.Time      `firestore:"timestamp" json:"timestamp"`
}

// HasCoordinates reports whether both latitude and longitude are present.
func (l *LocationResult) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// Float returns a pointer to v, for building LocationResult literals.
func Float(v float64) *float64 {
	return &v
}

// Clone returns a deep copy of the result.
func (l *LocationResult) Clone() *LocationResult {
	if l == nil {
		return nil
	}
	c := *l
	if l.Latitude != nil {
		c.Latitude = Float(*l.Latitude)
	}
	if l.Longitude != nil {
		c.Longitude = Float(*l.Longitude)
	}
	if l.Accuracy != nil {
		c.Accuracy = Float(*l.Accuracy)
	}
	return &c
}
