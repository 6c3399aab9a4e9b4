// user.go
// Staff accounts and the identity snapshot carried into shifts and activity entries.

package models

import (
	"time"
)

// UserRole defines the access level of a user.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleManager UserRole = "MANAGER"
	RoleGuard   UserRole = "GUARD"
)

// Valid reports whether the role is one the service knows about.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleGuard:
		return true
	}
	return false
}

// User represents an authenticated staff member.
type User struct {
	UserID    string    `firestore:"user_id" json:"user_id"`
	Name      string    `firestore:"name" json:"name"`
	Email     string    `firestore:"email" json:"email"`
	Role      UserRole  `firestore:"role" json:"role"`
	Active    bool      `firestore:"active" json:"active"`
	CreatedAt time.Time `firestore:"created_at" json:"created_at"`
	LastLogin time.Time `firestore:"last_login" json:"last_login"`
}

// Identity returns the denormalized actor snapshot for this user.
func (u *User) Identity() Identity {
	if u == nil {
		return Identity{}
	}
	return Identity{
		UserID:    u.UserID,
		UserName:  u.Name,
		UserEmail: u.Email,
		UserRole:  u.Role,
	}
}

// Identity is the {id, name, email, role} snapshot resolved from the session.
// The zero value is the anonymous actor used for failed authentication.
type Identity struct {
	UserID    string   `json:"userId"`
	UserName  string   `json:"userName"`
	UserEmail string   `json:"userEmail"`
	UserRole  UserRole `json:"userRole"`
}

// Anonymous reports whether no user could be resolved.
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}

// RequestMeta is the device information derived from the originating request.
type RequestMeta struct {
	DeviceType string `json:"deviceType"`
	IPAddress  string `json:"ipAddress"`
	UserAgent  string `json:"userAgent"`
}
