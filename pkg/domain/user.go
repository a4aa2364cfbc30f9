package domain

import (
	"strings"
	"time"
)

// RoleAdmin marks users allowed to manage the car fleet.
const RoleAdmin = "admin"

// UserRecord is the canonical profile document, keyed by the identity subject id.
// UpdatedAt is expressed in unix milliseconds.
type UserRecord struct {
	ID            string `json:"id"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Email         string `json:"email,omitempty"`
	Image         string `json:"image,omitempty"`
	Role          string `json:"role,omitempty"`
	Phone         string `json:"phone,omitempty"`
	EmailVerified bool   `json:"emailVerified,omitempty"`
	VerifiedAt    int64  `json:"verifiedAt,omitempty"`
	CreatedAt     int64  `json:"createdAt,omitempty"`
	UpdatedAt     int64  `json:"updatedAt"`
}

// FullName joins the first and last name, skipping empty parts.
func (u UserRecord) FullName() string {
	return strings.TrimSpace(strings.Join([]string{u.FirstName, u.LastName}, " "))
}

// IsAdmin reports whether the user carries the admin role.
func (u UserRecord) IsAdmin() bool {
	return strings.EqualFold(u.Role, RoleAdmin)
}

// NextUpdatedAt returns the timestamp a writer should stamp on a new revision.
// It never goes backwards, even when the local clock does.
func NextUpdatedAt(previous int64, now time.Time) int64 {
	ms := now.UnixMilli()
	if ms <= previous {
		return previous + 1
	}
	return ms
}

// CachedUser is what the UI currently believes about the user.
type CachedUser struct {
	User      *UserRecord `json:"user"`
	IsLoading bool        `json:"isLoading"`
}
