package domain

// SessionStatus is the auth lifecycle state reported by the identity provider.
type SessionStatus string

const (
	StatusPending         SessionStatus = "pending"
	StatusAuthenticated   SessionStatus = "authenticated"
	StatusUnauthenticated SessionStatus = "unauthenticated"
)

// Valid reports whether s is one of the known lifecycle states.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAuthenticated, StatusUnauthenticated:
		return true
	}
	return false
}

// Identity is a point-in-time view of the identity session.
// SubjectID is only meaningful when Status is StatusAuthenticated.
type Identity struct {
	Status    SessionStatus `json:"status"`
	SubjectID string        `json:"subject_id,omitempty"`
}

// Pending returns an identity in the pending state.
func Pending() Identity {
	return Identity{Status: StatusPending}
}

// Authenticated returns an identity for the given subject.
func Authenticated(subjectID string) Identity {
	return Identity{Status: StatusAuthenticated, SubjectID: subjectID}
}

// Unauthenticated returns a signed-out identity.
func Unauthenticated() Identity {
	return Identity{Status: StatusUnauthenticated}
}
