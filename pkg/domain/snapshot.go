package domain

// Snapshot is a single read of a user document.
// When Exists is false, User is the zero value and must be ignored.
type Snapshot struct {
	Exists bool
	User   UserRecord
}

// Found wraps a present document.
func Found(user UserRecord) Snapshot {
	return Snapshot{Exists: true, User: user}
}

// Missing describes a document that was deleted or never created.
func Missing() Snapshot {
	return Snapshot{}
}

// FeedEvent is one delivery from a live subscription.
// A non-nil Err is a transport failure and ends the subscription.
type FeedEvent struct {
	Snapshot Snapshot
	Err      error
}
