package domain

import "errors"

// ErrCacheMiss is returned by a UserCache when the slot holds no user.
var ErrCacheMiss = errors.New("cached user not found")

// ErrDocumentNotFound is returned by writers when the target document does not exist.
var ErrDocumentNotFound = errors.New("user document not found")

// ErrSubscriptionClosed is returned when operating on a subscription after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// ErrInvalidToken is returned when an identity token cannot be verified.
var ErrInvalidToken = errors.New("invalid identity token")

// ErrInvalidDocument is returned when a document's fields cannot be decoded into a UserRecord.
var ErrInvalidDocument = errors.New("invalid user document")
