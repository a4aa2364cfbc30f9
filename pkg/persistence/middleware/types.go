// Package middleware decorates a ports.UserCache with behavior applied to
// every persisted user, such as field encryption and PII redaction.
package middleware

import "github.com/aretw0/rentsync/pkg/ports"

// Middleware allows wrapping a UserCache to add behavior.
type Middleware func(ports.UserCache) ports.UserCache

// Chain wraps next with mws. The first middleware is the outermost, so it
// sees a Save first and a Load last.
func Chain(next ports.UserCache, mws ...Middleware) ports.UserCache {
	for i := len(mws) - 1; i >= 0; i-- {
		next = mws[i](next)
	}
	return next
}
