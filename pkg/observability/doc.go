/*
Package observability provides lifecycle hooks for monitoring the session reconciler.

It includes structured logging hooks, Prometheus metrics and Sentry error reporting.
Hooks compose with domain.LifecycleHooks.Merge and are installed with
session.WithLifecycleHooks.
*/
package observability
