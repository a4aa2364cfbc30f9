/*
Package session implements the session reconciler.

The Reconciler keeps a single cached user consistent with exactly one remote
user document. It follows the identity session lifecycle, owns at most one live
document subscription, rejects out-of-order snapshots with an updatedAt
watermark, and falls back to a one-shot fetch when the live feed fails. The
cached user is persisted through a ports.UserCache so it survives restarts.
*/
package session
