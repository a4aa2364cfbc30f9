/*
Package ports defines the driven ports (interfaces) for the rentsync session core.

These interfaces decouple the reconciler from the identity provider, the remote
document store and the local cache, so the same core runs against memory,
Redis, Postgres or Loam backends.

# Key Interfaces

  - IdentitySource: Streams identity session transitions.
  - DocumentFeed: Opens a live subscription on one user document.
  - DocumentFetcher: Reads one user document once (fallback path).
  - DocumentWriter: Writes user documents (seeding and admin tooling).
  - UserCache: Persists the single cached-user slot across restarts.
  - DistributedLocker: Serialises writers across replicas.
*/
package ports
