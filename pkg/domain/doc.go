/*
Package domain contains the core models of the rentsync session core.

It defines the identity session observed from the auth provider, the user
record kept in the remote document store, the tagged snapshot shape delivered
by document feeds, and the cached view exposed to the UI layer. The package is
kept free of I/O so adapters and the reconciler can share it.

# Key Entities

  - Identity: the auth provider's lifecycle state and subject id.
  - UserRecord: the canonical profile document for one subject.
  - Snapshot: a decoded document read, either present (with a record) or absent.
  - FeedEvent: one delivery from a live subscription, or a terminal transport error.
  - CachedUser: the {user, isLoading} pair consumers read.
*/
package domain
