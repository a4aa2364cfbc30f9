/*
Package rentsync keeps a car-rental client's signed-in user profile in sync with
the remote document that owns it.

The identity provider reports a session (pending, authenticated or
unauthenticated). The document store holds one profile per subject and pushes
every revision over a live feed. rentsync reconciles the two into a single
locally persisted cached user that the UI can render without waiting for the
network.

# Guarantees

  - At most one live subscription is open at any time.
  - Revisions are ordered by their updatedAt timestamp; a snapshot older than
    the last applied one is discarded, so redelivered or reordered events never
    roll the profile back.
  - Re-entering the same authenticated session is a no-op.
  - Sign-out closes the subscription and clears the persisted cache; callbacks
    that arrive afterwards are ignored.
  - A transport error closes the subscription and performs exactly one
    fallback fetch.

# Usage

The default client stores documents as Markdown files with YAML frontmatter
(Loam). Any ports.DocumentSource can be injected instead.

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/rentsync"
		"github.com/aretw0/rentsync/pkg/adapters/memory"
		"github.com/aretw0/rentsync/pkg/domain"
	)

	func main() {
		ctx := context.Background()
		ids := memory.NewIdentityBroadcaster()

		client, err := rentsync.New("./users")
		if err != nil {
			log.Fatal(err)
		}
		defer client.Close()

		go client.Run(ctx, ids)
		ids.Set(domain.Authenticated("u1"))

		state := client.State()
		log.Println(state.User, state.IsLoading)
	}
*/
package rentsync
