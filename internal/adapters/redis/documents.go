package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/rentsync/internal/adapters/stream"
	"github.com/aretw0/rentsync/internal/dto"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// change is the message published on a document's channel.
type change struct {
	Deleted bool            `json:"deleted,omitempty"`
	User    json.RawMessage `json:"user,omitempty"`
}

// DocumentStore keeps user documents as JSON strings and announces every write
// on a per-document Pub/Sub channel.
type DocumentStore struct {
	client *backend.Client
	prefix string
	logger *slog.Logger
}

// NewDocumentStore creates a Redis document store from an existing client.
func NewDocumentStore(client *backend.Client, opts ...Option) *DocumentStore {
	o := buildOptions("rentsync:user:", opts)
	return &DocumentStore{
		client: client,
		prefix: o.prefix,
		logger: o.logger,
	}
}

func (s *DocumentStore) key(subjectID string) string {
	return s.prefix + subjectID
}

func (s *DocumentStore) channel(subjectID string) string {
	return s.prefix + "changes:" + subjectID
}

// Fetch reads the current document once.
func (s *DocumentStore) Fetch(ctx context.Context, subjectID string) (domain.Snapshot, error) {
	val, err := s.client.Get(ctx, s.key(subjectID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.Missing(), nil
		}
		return domain.Snapshot{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	user, err := dto.UnmarshalUser(val)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Found(user), nil
}

// Put stores user and publishes the new revision in one round trip.
func (s *DocumentStore) Put(ctx context.Context, user domain.UserRecord) error {
	if user.ID == "" {
		return fmt.Errorf("%w: missing id", domain.ErrInvalidDocument)
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	msg, err := json.Marshal(change{User: data})
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	_, err = s.client.Pipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, s.key(user.ID), data, 0)
		pipe.Publish(ctx, s.channel(user.ID), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Delete removes the document and publishes a deletion.
func (s *DocumentStore) Delete(ctx context.Context, subjectID string) error {
	n, err := s.client.Del(ctx, s.key(subjectID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	if n == 0 {
		return domain.ErrDocumentNotFound
	}

	msg, _ := json.Marshal(change{Deleted: true})
	if err := s.client.Publish(ctx, s.channel(subjectID), msg).Err(); err != nil {
		return fmt.Errorf("failed to publish deletion: %w", err)
	}
	return nil
}

// Subscribe listens on the document's channel, then delivers the current
// document followed by every published change. Reading the document after
// the subscription is confirmed means no write can fall in between.
func (s *DocumentStore) Subscribe(ctx context.Context, subjectID string) (ports.Subscription, error) {
	ps := s.client.Subscribe(ctx, s.channel(subjectID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subjectID, err)
	}

	initial, err := s.Fetch(ctx, subjectID)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := stream.New(ps.Close)
	go s.pump(ctx, sub, ps, initial)
	return sub, nil
}

func (s *DocumentStore) pump(ctx context.Context, sub *stream.Subscription, ps *backend.PubSub, initial domain.Snapshot) {
	defer sub.Finish()

	if !sub.Emit(ctx, domain.FeedEvent{Snapshot: initial}) {
		return
	}

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			sub.Fail(ctx, fmt.Errorf("redis subscription lost: %w", err))
			return
		}

		snap, err := decodeChange(msg.Payload)
		if err != nil {
			s.logger.Warn("Malformed change message", "channel", msg.Channel, "err", err)
			sub.Fail(ctx, err)
			return
		}
		if !sub.Emit(ctx, domain.FeedEvent{Snapshot: snap}) {
			return
		}
	}
}

func decodeChange(payload string) (domain.Snapshot, error) {
	var c change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}
	if c.Deleted {
		return domain.Missing(), nil
	}
	user, err := dto.UnmarshalUser(c.User)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Found(user), nil
}
