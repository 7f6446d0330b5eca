// Package broker orchestrates the message store, topic registry, and live
// broadcast protocol.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/groblegark/relay/internal/cursor"
	"github.com/groblegark/relay/internal/events"
	"github.com/groblegark/relay/internal/idgen"
	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/registry"
	"github.com/groblegark/relay/internal/store"
)

// Broker accepts publish, subscribe, pull, and sweep requests against an
// injected store and registry.
//
// A single RWMutex gives the broker single-writer semantics: publish,
// subscribe, unsubscribe, and sweep hold the write lock, so the durable
// append and the fan-out that follows it are never interleaved with another
// mutation, and every subscriber of a topic sees messages in append order.
// Pull holds the read lock and may run concurrently with other pulls.
type Broker struct {
	mu        sync.RWMutex
	store     store.Store
	registry  *registry.Registry
	publisher events.Publisher
	retention time.Duration
	now       func() time.Time
}

// New returns a Broker with the given dependencies. A nil publisher falls
// back to the noop publisher; a zero retention falls back to the default
// 12-hour window.
func New(s store.Store, r *registry.Registry, p events.Publisher, retention time.Duration) *Broker {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	if retention <= 0 {
		retention = model.DefaultRetention
	}
	return &Broker{
		store:     s,
		registry:  r,
		publisher: p,
		retention: retention,
		now:       time.Now,
	}
}

// AuthResult is the static response of the auth stub.
type AuthResult struct {
	Success bool `json:"success"`
}

// Publish stores a new message under topic and fans it out to the topic's
// live subscribers. An empty body is replaced by the default placeholder.
// The created message is returned to the publisher as confirmation.
func (b *Broker) Publish(ctx context.Context, topic, body string) (*model.Message, error) {
	if body == "" {
		body = model.DefaultBody
	}

	id, err := idgen.Generate()
	if err != nil {
		return nil, err
	}

	now := b.now()
	msg := &model.Message{
		ID:      id,
		Time:    now.Unix(),
		Expires: now.Add(b.retention).Unix(),
		Topic:   topic,
		Message: body,
		Event:   model.EventMessage,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("publish to %s: %w", topic, err)
	}

	// Broadcast after the durable append. Fire-and-forget: a failed send is
	// equivalent to that subscriber disconnecting and never fails the publish.
	b.fanOut(topic, msg)

	if err := b.publisher.Publish(ctx, topic, msg); err != nil {
		slog.Warn("failed to mirror message", "topic", topic, "id", msg.ID, "error", err)
	}

	return msg, nil
}

// fanOut sends the serialized message to every live subscriber of exactly
// this topic. Callers hold the write lock.
func (b *Broker) fanOut(topic string, msg *model.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("failed to marshal message for broadcast", "topic", topic, "error", err)
		return
	}
	for _, conn := range b.registry.Subscribers(topic) {
		if err := conn.Send(data); err != nil {
			slog.Info("dropping subscriber after failed send",
				"topic", topic, "conn", conn.ID(), "error", err)
			b.registry.Unsubscribe(conn.ID())
			_ = conn.Close()
		}
	}
}

// Subscribe registers the connection for all named topics and sends it the
// "open" confirmation frame before any broadcast traffic can reach it.
func (b *Broker) Subscribe(conn registry.Conn, topics []string) error {
	id, err := idgen.Generate()
	if err != nil {
		return err
	}

	open := &model.Message{
		ID:    id,
		Time:  b.now().Unix(),
		Topic: strings.Join(topics, ","),
		Event: model.EventOpen,
	}
	data, err := json.Marshal(open)
	if err != nil {
		return fmt.Errorf("marshal open frame: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.registry.Subscribe(conn, topics)
	if err := conn.Send(data); err != nil {
		b.registry.Unsubscribe(conn.ID())
		return fmt.Errorf("send open frame: %w", err)
	}
	return nil
}

// Unsubscribe removes a closed or failed connection from every topic it
// joined. Asynchronous to any request; errors here are the caller's to log.
func (b *Broker) Unsubscribe(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry.Unsubscribe(connID)
}

// Pull writes the topic's historical messages selected by the since cursor
// to w as newline-delimited JSON. An unparseable cursor or one naming an
// unknown message id degrades to an empty stream, not an error.
func (b *Broker) Pull(ctx context.Context, topic, since string, w io.Writer) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	win := cursor.Parse(since, b.now())
	if win.Kind == cursor.KindID {
		ts, found, err := b.store.MessageTime(ctx, topic, win.MessageID)
		if err != nil {
			return fmt.Errorf("resolve cursor: %w", err)
		}
		if !found {
			win = cursor.None
		} else {
			win = cursor.Window{Kind: cursor.KindOrigin, Origin: ts}
		}
	}

	msgs, err := b.store.Messages(ctx, topic, win)
	if err != nil {
		return fmt.Errorf("pull %s: %w", topic, err)
	}

	enc := json.NewEncoder(w)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
	}
	return nil
}

// AuthCheck is the static auth stub. Stateless, no side effect.
func (b *Broker) AuthCheck() AuthResult {
	return AuthResult{Success: true}
}

// Sweep deletes every message that expired before now. Invoked only by the
// periodic sweeper, never by client-facing requests.
func (b *Broker) Sweep(ctx context.Context, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.store.DeleteExpired(ctx, now); err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return nil
}

// Retention returns the configured retention window.
func (b *Broker) Retention() time.Duration {
	return b.retention
}
