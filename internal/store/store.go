package store

import (
	"context"
	"errors"
	"time"

	"github.com/groblegark/relay/internal/cursor"
	"github.com/groblegark/relay/internal/model"
)

// ErrDuplicateID is returned by AppendMessage when a message with the same
// (id, topic) pair already exists. The broker treats this as a storage fault
// for the request; no retry, no id regeneration.
var ErrDuplicateID = errors.New("store: duplicate message id for topic")

// Store defines the persistence interface for the message log.
type Store interface {
	// AppendMessage persists a new message.
	AppendMessage(ctx context.Context, msg *model.Message) error

	// Messages returns the messages of a topic selected by the window, in
	// insertion order.
	Messages(ctx context.Context, topic string, w cursor.Window) ([]*model.Message, error)

	// MessageTime looks up the publish time of a message by id within a
	// topic. A missing id yields found=false, not an error.
	MessageTime(ctx context.Context, topic, id string) (ts int64, found bool, err error)

	// DeleteExpired removes, across all topics, every message whose expiry
	// is before now.
	DeleteExpired(ctx context.Context, now time.Time) error

	// ExportMessages returns every retained message, for backup export.
	ExportMessages(ctx context.Context) ([]*model.Message, error)

	// Lifecycle
	Close() error
}
