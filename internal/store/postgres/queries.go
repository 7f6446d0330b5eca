package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/groblegark/relay/internal/cursor"
	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/store"
)

// messageColumns is the column list used for SELECT statements on the
// messages table.
const messageColumns = `id, time, expires, topic, message`

// uniqueViolation is the PostgreSQL error code for a unique constraint
// violation.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryAppendMessage(ctx context.Context, db executor, m *model.Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, time, expires, topic, message)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Time, m.Expires, m.Topic, m.Message,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("append %s/%s: %w", m.Topic, m.ID, store.ErrDuplicateID)
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// queryMessages selects the messages of a topic within a window. Rows come
// back in insertion order; callers depend on the absence of an ORDER BY.
func queryMessages(ctx context.Context, db executor, topic string, w cursor.Window) ([]*model.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)

	switch w.Kind {
	case cursor.KindAll:
		rows, err = db.QueryContext(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE topic = $1`, topic)
	case cursor.KindOrigin:
		rows, err = db.QueryContext(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE topic = $1 AND time >= $2`,
			topic, w.Origin)
	default:
		// KindNone, or an unresolved KindID: nothing matches.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

func queryMessageTime(ctx context.Context, db executor, topic, id string) (int64, bool, error) {
	var ts int64
	err := db.QueryRowContext(ctx,
		`SELECT time FROM messages WHERE topic = $1 AND id = $2`,
		topic, id).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup message time: %w", err)
	}
	return ts, true, nil
}

func queryDeleteExpired(ctx context.Context, db executor, now time.Time) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM messages WHERE expires < $1`, now.Unix())
	if err != nil {
		return fmt.Errorf("delete expired: %w", err)
	}
	return nil
}

func queryExportMessages(ctx context.Context, db executor) ([]*model.Message, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages`)
	if err != nil {
		return nil, fmt.Errorf("export messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// scanMessage scans one row of messageColumns. Every message read back from
// the store is tagged with the "message" event type.
func scanMessage(rows *sql.Rows) (*model.Message, error) {
	m := &model.Message{Event: model.EventMessage}
	if err := rows.Scan(&m.ID, &m.Time, &m.Expires, &m.Topic, &m.Message); err != nil {
		return nil, err
	}
	return m, nil
}
