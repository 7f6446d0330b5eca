package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/groblegark/relay/internal/cursor"
	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and
// expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var messageRowColumns = []string{"id", "time", "expires", "topic", "message"}

func TestAppendMessage(t *testing.T) {
	db, mock := newMockDB(t)

	m := &model.Message{
		ID:      "aB3dE5fG7hI9",
		Time:    1700000000,
		Expires: 1700043200,
		Topic:   "news",
		Message: "hello",
	}

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(m.ID, m.Time, m.Expires, m.Topic, m.Message).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryAppendMessage(context.Background(), db, m); err != nil {
		t.Fatalf("queryAppendMessage() error: %v", err)
	}
}

func TestAppendMessage_DuplicateID(t *testing.T) {
	db, mock := newMockDB(t)

	m := &model.Message{ID: "aB3dE5fG7hI9", Topic: "news"}

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(m.ID, m.Time, m.Expires, m.Topic, m.Message).
		WillReturnError(&pq.Error{Code: "23505"})

	err := queryAppendMessage(context.Background(), db, m)
	if !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("queryAppendMessage() error = %v, want ErrDuplicateID", err)
	}
}

func TestQueryMessages_All(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows(messageRowColumns).
		AddRow("aaaaaaaaaaaa", int64(1700000000), int64(1700043200), "news", "first").
		AddRow("bbbbbbbbbbbb", int64(1700000100), int64(1700043300), "news", "second")

	mock.ExpectQuery("SELECT id, time, expires, topic, message FROM messages WHERE topic = \\$1$").
		WithArgs("news").
		WillReturnRows(rows)

	msgs, err := queryMessages(context.Background(), db, "news", cursor.All)
	if err != nil {
		t.Fatalf("queryMessages() error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("queryMessages() returned %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "aaaaaaaaaaaa" || msgs[1].ID != "bbbbbbbbbbbb" {
		t.Errorf("messages out of insertion order: %q, %q", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].Event != model.EventMessage {
		t.Errorf("event = %q, want %q", msgs[0].Event, model.EventMessage)
	}
}

func TestQueryMessages_Origin(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows(messageRowColumns).
		AddRow("bbbbbbbbbbbb", int64(1700000100), int64(1700043300), "news", "second")

	mock.ExpectQuery("SELECT id, time, expires, topic, message FROM messages WHERE topic = \\$1 AND time >= \\$2").
		WithArgs("news", int64(1700000050)).
		WillReturnRows(rows)

	w := cursor.Window{Kind: cursor.KindOrigin, Origin: 1700000050}
	msgs, err := queryMessages(context.Background(), db, "news", w)
	if err != nil {
		t.Fatalf("queryMessages() error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "bbbbbbbbbbbb" {
		t.Fatalf("queryMessages() = %+v, want single message bbbbbbbbbbbb", msgs)
	}
}

func TestQueryMessages_NoneHitsNoSQL(t *testing.T) {
	db, _ := newMockDB(t)

	// KindNone and unresolved KindID windows short-circuit without touching
	// the database; sqlmock would flag any unexpected query.
	msgs, err := queryMessages(context.Background(), db, "news", cursor.None)
	if err != nil {
		t.Fatalf("queryMessages() error: %v", err)
	}
	if msgs != nil {
		t.Fatalf("queryMessages() = %+v, want nil", msgs)
	}

	w := cursor.Window{Kind: cursor.KindID, MessageID: "cccccccccccc"}
	msgs, err = queryMessages(context.Background(), db, "news", w)
	if err != nil {
		t.Fatalf("queryMessages() error: %v", err)
	}
	if msgs != nil {
		t.Fatalf("queryMessages() = %+v, want nil", msgs)
	}
}

func TestQueryMessageTime(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT time FROM messages WHERE topic = \\$1 AND id = \\$2").
		WithArgs("news", "aaaaaaaaaaaa").
		WillReturnRows(sqlmock.NewRows([]string{"time"}).AddRow(int64(1700000000)))

	ts, found, err := queryMessageTime(context.Background(), db, "news", "aaaaaaaaaaaa")
	if err != nil {
		t.Fatalf("queryMessageTime() error: %v", err)
	}
	if !found || ts != 1700000000 {
		t.Errorf("queryMessageTime() = (%d, %v), want (1700000000, true)", ts, found)
	}
}

func TestQueryMessageTime_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT time FROM messages WHERE topic = \\$1 AND id = \\$2").
		WithArgs("news", "zzzzzzzzzzzz").
		WillReturnRows(sqlmock.NewRows([]string{"time"}))

	_, found, err := queryMessageTime(context.Background(), db, "news", "zzzzzzzzzzzz")
	if err != nil {
		t.Fatalf("queryMessageTime() error: %v", err)
	}
	if found {
		t.Error("queryMessageTime() found = true for missing id")
	}
}

func TestQueryDeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Unix(1700000000, 0)
	mock.ExpectExec("DELETE FROM messages WHERE expires < \\$1").
		WithArgs(now.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := queryDeleteExpired(context.Background(), db, now); err != nil {
		t.Fatalf("queryDeleteExpired() error: %v", err)
	}
}

func TestQueryExportMessages(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows(messageRowColumns).
		AddRow("aaaaaaaaaaaa", int64(1700000000), int64(1700043200), "news", "first").
		AddRow("cccccccccccc", int64(1700000200), int64(1700043400), "alerts", "third")

	mock.ExpectQuery("SELECT id, time, expires, topic, message FROM messages$").
		WillReturnRows(rows)

	msgs, err := queryExportMessages(context.Background(), db)
	if err != nil {
		t.Fatalf("queryExportMessages() error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("queryExportMessages() returned %d messages, want 2", len(msgs))
	}
	if msgs[1].Topic != "alerts" {
		t.Errorf("second message topic = %q, want %q", msgs[1].Topic, "alerts")
	}
}
