package broker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/groblegark/relay/internal/cursor"
	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/registry"
	"github.com/groblegark/relay/internal/store"
)

// memStore is an in-memory store.Store used by broker tests. It preserves
// insertion order the way the real store does.
type memStore struct {
	msgs []*model.Message
}

func (s *memStore) AppendMessage(_ context.Context, m *model.Message) error {
	for _, existing := range s.msgs {
		if existing.ID == m.ID && existing.Topic == m.Topic {
			return store.ErrDuplicateID
		}
	}
	cp := *m
	s.msgs = append(s.msgs, &cp)
	return nil
}

func (s *memStore) Messages(_ context.Context, topic string, w cursor.Window) ([]*model.Message, error) {
	var out []*model.Message
	for _, m := range s.msgs {
		if m.Topic != topic {
			continue
		}
		switch w.Kind {
		case cursor.KindAll:
		case cursor.KindOrigin:
			if m.Time < w.Origin {
				continue
			}
		default:
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *memStore) MessageTime(_ context.Context, topic, id string) (int64, bool, error) {
	for _, m := range s.msgs {
		if m.Topic == topic && m.ID == id {
			return m.Time, true, nil
		}
	}
	return 0, false, nil
}

func (s *memStore) DeleteExpired(_ context.Context, now time.Time) error {
	kept := s.msgs[:0]
	for _, m := range s.msgs {
		if m.Expires >= now.Unix() {
			kept = append(kept, m)
		}
	}
	s.msgs = kept
	return nil
}

func (s *memStore) ExportMessages(_ context.Context) ([]*model.Message, error) {
	return append([]*model.Message(nil), s.msgs...), nil
}

func (s *memStore) Close() error { return nil }

// testConn records sent frames and can be made to fail.
type testConn struct {
	id   string
	sent [][]byte
	fail bool
}

func (c *testConn) ID() string { return c.id }

func (c *testConn) Send(data []byte) error {
	if c.fail {
		return errors.New("send failed")
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *testConn) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBroker(t *testing.T) (*Broker, *memStore) {
	t.Helper()
	ms := &memStore{}
	b := New(ms, registry.New(), nil, 0)
	return b, ms
}

func TestPublish_StoresAndReturnsMessage(t *testing.T) {
	b, ms := newTestBroker(t)
	now := time.Unix(1700000000, 0)
	b.now = func() time.Time { return now }

	msg, err := b.Publish(context.Background(), "news", "hello")
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	if len(msg.ID) != 12 {
		t.Errorf("message id length = %d, want 12", len(msg.ID))
	}
	if msg.Time != now.Unix() {
		t.Errorf("message time = %d, want %d", msg.Time, now.Unix())
	}
	if msg.Expires != now.Add(12*time.Hour).Unix() {
		t.Errorf("message expires = %d, want time+12h", msg.Expires)
	}
	if msg.Topic != "news" || msg.Message != "hello" || msg.Event != model.EventMessage {
		t.Errorf("unexpected message: %+v", msg)
	}
	if len(ms.msgs) != 1 {
		t.Fatalf("store holds %d messages, want 1", len(ms.msgs))
	}
}

func TestPublish_EmptyBodyUsesPlaceholder(t *testing.T) {
	b, _ := newTestBroker(t)

	msg, err := b.Publish(context.Background(), "news", "")
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if msg.Message != model.DefaultBody {
		t.Errorf("message body = %q, want %q", msg.Message, model.DefaultBody)
	}
}

func TestPublish_FansOutToExactTopicOnly(t *testing.T) {
	b, _ := newTestBroker(t)

	newsConn := &testConn{id: "c-news"}
	otherConn := &testConn{id: "c-other"}
	multiConn := &testConn{id: "c-multi"}

	if err := b.Subscribe(newsConn, []string{"news"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Subscribe(otherConn, []string{"other"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Subscribe(multiConn, []string{"news", "other"}); err != nil {
		t.Fatal(err)
	}

	msg, err := b.Publish(context.Background(), "news", "hi")
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	// Every conn got one "open" frame at subscribe time.
	if got := len(newsConn.sent); got != 2 {
		t.Errorf("news subscriber received %d frames, want 2 (open + message)", got)
	}
	if got := len(multiConn.sent); got != 2 {
		t.Errorf("multi-topic subscriber received %d frames, want 2", got)
	}
	if got := len(otherConn.sent); got != 1 {
		t.Errorf("other-topic subscriber received %d frames, want 1 (open only)", got)
	}

	var frame model.Message
	if err := json.Unmarshal(newsConn.sent[1], &frame); err != nil {
		t.Fatalf("unmarshal broadcast frame: %v", err)
	}
	if frame.ID != msg.ID || frame.Event != model.EventMessage {
		t.Errorf("broadcast frame = %+v, want id %s event %q", frame, msg.ID, model.EventMessage)
	}
}

func TestPublish_FailedSendIsIsolated(t *testing.T) {
	b, _ := newTestBroker(t)

	bad := &testConn{id: "c-bad", fail: true}
	good := &testConn{id: "c-good"}

	b.registry.Subscribe(bad, []string{"news"})
	if err := b.Subscribe(good, []string{"news"}); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Publish(context.Background(), "news", "one"); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if got := len(good.sent); got != 2 {
		t.Errorf("healthy subscriber received %d frames, want 2", got)
	}

	// The failed conn must have been unsubscribed: a second publish makes no
	// further send attempts against it.
	bad.fail = false
	if _, err := b.Publish(context.Background(), "news", "two"); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if len(bad.sent) != 0 {
		t.Errorf("dropped subscriber still received %d frames", len(bad.sent))
	}
	if got := len(good.sent); got != 3 {
		t.Errorf("healthy subscriber received %d frames, want 3", got)
	}
}

func TestSubscribe_SendsOpenFrame(t *testing.T) {
	b, _ := newTestBroker(t)
	now := time.Unix(1700000000, 0)
	b.now = func() time.Time { return now }

	conn := &testConn{id: "c-1"}
	if err := b.Subscribe(conn, []string{"a", "b"}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	if len(conn.sent) != 1 {
		t.Fatalf("subscriber received %d frames, want 1", len(conn.sent))
	}
	var open model.Message
	if err := json.Unmarshal(conn.sent[0], &open); err != nil {
		t.Fatalf("unmarshal open frame: %v", err)
	}
	if open.Event != model.EventOpen {
		t.Errorf("open frame event = %q, want %q", open.Event, model.EventOpen)
	}
	if open.Topic != "a,b" {
		t.Errorf("open frame topic = %q, want %q", open.Topic, "a,b")
	}
	if open.Time != now.Unix() || len(open.ID) != 12 {
		t.Errorf("open frame = %+v", open)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b, _ := newTestBroker(t)

	conn := &testConn{id: "c-1"}
	if err := b.Subscribe(conn, []string{"news", "alerts"}); err != nil {
		t.Fatal(err)
	}

	b.Unsubscribe("c-1")

	if _, err := b.Publish(context.Background(), "news", "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Publish(context.Background(), "alerts", "y"); err != nil {
		t.Fatal(err)
	}
	if got := len(conn.sent); got != 1 {
		t.Errorf("disconnected subscriber received %d frames, want 1 (open only)", got)
	}
}

func pullLines(t *testing.T, b *Broker, topic, since string) []model.Message {
	t.Helper()
	var buf bytes.Buffer
	if err := b.Pull(context.Background(), topic, since, &buf); err != nil {
		t.Fatalf("Pull(%q, %q) error: %v", topic, since, err)
	}
	var out []model.Message
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var m model.Message
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %d not JSON: %v", len(out), err)
		}
		out = append(out, m)
	}
	return out
}

func TestPull_Cursors(t *testing.T) {
	b, _ := newTestBroker(t)
	base := time.Unix(1700000000, 0)

	// Three messages 100s apart.
	var ids []string
	for i := 0; i < 3; i++ {
		b.now = func() time.Time { return base.Add(time.Duration(i*100) * time.Second) }
		msg, err := b.Publish(context.Background(), "news", fmt.Sprintf("m%d", i))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, msg.ID)
	}
	b.now = func() time.Time { return base.Add(200 * time.Second) }

	if got := pullLines(t, b, "news", "all"); len(got) != 3 {
		t.Errorf("Pull(all) = %d messages, want 3", len(got))
	}
	if got := pullLines(t, b, "news", ""); len(got) != 3 {
		t.Errorf("Pull(absent) = %d messages, want 3", len(got))
	}

	// 10-digit timestamp cursor.
	ts := fmt.Sprintf("%d", base.Add(100*time.Second).Unix())
	if len(ts) != 10 {
		t.Fatalf("test timestamp %q is not 10 digits", ts)
	}
	got := pullLines(t, b, "news", ts)
	if len(got) != 2 || got[0].Message != "m1" {
		t.Errorf("Pull(ts) = %+v, want m1 and m2", got)
	}

	// Message-id cursor: includes the named message and everything at or
	// after its time.
	got = pullLines(t, b, "news", ids[1])
	if len(got) != 2 || got[0].ID != ids[1] {
		t.Errorf("Pull(id) = %+v, want m1 and m2", got)
	}

	// Relative duration cursor: now-150s covers the last two messages.
	got = pullLines(t, b, "news", "150s")
	if len(got) != 2 {
		t.Errorf("Pull(150s) = %d messages, want 2", len(got))
	}

	// Unknown id and garbage both degrade to empty, not an error.
	if got := pullLines(t, b, "news", "zzzzzzzzzzzz"); len(got) != 0 {
		t.Errorf("Pull(unknown id) = %d messages, want 0", len(got))
	}
	if got := pullLines(t, b, "news", "garbage!"); len(got) != 0 {
		t.Errorf("Pull(garbage) = %d messages, want 0", len(got))
	}

	// Absent topic is indistinguishable from no matches.
	if got := pullLines(t, b, "nothere", "all"); len(got) != 0 {
		t.Errorf("Pull(absent topic) = %d messages, want 0", len(got))
	}
}

func TestSweep_RemovesExpiredOnly(t *testing.T) {
	b, _ := newTestBroker(t)
	base := time.Unix(1700000000, 0)

	b.now = func() time.Time { return base }
	if _, err := b.Publish(context.Background(), "news", "old"); err != nil {
		t.Fatal(err)
	}
	b.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := b.Publish(context.Background(), "news", "fresh"); err != nil {
		t.Fatal(err)
	}

	// Sweep at base+12h+1s: "old" has expired, "fresh" has not.
	sweepAt := base.Add(12*time.Hour + time.Second)
	if err := b.Sweep(context.Background(), sweepAt); err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}

	b.now = func() time.Time { return sweepAt }
	got := pullLines(t, b, "news", "all")
	if len(got) != 1 || got[0].Message != "fresh" {
		t.Errorf("after sweep: %+v, want only fresh", got)
	}
}

func TestAuthCheck(t *testing.T) {
	b, _ := newTestBroker(t)
	if res := b.AuthCheck(); !res.Success {
		t.Error("AuthCheck().Success = false, want true")
	}
	data, err := json.Marshal(b.AuthCheck())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"success":true`) {
		t.Errorf("auth JSON = %s", data)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	b, ms := newTestBroker(t)
	base := time.Unix(1700000000, 0)
	b.now = func() time.Time { return base }
	if _, err := b.Publish(context.Background(), "news", "x"); err != nil {
		t.Fatal(err)
	}

	sw := NewSweeper(b, time.Hour, discardLogger())
	sw.Start()
	sw.Stop()

	// The startup sweep ran against the real clock, far past the message's
	// 12h expiry relative to the fixed test base time.
	if len(ms.msgs) != 0 {
		t.Errorf("store holds %d messages after sweep, want 0", len(ms.msgs))
	}
}
