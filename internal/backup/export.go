// Package backup periodically exports the retained message log to an
// S3-compatible bucket as JSONL, so a lost database can be reconstructed up
// to the retention window.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/groblegark/relay/internal/store"
)

// ContentType is the MIME type of an export, matching what the pull
// endpoint serves for the same line format.
const ContentType = "application/x-ndjson"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"message_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ExportJSONL writes every retained message from the store as JSONL to w,
// sorted by topic then publish time so diffs between consecutive exports
// stay small.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	msgs, err := s.ExportMessages(ctx)
	if err != nil {
		return fmt.Errorf("export messages: %w", err)
	}

	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Topic != msgs[j].Topic {
			return msgs[i].Topic < msgs[j].Topic
		}
		if msgs[i].Time != msgs[j].Time {
			return msgs[i].Time < msgs[j].Time
		}
		return msgs[i].ID < msgs[j].ID
	})

	enc := json.NewEncoder(w)
	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		MessageCount: len(msgs),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, m := range msgs {
		if err := enc.Encode(record{Type: "message", Data: m}); err != nil {
			return fmt.Errorf("encode message %s: %w", m.ID, err)
		}
	}
	return nil
}
