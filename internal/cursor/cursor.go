// Package cursor parses the "since" token of a pull query into a time window.
//
// The token grammar is positional: an empty token or the literal "all"
// selects everything, a 10-character token is a decimal epoch timestamp, a
// 12-character token is a prior message ID, and <integer><s|m|h|d> is a
// relative duration. Anything else matches nothing. The 10-vs-12 length
// dispatch is load-bearing: it is the only thing distinguishing a timestamp
// from a message ID, so neither width may change.
package cursor

import (
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the parsed forms of a since token.
type Kind int

const (
	// KindAll selects every message of the topic.
	KindAll Kind = iota
	// KindOrigin selects messages with time >= Origin.
	KindOrigin
	// KindID selects messages at or after the message with ID MessageID;
	// the origin time must be resolved against the store.
	KindID
	// KindNone matches nothing. Unparseable tokens and unknown IDs degrade
	// here rather than erroring.
	KindNone
)

// Window is the parsed form of a since token.
type Window struct {
	Kind      Kind
	Origin    int64  // epoch seconds, valid when Kind == KindOrigin
	MessageID string // valid when Kind == KindID
}

// All is the window selecting every message.
var All = Window{Kind: KindAll}

// None is the window matching nothing.
var None = Window{Kind: KindNone}

// unitSeconds maps relative-duration unit letters to seconds.
var unitSeconds = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
}

// Parse interprets a since token relative to now.
func Parse(since string, now time.Time) Window {
	switch {
	case since == "" || since == "all":
		return All
	case len(since) == 10:
		ts, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			return None
		}
		return Window{Kind: KindOrigin, Origin: ts}
	case len(since) == 12:
		return Window{Kind: KindID, MessageID: since}
	}

	if n, unit, ok := splitDuration(since); ok {
		return Window{Kind: KindOrigin, Origin: now.Unix() - n*unit}
	}
	return None
}

// splitDuration parses "<integer><s|m|h|d>" (unit case-insensitive).
func splitDuration(s string) (n, unit int64, ok bool) {
	if len(s) < 2 {
		return 0, 0, false
	}
	u := strings.ToLower(s[len(s)-1:])[0]
	unit, found := unitSeconds[u]
	if !found {
		return 0, 0, false
	}
	v, err := strconv.ParseUint(s[:len(s)-1], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return int64(v), unit, true
}
