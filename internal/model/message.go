// Package model defines the message record shared by the store, broker,
// and wire protocol.
package model

import (
	"regexp"
	"strings"
	"time"
)

// Event type tags carried on every frame sent to clients.
const (
	EventMessage = "message"
	EventOpen    = "open"
)

// DefaultBody is substituted when a publish carries an empty payload.
const DefaultBody = "new message"

// DefaultRetention is how long a message stays queryable before the sweep
// removes it. Applied uniformly to all topics.
const DefaultRetention = 12 * time.Hour

// Message is a single published notification. Immutable once created;
// deleted only by the retention sweep.
//
// Expires and Message are omitted from JSON when zero so the "open"
// confirmation frame serializes as {id, time, event, topic}.
type Message struct {
	ID      string `json:"id"`
	Time    int64  `json:"time"`
	Expires int64  `json:"expires,omitempty"`
	Topic   string `json:"topic"`
	Message string `json:"message,omitempty"`
	Event   string `json:"event"`
}

var topicRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidTopic reports whether name is a well-formed topic name.
func ValidTopic(name string) bool {
	return topicRe.MatchString(name)
}

// SplitTopics splits a comma-separated topic list and validates every
// element. An empty list or any invalid element returns ok=false.
func SplitTopics(list string) ([]string, bool) {
	if list == "" {
		return nil, false
	}
	topics := strings.Split(list, ",")
	for _, t := range topics {
		if !ValidTopic(t) {
			return nil, false
		}
	}
	return topics, true
}
