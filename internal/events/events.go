// Package events mirrors published messages onto a NATS bus so other
// services can observe relay traffic without holding a WebSocket open.
package events

import "context"

// SubjectPrefix is prepended to the topic name to form the NATS subject for
// a published message, e.g. "relay.msg.news".
const SubjectPrefix = "relay.msg."

// Subject returns the NATS subject for a relay topic.
func Subject(topic string) string {
	return SubjectPrefix + topic
}

// Publisher is the interface for mirroring events onto the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
