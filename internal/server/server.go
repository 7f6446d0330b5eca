// Package server exposes the broker over HTTP and WebSocket.
//
// The URL scheme is /{topics}[/{command}], where topics is a comma-separated
// list of topic names and command selects the operation: no command publishes
// (POST or PUT), "json" pulls history, "auth" is the auth stub, and "ws"
// upgrades to a live subscription. Topic-name validation and list splitting
// happen here, before the broker is involved.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/groblegark/relay/internal/broker"
)

// Server routes client requests to the broker.
type Server struct {
	broker *broker.Broker
}

// New returns a Server fronting the given broker.
func New(b *broker.Broker) *Server {
	return &Server{broker: b}
}

// usageText is the fixed help document returned for malformed requests.
// Produced here, never by the broker.
const usageText = `relay - publish/subscribe notification relay

publish:     POST|PUT /TOPIC            body is the message text (optional)
history:     GET /TOPIC/json[?since=X]  newline-delimited JSON
             since: "all", 10-digit unix time, 12-char message id, or
             a relative duration like 30s, 5m, 2h, 1d
live:        GET /TOPIC/ws              WebSocket subscription
auth:        GET /TOPIC/auth

TOPIC is 1-64 characters of [A-Za-z0-9_-]. Subscriptions may name several
topics separated by commas: /a,b,c/ws. Publishing to a multi-topic path
targets the first topic only. Messages are retained for 12 hours.
`

// writeJSON writes a JSON response with the given status code. The encoder
// appends the trailing newline the protocol requires.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeUsage writes the fixed usage document with a client-error status.
func writeUsage(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(usageText))
}
