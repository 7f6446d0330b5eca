// Package registry tracks which live connections receive messages published
// to each topic.
//
// The registry holds non-owning references: a connection's lifecycle belongs
// to the transport layer, which must call Unsubscribe when the connection
// closes. State is an indirection table (connection id -> handle) plus
// topic -> set of connection ids, so the registry and the connection object
// never hold each other directly.
package registry

import "sync"

// Conn is the handle the registry keeps for a live subscriber. Send must be
// safe to call from the broadcast path; a Send error is treated by callers
// as a disconnect.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Registry is an in-memory topic -> subscriber map. Entirely volatile:
// rebuilt from zero connections whenever the process restarts.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Conn                // connection id -> handle
	topics map[string]map[string]struct{} // topic -> set of connection ids
	byConn map[string][]string            // connection id -> topics joined
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		topics: make(map[string]map[string]struct{}),
		byConn: make(map[string][]string),
	}
}

// Subscribe adds the connection to the subscriber set of every listed topic,
// creating sets as needed.
func (r *Registry) Subscribe(conn Conn, topics []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	r.conns[id] = conn
	for _, topic := range topics {
		set, ok := r.topics[topic]
		if !ok {
			set = make(map[string]struct{})
			r.topics[topic] = set
		}
		set[id] = struct{}{}
	}
	r.byConn[id] = append(r.byConn[id], topics...)
}

// Unsubscribe removes the connection from every topic's subscriber set. Any
// topic whose set becomes empty is dropped from the registry.
func (r *Registry) Unsubscribe(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, topic := range r.byConn[connID] {
		set, ok := r.topics[topic]
		if !ok {
			continue
		}
		delete(set, connID)
		if len(set) == 0 {
			delete(r.topics, topic)
		}
	}
	delete(r.byConn, connID)
	delete(r.conns, connID)
}

// Subscribers returns a snapshot of the current subscriber handles for a
// topic. The snapshot stays valid while subscribers disconnect concurrently;
// a stale handle just fails its next Send.
func (r *Registry) Subscribers(topic string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.topics[topic]
	if len(set) == 0 {
		return nil
	}
	conns := make([]Conn, 0, len(set))
	for id := range set {
		if c, ok := r.conns[id]; ok {
			conns = append(conns, c)
		}
	}
	return conns
}

// Topics returns the number of topics with at least one live subscriber.
func (r *Registry) Topics() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
