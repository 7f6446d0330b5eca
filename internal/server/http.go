package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/groblegark/relay/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{topics}", s.handlePublish)
	mux.HandleFunc("PUT /{topics}", s.handlePublish)
	mux.HandleFunc("GET /{topics}/json", s.handlePull)
	mux.HandleFunc("GET /{topics}/auth", s.handleAuth)
	mux.HandleFunc("GET /{topics}/ws", s.handleSubscribe)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleUsage)
	return mux
}

// topics validates and splits the topic path segment, answering the usage
// document on any malformed list.
func (s *Server) topics(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	list, ok := model.SplitTopics(r.PathValue("topics"))
	if !ok {
		writeUsage(w, http.StatusBadRequest)
		return nil, false
	}
	return list, true
}

// handlePublish handles POST|PUT /{topics}. A multi-topic path publishes to
// the first topic only; subscribe is the one multi-topic operation.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	topics, ok := s.topics(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeUsage(w, http.StatusBadRequest)
		return
	}

	msg, err := s.broker.Publish(r.Context(), topics[0], string(body))
	if err != nil {
		slog.Error("publish failed", "topic", topics[0], "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// handlePull handles GET /{topics}/json.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	topics, ok := s.topics(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")

	// The status line is written lazily by the first encoded line, so a pull
	// that fails before producing output can still answer with a 500. A
	// storage fault must not masquerade as an empty result set.
	since := r.URL.Query().Get("since")
	if err := s.broker.Pull(r.Context(), topics[0], since, w); err != nil {
		slog.Error("pull failed", "topic", topics[0], "since", since, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
}

// handleAuth handles GET /{topics}/auth.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.topics(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.broker.AuthCheck())
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUsage answers everything the other routes don't claim.
func (s *Server) handleUsage(w http.ResponseWriter, _ *http.Request) {
	writeUsage(w, http.StatusBadRequest)
}
