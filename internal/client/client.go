// Package client implements the HTTP and WebSocket client used by the relay
// CLI.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/groblegark/relay/internal/model"
)

// Client talks to a relay server over its HTTP/WebSocket surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client targeting the given base URL
// (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Publish posts body to the topic and returns the created message.
func (c *Client) Publish(ctx context.Context, topic, body string) (*model.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/"+url.PathEscape(topic), strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}

	var msg model.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode publish response: %w", err)
	}
	return &msg, nil
}

// Pull streams the topic's history selected by since, invoking fn for each
// message in storage order.
func (c *Client) Pull(ctx context.Context, topic, since string, fn func(*model.Message) error) error {
	u := c.baseURL + "/" + url.PathEscape(topic) + "/json"
	if since != "" {
		u += "?since=" + url.QueryEscape(since)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var msg model.Message
		if err := json.Unmarshal(sc.Bytes(), &msg); err != nil {
			return fmt.Errorf("decode pull line: %w", err)
		}
		if err := fn(&msg); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Auth calls the auth stub for a topic.
func (c *Client) Auth(ctx context.Context, topic string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/"+url.PathEscape(topic)+"/auth", nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, httpError(resp)
	}

	var res struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return false, fmt.Errorf("decode auth response: %w", err)
	}
	return res.Success, nil
}

// Watch opens a live subscription to the comma-joined topic list and invokes
// fn for every frame, including the initial "open" confirmation. It returns
// when ctx is cancelled or the connection drops.
func (c *Client) Watch(ctx context.Context, topics string, fn func(*model.Message) error) error {
	wsURL, err := c.websocketURL(topics)
	if err != nil {
		return err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer ws.Close()

	// Unblock the read loop on cancellation.
	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}
		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		if err := fn(&msg); err != nil {
			return err
		}
	}
}

func (c *Client) websocketURL(topics string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + topics + "/ws"
	return u.String(), nil
}

// httpError drains an error response into a readable error. Usage responses
// are plain text; keep the first line only.
func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	line := strings.SplitN(strings.TrimSpace(string(body)), "\n", 2)[0]
	if line == "" {
		line = resp.Status
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, line)
}
