package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// Helpers shared by the package tests. Clients built here have no transport;
// the hub only ever touches the send buffer and the liveness flag, so the
// pumps are not needed to exercise registry behavior.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub() *Hub {
	return NewHub(nil, testLogger())
}

// recordingMirror captures presence mirror calls for assertions.
type recordingMirror struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (m *recordingMirror) SetUserOnline(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = append(m.online, userID)
	return nil
}

func (m *recordingMirror) SetUserOffline(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = append(m.offline, userID)
	return nil
}

func (m *recordingMirror) offlineCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.offline...)
}

func newTestClient(h *Hub, userID string) *Client {
	c := &Client{
		id:       uuid.New().String(),
		hub:      h,
		send:     make(chan []byte, sendBufferSize),
		identity: Identity{UserID: userID, DisplayName: "user-" + userID},
		done:     make(chan struct{}),
	}
	h.Register(c)
	return c
}

// newAnonymousTestClient builds a client without a verified identity, as an
// unauthenticated transport would.
func newAnonymousTestClient(h *Hub) *Client {
	c := &Client{
		id:   uuid.New().String(),
		hub:  h,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	h.Register(c)
	return c
}

// drainFrames decodes every frame currently buffered for c.
func drainFrames(t *testing.T, c *Client) []Frame {
	t.Helper()
	var frames []Frame
	for {
		select {
		case payload := <-c.send:
			var f Frame
			if err := json.Unmarshal(payload, &f); err != nil {
				t.Fatalf("undecodable frame %q: %v", payload, err)
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

// countFrames tallies buffered frames for c by event type.
func countFrames(t *testing.T, c *Client) map[EventType]int {
	t.Helper()
	counts := make(map[EventType]int)
	for _, f := range drainFrames(t, c) {
		counts[f.Event]++
	}
	return counts
}

// checkIndexConsistency verifies that the channel->subscribers and
// client->channels indexes mirror each other exactly.
func checkIndexConsistency(t *testing.T, h *Hub) {
	t.Helper()
	h.mu.RLock()
	defer h.mu.RUnlock()

	for channel, subs := range h.channelSubs {
		if len(subs) == 0 {
			t.Errorf("empty channel %q was not reclaimed", channel)
		}
		for c := range subs {
			if _, ok := h.clientChannels[c][channel]; !ok {
				t.Errorf("channel %q lists client %s, but the reverse index does not", channel, c.ID())
			}
		}
	}
	for c, channels := range h.clientChannels {
		if len(channels) == 0 {
			t.Errorf("client %s has an empty channel index entry", c.ID())
		}
		for channel := range channels {
			if _, ok := h.channelSubs[channel][c]; !ok {
				t.Errorf("client %s claims channel %q, but the channel does not list it", c.ID(), channel)
			}
		}
	}
}
