package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTypingBroadcastsCurrentSet(t *testing.T) {
	h := newTestHub()
	typist := newTestClient(h, "u1")
	watcher := newTestClient(h, "u2")
	h.Subscribe("general", typist, "u1")
	h.Subscribe("general", watcher, "u2")
	drainFrames(t, watcher)

	h.SetTyping("general", "u1", "Alice", true)
	h.SetTyping("general", "u2", "Bob", true)

	frames := drainFrames(t, watcher)
	require.Len(t, frames, 2)
	assert.Equal(t, EventMemberTyping, frames[0].Event)

	// The second broadcast carries the full set, not a delta.
	data, ok := frames[1].Data.(map[string]interface{})
	require.True(t, ok)
	users, ok := data["typingUsers"].([]interface{})
	require.True(t, ok)
	assert.Len(t, users, 2)
}

func TestStopTypingRemovesAndBroadcasts(t *testing.T) {
	h := newTestHub()
	typist := newTestClient(h, "u1")
	watcher := newTestClient(h, "u2")
	h.Subscribe("general", typist, "u1")
	h.Subscribe("general", watcher, "u2")
	h.SetTyping("general", "u1", "Alice", true)
	drainFrames(t, watcher)

	h.SetTyping("general", "u1", "Alice", false)

	frames := drainFrames(t, watcher)
	require.Len(t, frames, 1)
	assert.Equal(t, EventMemberStop, frames[0].Event)
	assert.Empty(t, h.TypingUsers("general"))

	data := frames[0].Data.(map[string]interface{})
	assert.Equal(t, "u1", data["userId"])
	assert.Empty(t, data["remainingTypingUsers"])
}

func TestStopTypingForAbsentEntryStillBroadcasts(t *testing.T) {
	h := newTestHub()
	typist := newTestClient(h, "u1")
	watcher := newTestClient(h, "u2")
	h.Subscribe("general", typist, "u1")
	h.Subscribe("general", watcher, "u2")
	drainFrames(t, watcher)

	h.SetTyping("general", "u1", "Alice", false)

	frames := drainFrames(t, watcher)
	require.Len(t, frames, 1)
	assert.Equal(t, EventMemberStop, frames[0].Event)
}

func TestTypingRefreshKeepsEntryAlive(t *testing.T) {
	tracker := newTypingTracker()
	start := time.Now()

	tracker.touch("general", "u1", "Alice", start)
	tracker.touch("general", "u1", "Alice", start.Add(2*time.Second))

	evicted := tracker.evictStale(start.Add(4*time.Second), typingIdleThreshold)
	assert.Empty(t, evicted, "a refreshed entry must survive the sweep")

	evicted = tracker.evictStale(start.Add(6*time.Second), typingIdleThreshold)
	require.Len(t, evicted, 1)
	assert.Equal(t, "u1", evicted[0].entry.UserID)
}

func TestTypingSweepExpiry(t *testing.T) {
	h := newTestHub()
	typist := newTestClient(h, "u1")
	watcher := newTestClient(h, "u2")
	h.Subscribe("general", typist, "u1")
	h.Subscribe("general", watcher, "u2")

	start := time.Now()
	h.typing.touch("general", "u1", "Alice", start)
	drainFrames(t, watcher)

	// One sweep past the idle threshold: entry gone, exactly one
	// stop-typing broadcast, channel typing map reclaimed.
	h.sweepTyping(start.Add(4 * time.Second))

	counts := countFrames(t, watcher)
	assert.Equal(t, 1, counts[EventMemberStop])
	assert.Empty(t, h.TypingUsers("general"))

	h.typing.mu.Lock()
	_, channelKept := h.typing.channels["general"]
	h.typing.mu.Unlock()
	assert.False(t, channelKept, "empty typing map must be deleted")

	// A second sweep finds nothing and broadcasts nothing.
	h.sweepTyping(start.Add(8 * time.Second))
	assert.Empty(t, drainFrames(t, watcher))
}

func TestTypingEvictionReportsRemainingSet(t *testing.T) {
	tracker := newTypingTracker()
	start := time.Now()

	tracker.touch("general", "u1", "Alice", start)
	tracker.touch("general", "u2", "Bob", start.Add(2*time.Second))

	evicted := tracker.evictStale(start.Add(4*time.Second), typingIdleThreshold)
	require.Len(t, evicted, 1)
	assert.Equal(t, "u1", evicted[0].entry.UserID)
	require.Len(t, evicted[0].remaining, 1)
	assert.Equal(t, "u2", evicted[0].remaining[0].UserID)
}
