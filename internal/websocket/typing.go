package websocket

import (
	"sort"
	"sync"
	"time"
)

// TypingEntry marks one user as currently typing in one channel. Entries
// expire after typingIdleThreshold unless refreshed.
type TypingEntry struct {
	UserID      string
	DisplayName string
	LastSeen    time.Time
}

// typingTracker holds the ephemeral typing sets. It keeps its own mutex,
// separate from the registry lock: typing state never depends on
// subscription state, it only broadcasts through the hub.
type typingTracker struct {
	mu       sync.Mutex
	channels map[string]map[string]*TypingEntry
}

func newTypingTracker() *typingTracker {
	return &typingTracker{
		channels: make(map[string]map[string]*TypingEntry),
	}
}

// touch inserts or refreshes the entry for (channelName, userID) and returns
// the channel's typing set after the update.
func (t *typingTracker) touch(channelName, userID, displayName string, now time.Time) []typingUser {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.channels[channelName]
	if !ok {
		entries = make(map[string]*TypingEntry)
		t.channels[channelName] = entries
	}
	entries[userID] = &TypingEntry{UserID: userID, DisplayName: displayName, LastSeen: now}

	return snapshotTyping(entries)
}

// remove deletes the entry for (channelName, userID) if present. It returns
// the removed entry, the remaining set, and whether anything was removed.
func (t *typingTracker) remove(channelName, userID string) (TypingEntry, []typingUser, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.channels[channelName]
	if !ok {
		return TypingEntry{}, nil, false
	}
	entry, ok := entries[userID]
	if !ok {
		return TypingEntry{}, snapshotTyping(entries), false
	}
	delete(entries, userID)
	if len(entries) == 0 {
		delete(t.channels, channelName)
		return *entry, []typingUser{}, true
	}
	return *entry, snapshotTyping(entries), true
}

type typingEviction struct {
	channel   string
	entry     TypingEntry
	remaining []typingUser
}

// evictStale removes every entry older than threshold and reports one
// eviction per removed entry, each carrying the set that remained right
// after its removal. The lock is taken per channel so a sweep over many
// channels never starves concurrent touch calls.
func (t *typingTracker) evictStale(now time.Time, threshold time.Duration) []typingEviction {
	t.mu.Lock()
	names := make([]string, 0, len(t.channels))
	for name := range t.channels {
		names = append(names, name)
	}
	t.mu.Unlock()

	var evictions []typingEviction
	for _, name := range names {
		t.mu.Lock()
		entries, ok := t.channels[name]
		if !ok {
			t.mu.Unlock()
			continue
		}
		for userID, entry := range entries {
			if now.Sub(entry.LastSeen) <= threshold {
				continue
			}
			delete(entries, userID)
			evictions = append(evictions, typingEviction{
				channel:   name,
				entry:     *entry,
				remaining: snapshotTyping(entries),
			})
		}
		if len(entries) == 0 {
			delete(t.channels, name)
		}
		t.mu.Unlock()
	}
	return evictions
}

func snapshotTyping(entries map[string]*TypingEntry) []typingUser {
	users := make([]typingUser, 0, len(entries))
	for _, e := range entries {
		users = append(users, typingUser{UserID: e.UserID, DisplayName: e.DisplayName})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// SetTyping records a typing start or stop signal for (channelName, userID)
// and broadcasts the transition. A start refreshes an existing entry; a stop
// for an absent entry still broadcasts, so producers may re-send stop
// signals freely.
func (h *Hub) SetTyping(channelName, userID, displayName string, isTyping bool) {
	if isTyping {
		users := h.typing.touch(channelName, userID, displayName, time.Now())
		h.Broadcast(channelName, EventMemberTyping, memberTypingPayload{TypingUsers: users}, nil)
		return
	}

	entry, remaining, removed := h.typing.remove(channelName, userID)
	if !removed {
		entry = TypingEntry{UserID: userID, DisplayName: displayName}
		if remaining == nil {
			remaining = []typingUser{}
		}
	}
	h.Broadcast(channelName, EventMemberStop, memberStopPayload{
		UserID:         entry.UserID,
		DisplayName:    entry.DisplayName,
		RemainingUsers: remaining,
	}, nil)
}

// TypingUsers reports who is currently typing in channelName.
func (h *Hub) TypingUsers(channelName string) []TypingEntry {
	h.typing.mu.Lock()
	defer h.typing.mu.Unlock()

	entries := h.typing.channels[channelName]
	out := make([]TypingEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
