package websocket

import "sort"

// Presence is derived state: a user is online in a channel while at least
// one live subscription binds them to it. The sets live inside the Hub and
// share its lock, because every transition happens inside a subscription
// mutation.

// setPresenceLocked applies an online/offline transition for (channelName,
// userID) and returns a snapshot of the channel's online set after the
// mutation. Callers must hold h.mu. Rapid toggles are not coalesced; each
// call corresponds to exactly one MEMBER_STATUS_UPDATE broadcast emitted by
// the caller once the lock is released.
func (h *Hub) setPresenceLocked(channelName, userID string, online bool) []string {
	set, ok := h.presence[channelName]
	if online {
		if !ok {
			set = make(map[string]struct{})
			h.presence[channelName] = set
		}
		set[userID] = struct{}{}
	} else if ok {
		// Another connection of the same user may still be subscribed;
		// the user stays online until the last one goes.
		if !h.userSubscribedLocked(channelName, userID) {
			delete(set, userID)
			if len(set) == 0 {
				delete(h.presence, channelName)
			}
		}
	}

	return h.onlineUsersLocked(channelName)
}

func (h *Hub) userSubscribedLocked(channelName, userID string) bool {
	for _, uid := range h.channelSubs[channelName] {
		if uid == userID {
			return true
		}
	}
	return false
}

// userSubscribedAnywhereLocked reports whether any live subscription in any
// channel still binds userID. Callers must hold h.mu.
func (h *Hub) userSubscribedAnywhereLocked(userID string) bool {
	for _, subs := range h.channelSubs {
		for _, uid := range subs {
			if uid == userID {
				return true
			}
		}
	}
	return false
}

// onlineUsersLocked snapshots a channel's online set. Sorted so payloads and
// tests are deterministic.
func (h *Hub) onlineUsersLocked(channelName string) []string {
	set := h.presence[channelName]
	users := make([]string, 0, len(set))
	for userID := range set {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// OnlineUsers reports the users currently considered online in channelName.
func (h *Hub) OnlineUsers(channelName string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineUsersLocked(channelName)
}
