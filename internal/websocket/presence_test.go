package websocket

import (
	"testing"
)

func TestPresencePayloadReflectsPostMutationSet(t *testing.T) {
	h := newTestHub()
	first := newTestClient(h, "u1")
	second := newTestClient(h, "u2")

	h.Subscribe("general", first, "u1")
	frames := drainFrames(t, first)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	online := frames[0].Data.(map[string]interface{})["onlineUsers"].([]interface{})
	if len(online) != 1 || online[0] != "u1" {
		t.Errorf("first subscribe should see itself online, got %v", online)
	}

	h.Subscribe("general", second, "u2")
	frames = drainFrames(t, second)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	online = frames[0].Data.(map[string]interface{})["onlineUsers"].([]interface{})
	if len(online) != 2 {
		t.Errorf("second subscribe should see both users online, got %v", online)
	}
}

func TestPresenceEachTransitionBroadcasts(t *testing.T) {
	h := newTestHub()
	watcher := newTestClient(h, "w")
	h.Subscribe("general", watcher, "w")
	drainFrames(t, watcher)

	// Rapid churn of the same user: one broadcast per transition, no
	// coalescing.
	for i := 0; i < 3; i++ {
		c := newTestClient(h, "u1")
		h.Subscribe("general", c, "u1")
		h.Teardown(c)
	}

	counts := countFrames(t, watcher)
	if counts[EventMemberStatus] != 6 {
		t.Errorf("expected 6 status broadcasts for 3 connect/disconnect cycles, got %d",
			counts[EventMemberStatus])
	}
}

func TestPresenceSurvivesSecondConnectionOfSameUser(t *testing.T) {
	h := newTestHub()
	a := newTestClient(h, "u1")
	b := newTestClient(h, "u1")

	h.Subscribe("general", a, "u1")
	h.Subscribe("general", b, "u1")
	h.Teardown(a)

	online := h.OnlineUsers("general")
	if len(online) != 1 || online[0] != "u1" {
		t.Errorf("user with a second live subscription must stay online, got %v", online)
	}

	h.Teardown(b)
	if online := h.OnlineUsers("general"); len(online) != 0 {
		t.Errorf("last teardown must take the user offline, got %v", online)
	}
}

func TestPresenceInvariantAgainstSubscriptions(t *testing.T) {
	h := newTestHub()
	c1 := newTestClient(h, "u1")
	c2 := newTestClient(h, "u2")

	h.Subscribe("a", c1, "u1")
	h.Subscribe("a", c2, "u2")
	h.Subscribe("b", c1, "u1")
	h.Teardown(c2)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for channel, set := range h.presence {
		for userID := range set {
			if !h.userSubscribedLocked(channel, userID) {
				t.Errorf("user %q online in %q without a live subscription", userID, channel)
			}
		}
	}
	for channel, subs := range h.channelSubs {
		for _, userID := range subs {
			if _, ok := h.presence[channel][userID]; !ok {
				t.Errorf("user %q subscribed to %q but missing from its presence set", userID, channel)
			}
		}
	}
}
