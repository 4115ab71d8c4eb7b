package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrClientDisconnected = fmt.Errorf("client disconnected")
	ErrChannelNotFound    = fmt.Errorf("channel not found")
)

const (
	// typingSweepInterval is how often stale typing entries are evicted.
	typingSweepInterval = 1 * time.Second

	// typingIdleThreshold is how long a typing entry may go unrefreshed
	// before the sweep removes it.
	typingIdleThreshold = 3 * time.Second

	// staleSweepInterval is how often the hub reaps clients that went
	// away without a clean teardown.
	staleSweepInterval = 5 * time.Minute
)

// PresenceMirror receives best-effort copies of online/offline transitions.
// Implementations must tolerate being called from many goroutines; a nil
// mirror disables mirroring.
type PresenceMirror interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

// Hub is the channel-subscription registry and broadcast engine. It owns
// every subscription, presence and typing table; connections are referenced,
// never owned. All subscription mutations run under a single RWMutex so the
// mirrored channel->subscribers and client->channels indexes can never
// diverge.
type Hub struct {
	mu sync.RWMutex

	// All clients that completed a websocket accept, subscribed or not.
	clients map[*Client]struct{}

	// channelSubs maps a channel name to its subscribers. The value is the
	// userID bound to that subscription, so one lookup answers both "who is
	// subscribed" and "as whom".
	channelSubs map[string]map[*Client]string

	// clientChannels is the reverse index of channelSubs.
	clientChannels map[*Client]map[string]struct{}

	// presence holds the per-channel online user sets. Guarded by mu
	// because every mutation happens together with a subscription change.
	presence map[string]map[string]struct{}

	typing *typingTracker

	mirror PresenceMirror

	totalConnections atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewHub builds an empty registry. mirror may be nil.
func NewHub(mirror PresenceMirror, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:        make(map[*Client]struct{}),
		channelSubs:    make(map[string]map[*Client]string),
		clientChannels: make(map[*Client]map[string]struct{}),
		presence:       make(map[string]map[string]struct{}),
		typing:         newTypingTracker(),
		mirror:         mirror,
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
	}
}

// Run drives the two periodic sweeps until Stop is called. Intended to be
// started once, as a goroutine, right after construction.
func (h *Hub) Run() {
	typingTicker := time.NewTicker(typingSweepInterval)
	staleTicker := time.NewTicker(staleSweepInterval)
	defer typingTicker.Stop()
	defer staleTicker.Stop()

	for {
		select {
		case <-typingTicker.C:
			h.sweepTyping(time.Now())
		case <-staleTicker.C:
			h.sweepStaleClients()
		case <-h.ctx.Done():
			h.logger.Info("hub shutting down")
			return
		}
	}
}

// Stop terminates the sweep loop.
func (h *Hub) Stop() {
	h.cancel()
}

// Register adds a freshly accepted connection to the active set. The client
// holds no subscriptions until its first subscribe frame arrives.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.totalConnections.Add(1)
	h.logger.Info("client registered", "clientID", c.ID(), "userID", c.Identity().UserID)
}

// Subscribe binds (c, claimedUserID) to channelName. When the connection
// carries a verified identity that disagrees with the claimed user the call
// is dropped without touching any state; the mismatch is only audit-logged.
// A duplicate subscribe is a silent no-op; a re-subscribe under a different
// claimed user replaces the binding, releasing the previous user first.
// Exactly one presence-online broadcast is emitted per subscription that
// actually got created.
func (h *Hub) Subscribe(channelName string, c *Client, claimedUserID string) {
	if channelName == "" || claimedUserID == "" {
		h.logger.Warn("subscribe with empty channel or user", "clientID", c.ID())
		return
	}

	if verified := c.Identity().UserID; verified != "" && verified != claimedUserID {
		h.logger.Warn("subscribe identity mismatch, dropping",
			"clientID", c.ID(), "verifiedUserID", verified, "claimedUserID", claimedUserID)
		return
	}

	h.mu.Lock()
	subs, ok := h.channelSubs[channelName]
	if !ok {
		subs = make(map[*Client]string)
		h.channelSubs[channelName] = subs
	}
	previousUserID, rebind := subs[c]
	if rebind && previousUserID == claimedUserID {
		h.mu.Unlock()
		h.logger.Debug("duplicate subscribe ignored",
			"channel", channelName, "clientID", c.ID(), "userID", claimedUserID)
		return
	}
	subs[c] = claimedUserID

	channels, ok := h.clientChannels[c]
	if !ok {
		channels = make(map[string]struct{})
		h.clientChannels[c] = channels
	}
	channels[channelName] = struct{}{}

	// An unauthenticated transport may re-subscribe under a different claimed
	// user; the binding it replaces gets a full offline transition first so no
	// user stays in the presence set without a live subscription.
	var previousOnline []string
	previousGone := false
	if rebind {
		previousOnline = h.setPresenceLocked(channelName, previousUserID, false)
		previousGone = !h.userSubscribedAnywhereLocked(previousUserID)
	}
	online := h.setPresenceLocked(channelName, claimedUserID, true)
	h.mu.Unlock()

	if rebind {
		h.logger.Info("subscription rebound",
			"channel", channelName, "clientID", c.ID(),
			"previousUserID", previousUserID, "userID", claimedUserID)

		h.Broadcast(channelName, EventMemberStatus, memberStatusPayload{
			UserID:      previousUserID,
			IsOnline:    false,
			OnlineUsers: previousOnline,
		}, nil)

		if entry, remaining, removed := h.typing.remove(channelName, previousUserID); removed {
			h.Broadcast(channelName, EventMemberStop, memberStopPayload{
				UserID:         entry.UserID,
				DisplayName:    entry.DisplayName,
				RemainingUsers: remaining,
			}, nil)
		}
	} else {
		h.logger.Info("client subscribed",
			"channel", channelName, "clientID", c.ID(), "userID", claimedUserID)
	}

	h.Broadcast(channelName, EventMemberStatus, memberStatusPayload{
		UserID:      claimedUserID,
		IsOnline:    true,
		OnlineUsers: online,
	}, nil)

	if h.mirror != nil {
		if previousGone {
			if err := h.mirror.SetUserOffline(h.ctx, previousUserID); err != nil {
				h.logger.Warn("presence mirror set offline failed", "userID", previousUserID, "error", err)
			}
		}
		if err := h.mirror.SetUserOnline(h.ctx, claimedUserID); err != nil {
			h.logger.Warn("presence mirror set online failed", "userID", claimedUserID, "error", err)
		}
	}
}

// Unsubscribe removes the subscription c holds in channelName, if any.
// Removing an absent pair is a no-op. Emits no presence update: an offline
// transition is only derived from a full teardown.
func (h *Hub) Unsubscribe(channelName string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(channelName, c)
}

func (h *Hub) unsubscribeLocked(channelName string, c *Client) {
	subs, ok := h.channelSubs[channelName]
	if !ok {
		h.logger.Warn("unsubscribe from unknown channel", "channel", channelName, "clientID", c.ID())
		return
	}
	if _, ok := subs[c]; !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.channelSubs, channelName)
		// A channel with no subscribers keeps no derived state either.
		delete(h.presence, channelName)
	}

	if channels, ok := h.clientChannels[c]; ok {
		delete(channels, channelName)
		if len(channels) == 0 {
			delete(h.clientChannels, c)
		}
	}
}

// Teardown releases every piece of state held for c: one presence-offline
// broadcast per subscribed channel, a stop-typing broadcast where a typing
// entry existed, then full removal from all indexes. Calling it for an
// unknown or already-torn-down client is safe and emits nothing.
func (h *Hub) Teardown(c *Client) {
	type channelCleanup struct {
		channel string
		userID  string
		online  []string
	}

	h.mu.Lock()
	_, known := h.clients[c]
	delete(h.clients, c)

	var cleanups []channelCleanup
	for channelName := range h.clientChannels[c] {
		userID := h.channelSubs[channelName][c]
		h.unsubscribeLocked(channelName, c)
		online := h.setPresenceLocked(channelName, userID, false)
		cleanups = append(cleanups, channelCleanup{channel: channelName, userID: userID, online: online})
	}
	delete(h.clientChannels, c)

	// A user stays online in the mirror while any other connection still
	// holds a subscription for them.
	var mirrorOffline []string
	seen := make(map[string]struct{}, len(cleanups))
	for _, cu := range cleanups {
		if _, dup := seen[cu.userID]; dup {
			continue
		}
		seen[cu.userID] = struct{}{}
		if !h.userSubscribedAnywhereLocked(cu.userID) {
			mirrorOffline = append(mirrorOffline, cu.userID)
		}
	}
	h.mu.Unlock()

	if !known && len(cleanups) == 0 {
		return
	}

	for _, cu := range cleanups {
		h.Broadcast(cu.channel, EventMemberStatus, memberStatusPayload{
			UserID:      cu.userID,
			IsOnline:    false,
			OnlineUsers: cu.online,
		}, nil)

		if entry, remaining, removed := h.typing.remove(cu.channel, cu.userID); removed {
			h.Broadcast(cu.channel, EventMemberStop, memberStopPayload{
				UserID:         entry.UserID,
				DisplayName:    entry.DisplayName,
				RemainingUsers: remaining,
			}, nil)
		}
	}

	if h.mirror != nil {
		for _, userID := range mirrorOffline {
			if err := h.mirror.SetUserOffline(h.ctx, userID); err != nil {
				h.logger.Warn("presence mirror set offline failed", "userID", userID, "error", err)
			}
		}
	}

	h.logger.Info("client torn down", "clientID", c.ID(), "channels", len(cleanups))
}

// Broadcast encodes {event, data} once and enqueues the identical frame onto
// every open subscriber of channelName, skipping exclude when non-nil. A
// subscriber whose buffer is full or whose connection is no longer open is
// skipped and counted; it never aborts delivery to the rest. Broadcasting to
// a channel nobody subscribes to is a logged no-op.
func (h *Hub) Broadcast(channelName string, event EventType, data interface{}, exclude *Client) {
	payload, err := encodeFrame(event, data)
	if err != nil {
		h.logger.Error("failed to encode frame", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	subs, ok := h.channelSubs[channelName]
	if !ok {
		h.mu.RUnlock()
		h.logger.Warn("broadcast to unknown channel", "channel", channelName, "event", event)
		return
	}
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		if c == exclude || c.isClosed() {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, c := range targets {
		if c.enqueue(payload) {
			delivered++
		} else {
			dropped++
			h.logger.Warn("dropped frame for slow or closed client",
				"channel", channelName, "event", event, "clientID", c.ID())
		}
	}

	h.logger.Debug("broadcast complete",
		"channel", channelName, "event", event, "delivered", delivered, "dropped", dropped)
}

// Stats returns a point-in-time snapshot for health reporting. It holds the
// read lock only long enough to copy counts.
func (h *Hub) Stats() StatsSnapshot {
	h.mu.RLock()
	channels := make([]ChannelStat, 0, len(h.channelSubs))
	for name, subs := range h.channelSubs {
		channels = append(channels, ChannelStat{Name: name, Subscribers: len(subs)})
	}
	active := len(h.clients)
	h.mu.RUnlock()

	return StatsSnapshot{
		ActiveConnections: active,
		TotalConnections:  h.totalConnections.Load(),
		Channels:          channels,
		GeneratedAt:       time.Now(),
	}
}

// sweepStaleClients tears down clients whose transport died without the read
// pump getting a chance to clean up.
func (h *Hub) sweepStaleClients() {
	h.mu.RLock()
	stale := make([]*Client, 0)
	for c := range h.clients {
		if c.isClosed() {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.logger.Info("reaping stale client", "clientID", c.ID())
		h.Teardown(c)
	}
}

// sweepTyping evicts typing entries idle past the threshold, emitting one
// stop-typing broadcast per eviction.
func (h *Hub) sweepTyping(now time.Time) {
	for _, ev := range h.typing.evictStale(now, typingIdleThreshold) {
		h.Broadcast(ev.channel, EventMemberStop, memberStopPayload{
			UserID:         ev.entry.UserID,
			DisplayName:    ev.entry.DisplayName,
			RemainingUsers: ev.remaining,
		}, nil)
	}
}
