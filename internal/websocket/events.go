package websocket

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event carried by an outbound frame.
type EventType string

const (
	EventSubscribe     EventType = "subscribe"
	EventNewMessage    EventType = "new-message"
	EventMessageUpdate EventType = "message-update"
	EventMessageDelete EventType = "message-delete"
	EventMemberTyping  EventType = "member-typing"
	EventMemberStop    EventType = "member-stop-typing"

	// EventMemberStatus keeps its legacy upper-case wire name. Deployed
	// clients match on the exact string, so it cannot be normalized
	// without a protocol version bump.
	EventMemberStatus EventType = "MEMBER_STATUS_UPDATE"
)

func (e EventType) String() string {
	return string(e)
}

// IsValid reports whether e is one of the defined event types.
func (e EventType) IsValid() bool {
	switch e {
	case EventSubscribe, EventNewMessage, EventMessageUpdate, EventMessageDelete,
		EventMemberTyping, EventMemberStop, EventMemberStatus:
		return true
	default:
		return false
	}
}

// IsIngestible reports whether an external producer may submit e through the
// ingestion boundary. The subscribe type only exists inbound from clients.
func (e EventType) IsIngestible() bool {
	return e.IsValid() && e != EventSubscribe
}

// Frame is the envelope for every outbound push. One frame per logical
// broadcast, JSON-encoded exactly once per Broadcast call.
type Frame struct {
	Event EventType   `json:"event"`
	Data  interface{} `json:"data"`
}

func encodeFrame(event EventType, data interface{}) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: data})
}

// UserInfo is the self-declared profile a client attaches to a subscribe
// frame. It is advisory; the verified identity always wins.
type UserInfo struct {
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// inboundFrame is the only client-to-server message shape the relay
// understands. Frames with any other type are ignored.
type inboundFrame struct {
	Type        string    `json:"type"`
	ChannelName string    `json:"channelName"`
	UserID      string    `json:"userId"`
	UserInfo    *UserInfo `json:"userInfo,omitempty"`
}

// Identity is the verified principal attached to a connection at accept
// time. Immutable for the connection's lifetime.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// memberStatusPayload is the data section of a MEMBER_STATUS_UPDATE frame.
// OnlineUsers reflects the presence set after the transition was applied.
type memberStatusPayload struct {
	UserID      string   `json:"userId"`
	IsOnline    bool     `json:"isOnline"`
	OnlineUsers []string `json:"onlineUsers"`
}

// typingUser is one entry of a channel's currently-typing set as exposed on
// the wire.
type typingUser struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type memberTypingPayload struct {
	TypingUsers []typingUser `json:"typingUsers"`
}

type memberStopPayload struct {
	UserID         string       `json:"userId"`
	DisplayName    string       `json:"displayName"`
	RemainingUsers []typingUser `json:"remainingTypingUsers"`
}

// ChannelStat is one row of a stats snapshot.
type ChannelStat struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

// StatsSnapshot is the read-only view returned by Hub.Stats.
type StatsSnapshot struct {
	ActiveConnections int           `json:"activeConnections"`
	TotalConnections  int64         `json:"totalConnections"`
	Channels          []ChannelStat `json:"channels"`
	GeneratedAt       time.Time     `json:"generatedAt"`
}
