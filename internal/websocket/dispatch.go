package websocket

import (
	"encoding/json"
	"fmt"
)

var (
	ErrUnknownEventType = fmt.Errorf("unknown event type")
	ErrMissingChannel   = fmt.Errorf("channel name is required")
	ErrMissingMessage   = fmt.Errorf("message is required")
)

// IngestEnvelope is a broadcast command submitted by an external producer,
// over HTTP or Kafka. The boundary validates it before it ever reaches the
// registry; message contents are opaque and pass through unparsed except for
// typing events.
type IngestEnvelope struct {
	Type        EventType       `json:"type" binding:"required"`
	ChannelName string          `json:"channelName" binding:"required"`
	Message     json.RawMessage `json:"message" binding:"required"`
}

// Validate rejects envelopes with a missing field or an event type the
// ingestion boundary does not accept.
func (e *IngestEnvelope) Validate() error {
	if !e.Type.IsIngestible() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	if e.ChannelName == "" {
		return ErrMissingChannel
	}
	if len(e.Message) == 0 {
		return ErrMissingMessage
	}
	return nil
}

// typingSignal is the minimal shape a typing event's message must carry.
type typingSignal struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Dispatch routes a validated envelope: typing events drive the typing
// tracker (which broadcasts the derived set), everything else fans out
// verbatim. The returned error only covers input decoding; delivery itself
// is fire-and-forget.
func (h *Hub) Dispatch(env IngestEnvelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	switch env.Type {
	case EventMemberTyping, EventMemberStop:
		var sig typingSignal
		if err := json.Unmarshal(env.Message, &sig); err != nil {
			return fmt.Errorf("decode typing signal: %w", err)
		}
		if sig.UserID == "" {
			return fmt.Errorf("%w: typing signal needs a userId", ErrMissingMessage)
		}
		h.SetTyping(env.ChannelName, sig.UserID, sig.DisplayName, env.Type == EventMemberTyping)
		return nil

	default:
		h.Broadcast(env.ChannelName, env.Type, env.Message, nil)
		return nil
	}
}
