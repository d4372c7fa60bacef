package whatsapp

import (
	"context"

	"whatsapp-api-gateway/types"
)

// Transport is the session/protocol engine behind the gateway. Lifecycle
// notifications arrive as typed events on a channel so the connection
// manager can be driven deterministically in tests.
type Transport interface {
	// Connect starts (or restarts) the session. It returns once the dial is
	// underway; the outcome arrives as an Open or Close event.
	Connect(ctx context.Context) error
	Disconnect()

	// Send transmits one message and returns its id. The context carries the
	// per-attempt deadline.
	Send(ctx context.Context, msg types.OutboundMessage) (string, error)

	// Logout terminates the session and purges persisted credentials.
	Logout(ctx context.Context) error

	// Download fetches the media payload referenced by an inbound message.
	Download(ctx context.Context, msg types.InboundMessage) ([]byte, error)

	Events() <-chan Event
	SessionPath() string
}

// Event is a transport lifecycle or inbound-message notification.
type Event interface{ transportEvent() }

// ChallengeEvent carries a pairing QR code.
type ChallengeEvent struct {
	Code string
}

// OpenEvent signals the session is connected.
type OpenEvent struct{}

// CloseEvent signals the session dropped. LoggedOut closes are terminal;
// everything else triggers a reconnect.
type CloseEvent struct {
	LoggedOut bool
	Cause     string
}

// InboundEvent carries a received message.
type InboundEvent struct {
	Message types.InboundMessage
}

func (ChallengeEvent) transportEvent() {}
func (OpenEvent) transportEvent()      {}
func (CloseEvent) transportEvent()     {}
func (InboundEvent) transportEvent()   {}

// EventSink receives internal events for webhook delivery. Implementations
// must not block; the production sink hands work to a worker pool.
type EventSink interface {
	ConnectionStatus(connected bool, challenge string)
	MessageReceived(msg types.InboundMessage)
	MessageSent(messageID, to string, kind types.MessageKind, content map[string]any)
	ErrorOccurred(kind, message string, context map[string]any)
}
