package whatsapp

import (
	"context"
	"sync"

	"whatsapp-api-gateway/types"
)

type fakeTransport struct {
	mu           sync.Mutex
	connectCalls int
	connectErr   error
	connectHold  chan struct{} // when set, Connect blocks until it closes
	sendCalls    int
	sendErr      error
	sendID       string
	logoutCalls  int
	logoutErr    error
	events       chan Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sendID: "MSG-1", events: make(chan Event, 16)}
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	t.connectCalls++
	hold := t.connectHold
	err := t.connectErr
	t.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return err
}

func (t *fakeTransport) connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectCalls
}

func (t *fakeTransport) Disconnect() {}

func (t *fakeTransport) Send(ctx context.Context, msg types.OutboundMessage) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendCalls++
	if t.sendErr != nil {
		return "", t.sendErr
	}
	return t.sendID, nil
}

func (t *fakeTransport) Logout(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logoutCalls++
	return t.logoutErr
}

func (t *fakeTransport) Download(ctx context.Context, msg types.InboundMessage) ([]byte, error) {
	return nil, nil
}

func (t *fakeTransport) Events() <-chan Event { return t.events }

func (t *fakeTransport) SessionPath() string { return "sessions/test.db" }

type sentRecord struct {
	messageID string
	to        string
	kind      types.MessageKind
	content   map[string]any
}

type errorRecord struct {
	kind    string
	message string
	context map[string]any
}

type fakeSink struct {
	mu       sync.Mutex
	statuses []bool
	received []types.InboundMessage
	sent     []sentRecord
	errors   []errorRecord
}

func (s *fakeSink) ConnectionStatus(connected bool, challenge string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, connected)
}

func (s *fakeSink) MessageReceived(msg types.InboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, msg)
}

func (s *fakeSink) MessageSent(messageID, to string, kind types.MessageKind, content map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentRecord{messageID, to, kind, content})
}

func (s *fakeSink) ErrorOccurred(kind, message string, context map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, errorRecord{kind, message, context})
}

// fixedState is a stateSource pinned to one lifecycle state.
type fixedState ConnState

func (s fixedState) State() ConnState { return ConnState(s) }
