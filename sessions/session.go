package sessions

import (
	"context"
	"sync"

	"github.com/worklog-dev/worklog-mcp-go/mcp"
)

// State is the liveness of a session.
type State string

const (
	StateOpen    State = "open"
	StateClosing State = "closing"
	StateClosed  State = "closed"
)

// outboundDepth bounds the per-session queue of server-initiated messages.
const outboundDepth = 32

// Session carries the transport-level state of one client conversation.
// All methods are safe for concurrent use.
type Session struct {
	id        string
	ephemeral bool

	mu              sync.Mutex
	state           State
	protocolVersion string
	logLevel        mcp.LoggingLevel
	attached        bool

	outbound chan []byte
	done     chan struct{}
}

func newSession(id string, ephemeral bool) *Session {
	return &Session{
		id:        id,
		ephemeral: ephemeral,
		state:     StateOpen,
		logLevel:  mcp.LoggingLevelInfo,
		outbound:  make(chan []byte, outboundDepth),
		done:      make(chan struct{}),
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// Ephemeral reports whether the session is a stateless session-of-one that
// was never recorded in the registry.
func (s *Session) Ephemeral() bool { return s.ephemeral }

// State returns the current liveness.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ProtocolVersion returns the negotiated protocol version, or "" before the
// handshake completes.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// SetProtocolVersion pins the negotiated version. The first write wins; the
// version never changes once set.
func (s *Session) SetProtocolVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.protocolVersion == "" {
		s.protocolVersion = v
	}
}

// LogLevel returns the session's logging level.
func (s *Session) LogLevel() mcp.LoggingLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logLevel
}

// SetLogLevel adjusts the session's logging level.
func (s *Session) SetLogLevel(level mcp.LoggingLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLevel = level
}

// Done is closed when the session leaves the open state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Publish enqueues a server-initiated message for delivery on the session's
// push stream. Messages are delivered in publish order and never interleaved
// mid-message. Publish blocks while the queue is full and fails once the
// session closes or ctx is canceled.
func (s *Session) Publish(ctx context.Context, msg []byte) error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	select {
	case s.outbound <- msg:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach claims the session's push stream for a single consumer. It returns
// the message queue and a release func that must be called when the consumer
// goes away. A second concurrent Attach fails with ErrStreamBusy.
func (s *Session) Attach() (<-chan []byte, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return nil, nil, ErrSessionClosed
	}
	if s.attached {
		return nil, nil, ErrStreamBusy
	}
	s.attached = true
	release := func() {
		s.mu.Lock()
		s.attached = false
		s.mu.Unlock()
	}
	return s.outbound, release, nil
}

// close transitions open -> closing -> closed and wakes the attached stream
// so it can flush whatever is already queued. Idempotent.
func (s *Session) close() {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	close(s.done)
	s.state = StateClosed
	s.mu.Unlock()
}
