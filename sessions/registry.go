package sessions

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned when an identifier maps to no open session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRegistryDraining is returned by CreateSession once shutdown began.
	ErrRegistryDraining = errors.New("session registry is draining")
	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrStreamBusy is returned when a session's push stream is already claimed.
	ErrStreamBusy = errors.New("session stream already attached")
)

// Mode selects whether the registry retains session identity across requests.
type Mode string

const (
	ModeStateful  Mode = "stateful"
	ModeStateless Mode = "stateless"
)

// Registry owns the process-resident session map. It is constructed once by
// the lifecycle controller and passed by reference to the request gate.
type Registry struct {
	mode Mode
	log  *slog.Logger

	mu          sync.Mutex
	sessions    map[string]*Session
	draining    bool
	everCreated bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for session lifecycle events.
func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = log }
}

// NewRegistry constructs an empty registry in the given mode.
func NewRegistry(mode Mode, opts ...RegistryOption) *Registry {
	r := &Registry{
		mode:     mode,
		log:      slog.New(slog.DiscardHandler),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the registry's session mode.
func (r *Registry) Mode() Mode { return r.mode }

// Stateful reports whether session identity is retained across requests.
func (r *Registry) Stateful() bool { return r.mode == ModeStateful }

// CreateSession mints a new session with a fresh identifier. Identifiers are
// UUIDv4 and never reused for the process lifetime. In stateless mode the
// session is ephemeral: it is handed to the caller but never recorded, so it
// cannot be looked up later. Fails once the registry is draining.
func (r *Registry) CreateSession() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return nil, ErrRegistryDraining
	}
	r.everCreated = true
	sess := newSession(uuid.NewString(), r.mode == ModeStateless)
	if r.mode == ModeStateful {
		r.sessions[sess.ID()] = sess
		r.log.Info("session.create", slog.String("session_id", sess.ID()), slog.Int("open", len(r.sessions)))
	}
	return sess, nil
}

// Lookup resolves an identifier to its open session.
func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok || sess.State() != StateOpen {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Initialized reports whether any session was ever created. The gate uses
// this to distinguish "server not initialized" from "missing session header".
func (r *Registry) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.everCreated
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes the identified session and removes it from the registry.
// Closing an unknown or already-closed session is a no-op.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		sess.close()
		r.log.Info("session.close", slog.String("session_id", id))
	}
}

// CloseAll puts the registry into its draining state, then closes every open
// session. No session can be created afterwards. Idempotent.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.draining = true
	open := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		open = append(open, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range open {
		sess.close()
	}
	if len(open) > 0 {
		r.log.Info("session.close_all", slog.Int("count", len(open)))
	}
}
