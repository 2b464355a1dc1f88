package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/worklog-dev/worklog-mcp-go/internal/jsonrpc"
	"github.com/worklog-dev/worklog-mcp-go/internal/logctx"
	"github.com/worklog-dev/worklog-mcp-go/internal/router"
	"github.com/worklog-dev/worklog-mcp-go/mcp"
	"github.com/worklog-dev/worklog-mcp-go/mcpservice"
	"github.com/worklog-dev/worklog-mcp-go/sessions"
)

var _ http.Handler = (*Handler)(nil)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
)

const (
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"
)

// Handler is the transport gate in front of the session registry and the
// protocol router.
type Handler struct {
	mux      *http.ServeMux
	log      *slog.Logger
	reg      *sessions.Registry
	rt       *router.Router
	basePath string

	allowedHosts   map[string]struct{}
	allowedOrigins map[string]struct{}
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger         *slog.Logger
	allowedHosts   map[string]struct{}
	allowedOrigins map[string]struct{}
}

// WithLogger sets the slog logger used by the handler. If not provided, logs
// are discarded.
func WithLogger(log *slog.Logger) Option {
	return func(c *newConfig) { c.logger = log }
}

// WithAllowedHosts restricts the Host request header to the given set. A nil
// set disables the check.
func WithAllowedHosts(hosts map[string]struct{}) Option {
	return func(c *newConfig) { c.allowedHosts = hosts }
}

// WithAllowedOrigins restricts the Origin request header to the given set. A
// nil set disables the check.
func WithAllowedOrigins(origins map[string]struct{}) Option {
	return func(c *newConfig) { c.allowedOrigins = origins }
}

// New constructs the gate for the given base path, session registry, and
// capability directory.
func New(basePath string, reg *sessions.Registry, srv *mcpservice.Server, opts ...Option) (*Handler, error) {
	if reg == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if srv == nil {
		return nil, fmt.Errorf("server capabilities are required")
	}
	if basePath == "" || !strings.HasPrefix(basePath, "/") {
		return nil, fmt.Errorf("invalid base path %q", basePath)
	}

	cfg := &newConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(cfg)
	}

	log := slog.New(logctx.Handler{Handler: cfg.logger.Handler()})
	h := &Handler{
		log:            log,
		reg:            reg,
		rt:             router.New(srv, router.WithLogger(log)),
		basePath:       basePath,
		allowedHosts:   cfg.allowedHosts,
		allowedOrigins: cfg.allowedOrigins,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+basePath, h.handlePost)
	mux.HandleFunc("GET "+basePath, h.handleGet)
	mux.HandleFunc("DELETE "+basePath, h.handleDelete)
	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// checkHostAndOrigin applies the rebinding-protection allow-lists. Returns
// false after writing a rejection.
func (h *Handler) checkHostAndOrigin(w http.ResponseWriter, r *http.Request) bool {
	if h.allowedHosts != nil && !hostAllowed(h.allowedHosts, r.Host) {
		http.Error(w, "Forbidden: host not allowed", http.StatusForbidden)
		h.log.WarnContext(r.Context(), "gate.host.rejected", slog.String("host", r.Host))
		return false
	}
	if h.allowedOrigins != nil {
		if origin := r.Header.Get("Origin"); origin != "" {
			if _, ok := h.allowedOrigins[origin]; !ok {
				http.Error(w, "Forbidden: origin not allowed", http.StatusForbidden)
				h.log.WarnContext(r.Context(), "gate.origin.rejected", slog.String("origin", origin))
				return false
			}
		}
	}
	return true
}

// hostAllowed matches the Host header against the allow-list, with and
// without its port.
func hostAllowed(allowed map[string]struct{}, host string) bool {
	if _, ok := allowed[host]; ok {
		return true
	}
	if name, _, err := net.SplitHostPort(host); err == nil {
		_, ok := allowed[name]
		return ok
	}
	return false
}

// accepts reports whether the request's Accept header advertises willingness
// to receive every one of the given media types. An absent Accept header
// advertises nothing.
func accepts(r *http.Request, types ...contenttype.MediaType) bool {
	if r.Header.Get("Accept") == "" {
		return false
	}
	for _, t := range types {
		if _, _, err := contenttype.GetAcceptableMediaType(r, []contenttype.MediaType{t}); err != nil {
			return false
		}
	}
	return true
}

// writeInternalError emits the generic JSON-RPC internal-error envelope with
// a 500 status. Only valid before headers have been written.
func writeInternalError(w http.ResponseWriter) {
	res := jsonrpc.NewErrorResponse(jsonrpc.NewRequestID(nil), jsonrpc.ErrorCodeInternalError, "internal server error")
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(res)
}

// handlePost accepts client messages: the initialize handshake, requests,
// notifications, and responses.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	if !h.checkHostAndOrigin(w, r) {
		return
	}

	// A POST may be answered with plain JSON or with an event stream; the
	// client must be ready for either.
	if !accepts(r, jsonMediaType, eventStreamMediaType) {
		http.Error(w, "Not Acceptable: client must accept application/json and text/event-stream", http.StatusNotAcceptable)
		h.log.WarnContext(ctx, "gate.accept.rejected", slog.String("accept", r.Header.Get("Accept")))
		return
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		http.Error(w, "Unsupported Media Type: content-type must be application/json", http.StatusUnsupportedMediaType)
		h.log.WarnContext(ctx, "gate.content_type.rejected")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "Bad Request: invalid JSON body", http.StatusBadRequest)
		h.log.WarnContext(ctx, "gate.json.invalid", slog.String("err", err.Error()))
		return
	}
	if len(raw) > 0 && raw[0] == '[' {
		http.Error(w, "Bad Request: JSON-RPC batches are not supported", http.StatusBadRequest)
		h.log.WarnContext(ctx, "gate.batch.rejected")
		return
	}
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		http.Error(w, "Bad Request: invalid JSON-RPC message: "+err.Error(), http.StatusBadRequest)
		h.log.WarnContext(ctx, "gate.message.invalid", slog.String("err", err.Error()))
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: msg.Method, ID: msg.ID.String(), Type: msg.Type()})

	if req := msg.AsRequest(); req != nil && req.Method == string(mcp.InitializeMethod) {
		h.handleInitialize(ctx, w, r, req, start)
		return
	}

	sess, ok := h.admitSession(ctx, w, r)
	if !ok {
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.ID(),
		ProtocolVersion: sess.ProtocolVersion(),
		State:           string(sess.State()),
	})

	if !h.checkProtocolVersion(ctx, w, r, sess) {
		return
	}

	if req := msg.AsRequest(); req != nil {
		if req.IsNotification() {
			if err := h.rt.HandleNotification(ctx, sess, req); err != nil {
				h.log.ErrorContext(ctx, "notification.inbound.fail", slog.String("err", err.Error()))
				writeInternalError(w)
				return
			}
			h.setVersionHeader(w, sess)
			w.WriteHeader(http.StatusAccepted)
			h.log.InfoContext(ctx, "notification.inbound.ok", slog.Duration("dur", time.Since(start)))
			return
		}
		h.respondToRequest(ctx, w, sess, req, start)
		return
	}

	if res := msg.AsResponse(); res != nil {
		// This server makes no client calls, so inbound responses have
		// nothing to correlate with. Accept and drop.
		h.setVersionHeader(w, sess)
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "response.inbound.ignored", slog.Duration("dur", time.Since(start)))
		return
	}

	h.log.WarnContext(ctx, "gate.message.unrecognized")
}

// handleInitialize runs the stateless-exempt admission path: it creates the
// session, performs the handshake, and attaches the new identifier to the
// response.
func (h *Handler) handleInitialize(ctx context.Context, w http.ResponseWriter, r *http.Request, req *jsonrpc.Request, start time.Time) {
	if r.Header.Get(mcpSessionIDHeader) != "" {
		http.Error(w, "Conflict: session already initialized", http.StatusConflict)
		h.log.WarnContext(ctx, "session.initialize.redundant")
		return
	}
	var initReq mcp.InitializeRequest
	if err := json.Unmarshal(req.Params, &initReq); err != nil {
		http.Error(w, "Bad Request: invalid initialize params", http.StatusBadRequest)
		h.log.WarnContext(ctx, "session.initialize.params.invalid", slog.String("err", err.Error()))
		return
	}

	sess, err := h.reg.CreateSession()
	if err != nil {
		if errors.Is(err, sessions.ErrRegistryDraining) {
			http.Error(w, "Service Unavailable: server is shutting down", http.StatusServiceUnavailable)
			h.log.InfoContext(ctx, "session.create.draining")
			return
		}
		h.log.ErrorContext(ctx, "session.create.fail", slog.String("err", err.Error()))
		writeInternalError(w)
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), State: string(sess.State())})

	initRes, err := h.rt.Initialize(ctx, sess, &initReq)
	if err != nil {
		h.log.ErrorContext(ctx, "session.initialize.fail", slog.String("err", err.Error()))
		writeInternalError(w)
		return
	}
	resp, err := jsonrpc.NewResultResponse(req.ID, initRes)
	if err != nil {
		h.log.ErrorContext(ctx, "session.initialize.encode.fail", slog.String("err", err.Error()))
		writeInternalError(w)
		return
	}

	if h.reg.Stateful() {
		w.Header().Set(mcpSessionIDHeader, sess.ID())
	}
	w.Header().Set(mcpProtocolVersionHeader, initRes.ProtocolVersion)
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.ErrorContext(ctx, "session.initialize.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "session.initialize.ok", slog.Duration("dur", time.Since(start)))
}

// admitSession resolves the session a non-initialize message belongs to. In
// stateful mode the identifier header is mandatory and must name an open
// session. In stateless mode every request gets a fresh session-of-one.
func (h *Handler) admitSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	if !h.reg.Stateful() {
		sess, err := h.reg.CreateSession()
		if err != nil {
			http.Error(w, "Service Unavailable: server is shutting down", http.StatusServiceUnavailable)
			h.log.InfoContext(ctx, "session.create.draining")
			return nil, false
		}
		return sess, true
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		http.Error(w, "Bad Request: Mcp-Session-Id header is required", http.StatusBadRequest)
		h.log.WarnContext(ctx, "session.id.missing")
		return nil, false
	}
	sess, err := h.reg.Lookup(sessID)
	if err != nil {
		http.Error(w, "Not Found: session not found", http.StatusNotFound)
		h.log.InfoContext(ctx, "session.lookup.miss", slog.String("session_id", sessID))
		return nil, false
	}
	return sess, true
}

// checkProtocolVersion rejects messages whose pinned-version header
// contradicts the session's negotiated version. Returns false after writing
// the rejection.
func (h *Handler) checkProtocolVersion(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *sessions.Session) bool {
	pv := r.Header.Get(mcpProtocolVersionHeader)
	if pv != "" && sess.ProtocolVersion() != "" && pv != sess.ProtocolVersion() {
		http.Error(w, "Bad Request: protocol version mismatch", http.StatusBadRequest)
		h.log.WarnContext(ctx, "protocol.version.mismatch", slog.String("client_version", pv))
		return false
	}
	return true
}

func (h *Handler) setVersionHeader(w http.ResponseWriter, sess *sessions.Session) {
	if pv := sess.ProtocolVersion(); pv != "" {
		w.Header().Set(mcpProtocolVersionHeader, pv)
	}
}

// respondToRequest forwards a validated request into the router and streams
// the response back as a single SSE event.
func (h *Handler) respondToRequest(ctx context.Context, w http.ResponseWriter, sess *sessions.Session, req *jsonrpc.Request, start time.Time) {
	f, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		writeInternalError(w)
		return
	}

	h.setVersionHeader(w, sess)
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf := &lockedWriteFlusher{w: w, f: f, ctx: ctx}
	wf.Flush()

	res, err := h.forward(ctx, sess, req)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.inbound.fail", slog.String("err", err.Error()))
		res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal server error")
	}
	b, err := json.Marshal(res)
	if err != nil {
		// Headers are committed; terminating the stream is all that is left.
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		return
	}
	if err := writeSSEEvent(wf, b); err != nil {
		h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

// forward invokes the router, converting a panic into an error so no failure
// below the gate escapes it.
func (h *Handler) forward(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) (res *jsonrpc.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("router panic: %v", r)
		}
	}()
	return h.rt.HandleRequest(ctx, sess, req)
}

// handleGet establishes the server-to-client push stream for a session.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if !h.checkHostAndOrigin(w, r) {
		return
	}
	if !accepts(r, eventStreamMediaType) {
		http.Error(w, "Not Acceptable: client must accept text/event-stream", http.StatusNotAcceptable)
		h.log.WarnContext(ctx, "gate.accept.rejected", slog.String("accept", r.Header.Get("Accept")))
		return
	}
	f, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		writeInternalError(w)
		return
	}

	if !h.reg.Stateful() {
		// Without session correlation there is nothing to push.
		http.Error(w, "Method Not Allowed: push streams require stateful session mode", http.StatusMethodNotAllowed)
		h.log.InfoContext(ctx, "gate.get.stateless")
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		if !h.reg.Initialized() {
			http.Error(w, "Bad Request: Server not initialized", http.StatusBadRequest)
			h.log.WarnContext(ctx, "gate.get.uninitialized")
			return
		}
		http.Error(w, "Bad Request: Mcp-Session-Id header is required", http.StatusBadRequest)
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}
	sess, err := h.reg.Lookup(sessID)
	if err != nil {
		http.Error(w, "Not Found: session not found", http.StatusNotFound)
		h.log.InfoContext(ctx, "session.lookup.miss", slog.String("session_id", sessID))
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.ID(),
		ProtocolVersion: sess.ProtocolVersion(),
		State:           string(sess.State()),
	})
	if !h.checkProtocolVersion(ctx, w, r, sess) {
		return
	}

	msgs, release, err := sess.Attach()
	if err != nil {
		if errors.Is(err, sessions.ErrStreamBusy) {
			http.Error(w, "Conflict: session stream already open", http.StatusConflict)
			h.log.WarnContext(ctx, "sse.stream.busy")
			return
		}
		http.Error(w, "Not Found: session not found", http.StatusNotFound)
		h.log.InfoContext(ctx, "session.lookup.closed")
		return
	}
	defer release()

	h.setVersionHeader(w, sess)
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf := &lockedWriteFlusher{w: w, f: f, ctx: ctx}
	wf.Flush()

	h.log.InfoContext(ctx, "sse.stream.start")
	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
			return
		case <-sess.Done():
			// Flush whatever was queued before the close, then end.
			for {
				select {
				case b := <-msgs:
					if err := writeSSEEvent(wf, b); err != nil {
						return
					}
				default:
					h.log.InfoContext(ctx, "sse.stream.closed", slog.Duration("dur", time.Since(start)))
					return
				}
			}
		case b := <-msgs:
			if err := writeSSEEvent(wf, b); err != nil {
				h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
				return
			}
		}
	}
}

// handleDelete terminates a session at the client's request.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.checkHostAndOrigin(w, r) {
		return
	}
	if !h.reg.Stateful() {
		http.Error(w, "Method Not Allowed: session termination requires stateful session mode", http.StatusMethodNotAllowed)
		return
	}
	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		http.Error(w, "Bad Request: Mcp-Session-Id header is required", http.StatusBadRequest)
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}
	sess, err := h.reg.Lookup(sessID)
	if err != nil {
		http.Error(w, "Not Found: session not found", http.StatusNotFound)
		h.log.InfoContext(ctx, "session.lookup.miss", slog.String("session_id", sessID))
		return
	}
	if !h.checkProtocolVersion(ctx, w, r, sess) {
		return
	}
	h.reg.Close(sess.ID())
	h.setVersionHeader(w, sess)
	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "session.delete.ok", slog.String("session_id", sessID))
}

// lockedWriteFlusher serializes writes and flushes on a response writer and
// refuses both once the request context is canceled.
type lockedWriteFlusher struct {
	w   io.Writer
	f   http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.w.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.f.Flush()
}

// writeSSEEvent frames payload as one SSE data event and flushes it.
func writeSSEEvent(wf *lockedWriteFlusher, payload []byte) error {
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("write SSE frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}
