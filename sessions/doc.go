// Package sessions implements the in-memory session registry for the
// streamable HTTP transport.
//
// A Session is one logical conversation with a client: an opaque identifier,
// a protocol version pinned during the initialize handshake, and a FIFO
// outbound queue feeding at most one attached push stream. The Registry owns
// the session map exclusively; the transport validates requests against it
// but never mutates it directly.
//
// In stateless mode the registry mints ephemeral sessions-of-one that are
// never recorded, so no request correlates with any other.
package sessions
