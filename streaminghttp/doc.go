// Package streaminghttp implements the streamable HTTP transport gate: the
// http.Handler that sits between the socket and the protocol router.
//
// For every request the gate enforces, in order: host/origin allow-lists,
// content negotiation (POST must accept both application/json and
// text/event-stream; GET must accept an event stream), session-identifier
// validation against the registry, and protocol-version pinning. Only then is
// the message forwarded to the router. Failures at any stage answer the
// caller with a plain-text reason and leave other sessions untouched; a
// failure inside the router surfaces as a generic JSON-RPC internal-error
// envelope.
package streaminghttp
