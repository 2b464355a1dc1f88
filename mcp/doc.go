// Package mcp contains the wire types for the subset of the Model Context
// Protocol spoken by this server: the initialization handshake, tool and
// prompt listing and invocation, logging levels, and the notifications that
// ride alongside them.
//
// Types here mirror the protocol's JSON shapes and carry no behavior.
// Server-side dispatch lives in internal/router; transport concerns live in
// streaminghttp.
package mcp
