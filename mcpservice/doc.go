// Package mcpservice holds the server-side capability directory: the static
// containers of tools and prompts a server advertises, plus the typed helper
// for declaring a tool from a Go argument struct.
//
// Containers are constructed at process start and read by the protocol
// router; they are safe for concurrent use.
package mcpservice
