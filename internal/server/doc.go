// Package server implements the hangout real-time hub and the HTTP API around
// it.
//
// The hub accepts WebSocket connections, records each client's username and
// room on join, and fans presence, typing, effect and game events out to the
// right room. The HTTP side serves room, message, profile, admin and GIF
// search endpoints; message writes are persisted before the room is told
// about them.
//
// Files are split by concern: configuration, the hub and its router, the
// per-connection client pumps, HTTP handlers and routes, and Run, which
// supervises everything for cmd/server.
package server
