// Package server implements the network side of the chatroom: configuration,
// the gin route that upgrades GET / to a websocket, origin checks, and the
// per-connection read/write pumps that feed the hub.
//
// The implementation is organized into specialized files for configuration,
// clients, routing, and HTTP handlers; the connection registry and broadcast
// logic live in package hub.
package server
