// Package hub holds the live set of chat connections and fans events out to
// them.
//
// The Registry is the only shared mutable state. Every operation on it,
// including a full broadcast, runs under one mutex so readers never observe
// a half-applied insert or removal. Outbound sends must therefore be quick:
// an Outbound is expected to enqueue a frame and return, leaving the slow
// network write to its own goroutine.
//
// A Session sits in front of the Hub for each connection and turns decoded
// inbound frames into registry and broadcast calls.
package hub
