// Package protocol defines the JSON frames exchanged between chat clients and
// the hub: the Envelope tagged union, the ChatMessage payload and the naive
// timestamp format used for created_at.
package protocol
