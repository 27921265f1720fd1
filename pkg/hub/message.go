// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

// Message represents a message to be broadcast to clients
type Message struct {
	// Data is the pre-encoded JSON text frame
	Data []byte

	// Retain keeps the message as the hub's snapshot; it is replayed to
	// every client that connects later
	Retain bool
}

// NewJSONMessage creates a one-off JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// NewSnapshot creates a retained JSON message
func NewSnapshot(data []byte) Message {
	return Message{Data: data, Retain: true}
}
