// Package protocol defines the WebSocket messages exchanged between the
// drawing page and the server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Page → server (canvas socket)
	TypeStrokeBegin MessageType = "stroke_begin" // Pointer down
	TypeStrokeMove  MessageType = "stroke_move"  // Pointer moved while down
	TypeStrokeEnd   MessageType = "stroke_end"   // Pointer up or left the canvas
	TypeClear       MessageType = "clear"        // Clear canvas and result
	TypeEraser      MessageType = "eraser"       // Toggle eraser
	TypeSubmit      MessageType = "submit"       // Re-submit the current image

	// Server → page
	TypeState MessageType = "state" // Request state snapshot
	TypeError MessageType = "error" // Rejected input or message

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Page → Server Message Types
// =============================================================================

// PointData is a pointer position in canvas pixels
type PointData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MoveData carries one or more points; browsers coalesce pointer events
type MoveData struct {
	PointData
	Points []PointData `json:"points,omitempty"`
}

// All returns the points in order, the single point first
func (m MoveData) All() []PointData {
	if len(m.Points) == 0 {
		return []PointData{m.PointData}
	}
	return m.Points
}

// EraserData toggles the eraser
type EraserData struct {
	Enabled bool `json:"enabled"`
}

// =============================================================================
// Server → Page Message Types
// =============================================================================

// Error codes carried in ErrorData
const (
	CodeInvalidInput = "invalid_input"
	CodeBadMessage   = "bad_message"
	CodeInternal     = "internal"
)

// ErrorData reports a rejected message or input
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData is a health check request
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData is a health check response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
