package protocol

import "fmt"

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewPointMessage creates a stroke_begin, stroke_move or stroke_end message
func NewPointMessage(msgType MessageType, x, y float64) (*Message, error) {
	return NewMessage(msgType, PointData{X: x, Y: y})
}

// NewEraserMessage creates an eraser toggle message
func NewEraserMessage(enabled bool) (*Message, error) {
	return NewMessage(TypeEraser, EraserData{Enabled: enabled})
}

// NewStateMessage wraps a state snapshot
func NewStateMessage(state interface{}) (*Message, error) {
	return NewMessage(TypeState, state)
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Code: code, Message: message})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetPointData extracts a single point from a message
func (m *Message) GetPointData() (*PointData, error) {
	if m.Data == nil {
		return nil, fmt.Errorf("%s: missing point", m.Type)
	}
	var data PointData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetMoveData extracts one or more points from a stroke_move message
func (m *Message) GetMoveData() (*MoveData, error) {
	if m.Data == nil {
		return nil, fmt.Errorf("%s: missing point", m.Type)
	}
	var data MoveData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetEraserData extracts eraser data from a message
func (m *Message) GetEraserData() (*EraserData, error) {
	var data EraserData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
