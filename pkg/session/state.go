package session

import (
	"time"

	"github.com/teslashibe/go-digits/pkg/predict"
)

// Status is the lifecycle position of the current request.
type Status string

// Request statuses.
const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// State is an immutable snapshot of the request lifecycle. Result is set
// only when succeeded, Message only when failed.
type State struct {
	Status    Status          `json:"status"`
	Result    *predict.Result `json:"result,omitempty"`
	Message   string          `json:"message,omitempty"`
	Seq       uint64          `json:"seq"`
	RequestID string          `json:"request_id,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Idle is the resting state.
func Idle(seq uint64, at time.Time) State {
	return State{Status: StatusIdle, Seq: seq, UpdatedAt: at}
}

// Loading is the state while request seq is in flight.
func Loading(seq uint64, requestID string, at time.Time) State {
	return State{Status: StatusLoading, Seq: seq, RequestID: requestID, UpdatedAt: at}
}

// Succeeded holds a copy of res.
func Succeeded(seq uint64, requestID string, res *predict.Result, at time.Time) State {
	cp := *res
	cp.Probabilities = append([]float64(nil), res.Probabilities...)
	return State{Status: StatusSucceeded, Result: &cp, Seq: seq, RequestID: requestID, UpdatedAt: at}
}

// Failed carries the message to display.
func Failed(seq uint64, requestID, msg string, at time.Time) State {
	return State{Status: StatusFailed, Message: msg, Seq: seq, RequestID: requestID, UpdatedAt: at}
}

// IsLoading reports whether a request is in flight.
func (s State) IsLoading() bool { return s.Status == StatusLoading }
