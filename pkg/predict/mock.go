package predict

import (
	"context"
	"sync"
	"time"
)

// Mock implements Predictor for testing.
type Mock struct {
	// PredictFunc is called when Predict is invoked.
	PredictFunc func(ctx context.Context, req *Request) (*Result, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method  string
	Request *Request
	Time    time.Time
}

// NewMock creates a mock that always answers the given label with full
// confidence.
func NewMock(label int) *Mock {
	return &Mock{
		PredictFunc: func(ctx context.Context, req *Request) (*Result, error) {
			return OneHot(label), nil
		},
		HealthFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// OneHot returns a result that puts all probability on label.
func OneHot(label int) *Result {
	probs := make([]float64, NumClasses)
	if label >= 0 && label < NumClasses {
		probs[label] = 1
	}
	return &Result{Prediction: label, Confidence: 1, Probabilities: probs}
}

// Predict calls PredictFunc and records the call.
func (m *Mock) Predict(ctx context.Context, req *Request) (*Result, error) {
	m.record("Predict", req)
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, req)
	}
	return nil, &APIError{StatusCode: 503, Detail: "mock: no predictor"}
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", nil)
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

func (m *Mock) record(method string, req *Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Request: req, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Verify Mock implements Predictor at compile time.
var _ Predictor = (*Mock)(nil)
