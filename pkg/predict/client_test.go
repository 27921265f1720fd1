package predict

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-digits/internal/log"
	"github.com/teslashibe/go-digits/pkg/raster"
)

const sevenBody = `{"prediction":7,"confidence":0.94,"probabilities":[0,0,0,0,0,0,0,0.94,0.06,0]}`

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithBaseURL(url), WithLogger(log.Discard())}, opts...)
	c, err := NewClient(opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func testRequest(t *testing.T) *Request {
	t.Helper()
	values := make([]float32, raster.Size*raster.Size)
	values[14*raster.Size+14] = 1
	img, err := raster.FromValues(values)
	if err != nil {
		t.Fatal(err)
	}
	req, err := NewImageRequest(img)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestClientPredictWireShape(t *testing.T) {
	req := testRequest(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("Expected /predict, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("Expected X-Request-ID header")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if n := len(r.MultipartForm.File); n != 1 {
			t.Errorf("Expected exactly one file part, got %d", n)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		if ct := hdr.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("part Content-Type = %q", ct)
		}
		if hdr.Filename != "digit.png" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		data, _ := io.ReadAll(f)
		back, err := raster.FromPNG(data)
		if err != nil {
			t.Errorf("part is not a 28x28 png: %v", err)
		} else if back.At(14, 14) != 1 {
			t.Errorf("centre pixel = %f", back.At(14, 14))
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, sevenBody)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	res, err := client.Predict(context.Background(), req)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if res.Prediction != 7 {
		t.Errorf("prediction = %d, want 7", res.Prediction)
	}
	if res.Confidence != 0.94 {
		t.Errorf("confidence = %f, want 0.94", res.Confidence)
	}
	if len(res.Probabilities) != 10 {
		t.Errorf("probabilities = %d", len(res.Probabilities))
	}
}

func TestClientRequestIDPassthrough(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
		io.WriteString(w, sevenBody)
	}))
	defer server.Close()

	req := testRequest(t)
	req.RequestID = "req-123"
	if _, err := newTestClient(t, server.URL+"/").Predict(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got != "req-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestClientAPIErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
		wantMsg    string
	}{
		{
			name:       "detail string",
			status:     500,
			body:       `{"detail":"model unavailable"}`,
			wantDetail: "model unavailable",
			wantMsg:    "model unavailable",
		},
		{
			name:       "validation array",
			status:     422,
			body:       `{"detail":[{"loc":["body","file"],"msg":"field required"},{"msg":"bad type"}]}`,
			wantDetail: "field required; bad type",
			wantMsg:    "field required; bad type",
		},
		{
			name:    "plain text",
			status:  502,
			body:    "Bad Gateway",
			wantMsg: FallbackMessage,
		},
		{
			name:    "empty detail",
			status:  400,
			body:    `{"detail":""}`,
			wantMsg: FallbackMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).Predict(context.Background(), testRequest(t))
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Detail != tt.wantDetail {
				t.Errorf("detail = %q, want %q", apiErr.Detail, tt.wantDetail)
			}
			if got := Message(err); got != tt.wantMsg {
				t.Errorf("Message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestClientMalformedResponses(t *testing.T) {
	bodies := map[string]string{
		"not json":           `<html>ok</html>`,
		"label too big":      `{"prediction":10,"confidence":0.5,"probabilities":[0,0,0,0,0,0,0,0,0,0]}`,
		"negative label":     `{"prediction":-1,"confidence":0.5,"probabilities":[0,0,0,0,0,0,0,0,0,0]}`,
		"confidence > 1":     `{"prediction":1,"confidence":1.5,"probabilities":[0,0,0,0,0,0,0,0,0,0]}`,
		"nine probs":         `{"prediction":1,"confidence":0.5,"probabilities":[0,0,0,0,0,0,0,0,0]}`,
		"missing label":      `{"confidence":0.5,"probabilities":[0,0,0,0,0,0,0,0,0,0]}`,
		"missing confidence": `{"prediction":3,"probabilities":[0,0,0,0,0,0,0,0,0,0]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).Predict(context.Background(), testRequest(t))
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("err = %v, want ErrMalformedResponse", err)
			}
			if Message(err) != FallbackMessage {
				t.Errorf("Message = %q", Message(err))
			}
		})
	}
}

func TestClientTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url).Predict(context.Background(), testRequest(t))
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if Message(err) != FallbackMessage {
		t.Errorf("Message = %q", Message(err))
	}
}

func TestClientSingleAttemptByDefault(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := newTestClient(t, server.URL).Predict(context.Background(), testRequest(t)); err == nil {
		t.Fatal("expected error")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestClientRetry(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, sevenBody)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithRetry(1, time.Millisecond))
	res, err := client.Predict(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.Prediction != 7 || hits.Load() != 2 {
		t.Errorf("prediction %d after %d requests", res.Prediction, hits.Load())
	}
}

func TestClientRetrySkipsClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"detail":"bad image"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithRetry(2, time.Millisecond))
	_, err := client.Predict(context.Background(), testRequest(t))

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 422 || apiErr.Detail != "bad image" {
		t.Fatalf("err = %v, want 422 API error", err)
	}
	if apiErr.IsRetryable() {
		t.Error("422 should not be retryable")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestClientRetryGivesUp(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"detail":"slow down"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithRetry(2, time.Millisecond))
	_, err := client.Predict(context.Background(), testRequest(t))
	if Message(err) != "slow down" {
		t.Errorf("message = %q", Message(err))
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestClientEmptyImage(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	if _, err := client.Predict(context.Background(), &Request{}); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("err = %v, want ErrEmptyImage", err)
	}
	if _, err := client.Predict(context.Background(), nil); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("nil request: err = %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(WithBaseURL("  ")); !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("err = %v, want ErrNoBaseURL", err)
	}
}

func TestClientHealthAndModelInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/model-info" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, `{"input_shape":[null,28,28,1],"output_shape":[null,10]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	info, err := client.ModelInfo(context.Background())
	if err != nil {
		t.Fatalf("ModelInfo: %v", err)
	}
	if len(info.InputShape) != 4 || len(info.OutputShape) != 2 {
		t.Errorf("shapes = %v %v", info.InputShape, info.OutputShape)
	}
}

func TestClientHealthDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"Model not loaded"}`)
	}))
	defer server.Close()

	err := newTestClient(t, server.URL).Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Model not loaded") {
		t.Errorf("err = %v", err)
	}
}

func TestMock(t *testing.T) {
	m := NewMock(3)
	res, err := m.Predict(context.Background(), &Request{Image: []byte{1}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Prediction != 3 || res.Probabilities[3] != 1 {
		t.Errorf("mock result = %+v", res)
	}
	if err := res.validate(); err != nil {
		t.Errorf("OneHot result invalid: %v", err)
	}
	if m.CallCount("Predict") != 1 {
		t.Errorf("CallCount = %d", m.CallCount("Predict"))
	}
	m.Reset()
	if len(m.Calls()) != 0 {
		t.Error("Reset did not clear calls")
	}
}
