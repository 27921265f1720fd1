package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-digits/internal/httpc"
)

const (
	predictPath   = "/predict"
	modelInfoPath = "/model-info"

	// RequestIDHeader carries the per-request correlation id.
	RequestIDHeader = "X-Request-ID"

	maxBodyBytes  = 1 << 20
	maxErrorBytes = 64 << 10
)

// Client is the HTTP client for the prediction service.
type Client struct {
	baseURL string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a new prediction client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.New(cfg.Timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: baseURL,
		config:  cfg,
		http:    hc,
		logger:  logger.With("component", "predict.client"),
	}, nil
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Predict uploads the image and returns the classification.
func (c *Client) Predict(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || len(req.Image) == 0 {
		return nil, ErrEmptyImage
	}
	start := time.Now()

	id := req.RequestID
	if id == "" {
		id = uuid.NewString()
	}

	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return nil, fmt.Errorf("predict: encode request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", contentType)
		r.Header.Set("Accept", "application/json")
		r.Header.Set(RequestIDHeader, id)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.parseError(resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transport("read response", err)
	}

	result, err := decodeResult(raw)
	if err != nil {
		c.logger.Warn("malformed prediction", "request_id", id, "error", err)
		return nil, err
	}

	c.logger.Debug("prediction",
		"request_id", id,
		"label", result.Prediction,
		"confidence", result.Confidence,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Health checks that the service answers its model-info endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, modelInfoPath)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBytes))
	return nil
}

// ModelInfo fetches the input and output shapes of the served model.
func (c *Client) ModelInfo(ctx context.Context) (*ModelInfo, error) {
	resp, err := c.get(ctx, modelInfoPath)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var info ModelInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &info, nil
}

// get issues a GET and returns the response only for 2xx statuses.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("predict: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transport("GET "+path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, c.parseError(resp)
	}
	return resp, nil
}

// doWithRetry performs the request, rebuilding it for each attempt.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, transport("POST "+predictPath, ctx.Err())
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("predict: create request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = transport("POST "+predictPath, err)
			c.logger.Warn("request failed", "attempt", attempt+1, "error", err)
			continue
		}

		if attempt < c.config.MaxRetries && resp.StatusCode >= 400 {
			err := c.parseError(resp)
			resp.Body.Close()
			var apiErr *APIError
			if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
				return nil, err
			}
			lastErr = err
			c.logger.Warn("retrying request", "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads a non-2xx response. The service reports problems as
// {"detail": "..."} or, for validation failures, {"detail": [{"msg": "..."}]}.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var errResp struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &errResp) == nil && len(errResp.Detail) > 0 {
		apiErr.Detail = detailText(errResp.Detail)
	}
	if apiErr.Detail == "" {
		apiErr.Body = strings.TrimSpace(string(body))
	}
	return apiErr
}

func detailText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	type item struct {
		Msg string `json:"msg"`
	}
	var items []item
	if json.Unmarshal(raw, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	var one item
	if json.Unmarshal(raw, &one) == nil {
		return one.Msg
	}
	return ""
}

// decodeResult parses and checks a success body. Missing fields are
// malformed rather than zero.
func decodeResult(raw []byte) (*Result, error) {
	var body struct {
		Prediction    *int      `json:"prediction"`
		Confidence    *float64  `json:"confidence"`
		Probabilities []float64 `json:"probabilities"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body.Prediction == nil || body.Confidence == nil {
		return nil, fmt.Errorf("%w: missing prediction or confidence", ErrMalformedResponse)
	}

	result := &Result{
		Prediction:    *body.Prediction,
		Confidence:    *body.Confidence,
		Probabilities: body.Probabilities,
	}
	if err := result.validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// encodeMultipart builds the single-part form body.
func encodeMultipart(req *Request) ([]byte, string, error) {
	filename := req.Filename
	if filename == "" {
		filename = "digit.png"
	}
	ct := req.ContentType
	if ct == "" {
		ct = "image/png"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Verify Client implements Predictor at compile time.
var _ Predictor = (*Client)(nil)
