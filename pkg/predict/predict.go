// Package predict is the client for the remote digit classifier.
//
// The service accepts a single multipart part named "file" holding an image
// and answers with the predicted label, its confidence and the full class
// distribution.
//
// Example usage:
//
//	client, _ := predict.NewClient(predict.WithBaseURL("http://localhost:8000"))
//
//	img, _ := raster.Normalize(picture, raster.DefaultResampler)
//	req, _ := predict.NewImageRequest(img)
//	res, err := client.Predict(ctx, req)
//	if err != nil {
//	    fmt.Println(predict.Message(err))
//	    return
//	}
//	fmt.Printf("%d (%.2f%%)\n", res.Prediction, res.Confidence*100)
package predict

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-digits/pkg/raster"
)

// NumClasses is the number of digit classes the service scores.
const NumClasses = 10

// Predictor classifies normalised images.
type Predictor interface {
	// Predict submits one image and returns the classification.
	Predict(ctx context.Context, req *Request) (*Result, error)

	// Health checks that the service is reachable.
	Health(ctx context.Context) error
}

// Request is a single classification request.
type Request struct {
	// Image is the encoded file body.
	Image []byte

	// Filename is sent in the part's Content-Disposition. Defaults to "digit.png".
	Filename string

	// ContentType is the part's Content-Type. Defaults to "image/png".
	ContentType string

	// RequestID is sent as X-Request-ID. Generated when empty.
	RequestID string
}

// NewImageRequest encodes img in its wire form.
func NewImageRequest(img raster.Image) (*Request, error) {
	data, err := img.PNG()
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return &Request{Image: data, Filename: "digit.png", ContentType: "image/png"}, nil
}

// Result is a successful classification.
type Result struct {
	Prediction    int       `json:"prediction"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
}

// validate checks the shape guarantees callers rely on.
func (r *Result) validate() error {
	switch {
	case r.Prediction < 0 || r.Prediction >= NumClasses:
		return fmt.Errorf("%w: prediction %d out of range", ErrMalformedResponse, r.Prediction)
	case r.Confidence < 0 || r.Confidence > 1:
		return fmt.Errorf("%w: confidence %g out of range", ErrMalformedResponse, r.Confidence)
	case len(r.Probabilities) != NumClasses:
		return fmt.Errorf("%w: %d probabilities, want %d", ErrMalformedResponse, len(r.Probabilities), NumClasses)
	}
	return nil
}

// ModelInfo describes the tensor shapes the service model expects.
type ModelInfo struct {
	InputShape  []any `json:"input_shape"`
	OutputShape []any `json:"output_shape"`
}
