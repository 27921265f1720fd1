// Package view derives what the results panel shows from a session state.
package view

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-digits/pkg/predict"
	"github.com/teslashibe/go-digits/pkg/session"
)

// Bar is one column of the probability histogram.
type Bar struct {
	Digit       int     `json:"digit"`
	Probability float64 `json:"probability"`
	Height      float64 `json:"height"` // percent of full height, 0-100
	Top         bool    `json:"top"`
}

// Panel is the results panel.
type Panel struct {
	Status     session.Status `json:"status"`
	Loading    bool           `json:"loading"`
	Label      *int           `json:"label,omitempty"`
	Confidence string         `json:"confidence,omitempty"`
	Bars       []Bar          `json:"bars,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// New builds the panel for st. Only a succeeded state shows a result and
// only a failed one shows an error.
func New(st session.State) Panel {
	p := Panel{Status: st.Status, Loading: st.IsLoading()}

	switch st.Status {
	case session.StatusSucceeded:
		if st.Result == nil {
			break
		}
		label := st.Result.Prediction
		p.Label = &label
		p.Confidence = FormatConfidence(st.Result.Confidence)
		p.Bars = Bars(st.Result)
	case session.StatusFailed:
		p.Error = st.Message
	}
	return p
}

// FormatConfidence renders c in [0,1] as a percentage with two decimals.
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.2f%%", c*100)
}

// Bars returns one bar per class, height proportional to probability.
func Bars(res *predict.Result) []Bar {
	bars := make([]Bar, len(res.Probabilities))
	for i, p := range res.Probabilities {
		h := p * 100
		if h < 0 {
			h = 0
		} else if h > 100 {
			h = 100
		}
		bars[i] = Bar{Digit: i, Probability: p, Height: h, Top: i == res.Prediction}
	}
	return bars
}

// Histogram renders the distribution as text, one line per class, with
// bars up to width characters.
func Histogram(res *predict.Result, width int) string {
	if width < 1 {
		width = 1
	}
	var sb strings.Builder
	for _, b := range Bars(res) {
		n := int(b.Height / 100 * float64(width))
		marker := ' '
		if b.Top {
			marker = '*'
		}
		fmt.Fprintf(&sb, "%d %c|%-*s| %s\n", b.Digit, marker, width, strings.Repeat("#", n), FormatConfidence(b.Probability))
	}
	return sb.String()
}
