// Package capture turns freehand strokes and uploaded files into the
// normalised 28×28 image the predictor consumes.
package capture

import (
	"bytes"
	"image"
	"log/slog"
	"strings"
	"sync"

	// Decoders registered with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/teslashibe/go-digits/internal/log"
	"github.com/teslashibe/go-digits/pkg/raster"
)

// DefaultMaxUploadBytes is the largest accepted upload, inclusive.
const DefaultMaxUploadBytes int64 = 5 * 1024 * 1024

// Source identifies where the current image came from.
type Source string

// Image sources.
const (
	SourceNone    Source = ""
	SourceDrawing Source = "drawing"
	SourceUpload  Source = "upload"
)

// Upload is a user-selected file with the metadata the browser reports.
type Upload struct {
	Data     []byte
	MIMEType string
	Size     int64
	Filename string
}

// Surface is the drawing area plus the most recent normalised image.
// It is safe for concurrent use.
type Surface struct {
	mu sync.Mutex

	canvas  *image.RGBA
	active  *Stroke
	erasing bool
	strokes int

	current *raster.Image
	source  Source

	resampler raster.Resampler
	maxUpload int64
	logger    *slog.Logger
}

// Option configures a Surface.
type Option func(*Surface)

// WithResampler sets the filter used for normalisation.
func WithResampler(r raster.Resampler) Option {
	return func(s *Surface) {
		if r != "" {
			s.resampler = r
		}
	}
}

// WithMaxUploadBytes overrides the upload size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Surface) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Surface) {
		s.logger = l
	}
}

// New creates a blank surface.
func New(opts ...Option) *Surface {
	s := &Surface{
		canvas:    newCanvas(),
		resampler: raster.DefaultResampler,
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.Component(s.logger, "capture")
	return s
}

// SetEraser switches subsequent strokes between ink and background.
func (s *Surface) SetEraser(on bool) {
	s.mu.Lock()
	s.erasing = on
	s.mu.Unlock()
}

// Eraser reports whether the eraser is active.
func (s *Surface) Eraser() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.erasing
}

// BeginStroke starts a stroke at p. A stroke still in progress is
// committed to the canvas first without producing an image.
func (s *Surface) BeginStroke(p Point) {
	if !p.valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.active.Paint(s.canvas)
		s.strokes++
	}
	st := NewStroke(p, s.erasing)
	s.active = &st
}

// ExtendStroke appends p to the stroke in progress. It reports false and
// does nothing when no stroke is active.
func (s *Surface) ExtendStroke(p Point) bool {
	if !p.valid() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return false
	}
	st := s.active.With(p)
	s.active = &st
	return true
}

// EndStroke paints the stroke in progress and normalises the whole
// canvas. The result becomes the current image.
func (s *Surface) EndStroke() (raster.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return raster.Image{}, ErrNoStroke
	}
	st := *s.active
	s.active = nil
	st.Paint(s.canvas)
	s.strokes++

	img, err := raster.Normalize(s.canvas, s.resampler)
	if err != nil {
		return raster.Image{}, invalid(MsgDrawing, err)
	}
	s.current = &img
	s.source = SourceDrawing

	s.logger.Debug("stroke ended", "points", len(st.Points), "erase", st.Erase, "strokes", s.strokes)
	return img, nil
}

// InStroke reports whether a stroke is in progress.
func (s *Surface) InStroke() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// LoadFile validates and normalises an uploaded picture. Rejections
// match ErrInvalidInput and leave the current image untouched.
func (s *Surface) LoadFile(up Upload) (raster.Image, error) {
	size := up.Size
	if n := int64(len(up.Data)); n > size {
		size = n
	}
	if size > s.maxUpload {
		return raster.Image{}, invalid(MsgTooLarge, nil)
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(up.MIMEType)), "image/") {
		return raster.Image{}, invalid(MsgNotImage, nil)
	}

	src, format, err := image.Decode(bytes.NewReader(up.Data))
	if err != nil {
		return raster.Image{}, invalid(MsgNotImage, err)
	}
	img, err := raster.Normalize(src, s.resampler)
	if err != nil {
		return raster.Image{}, invalid(MsgNotImage, err)
	}

	s.mu.Lock()
	s.current = &img
	s.source = SourceUpload
	s.mu.Unlock()

	s.logger.Debug("upload normalised",
		"file", up.Filename,
		"format", format,
		"bytes", size,
		"width", src.Bounds().Dx(),
		"height", src.Bounds().Dy())
	return img, nil
}

// Clear wipes the canvas and forgets the current image. Clearing an
// already blank surface is a no-op.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.strokes == 0 && s.active == nil && s.current == nil {
		return
	}
	s.canvas = newCanvas()
	s.active = nil
	s.strokes = 0
	s.current = nil
	s.source = SourceNone
}

// Current returns the most recent normalised image, if any.
func (s *Surface) Current() (raster.Image, Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return raster.Image{}, SourceNone, false
	}
	return *s.current, s.source, true
}

// Submittable returns the current image for an explicit submit. An empty
// surface, or a drawing that is only background, is rejected as invalid
// input. Uploads were accepted by LoadFile and are returned as they are.
func (s *Surface) Submittable() (raster.Image, error) {
	img, src, ok := s.Current()
	if !ok || (src == SourceDrawing && img.IsBlank()) {
		return raster.Image{}, invalid(MsgEmptyCanvas, nil)
	}
	return img, nil
}

// Canvas returns a copy of the full-resolution canvas.
func (s *Surface) Canvas() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := image.NewRGBA(s.canvas.Bounds())
	copy(c.Pix, s.canvas.Pix)
	return c
}
