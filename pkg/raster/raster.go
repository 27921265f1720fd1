// Package raster defines the fixed 28×28 intensity image the prediction
// service consumes, and the normalisation that produces it from any
// drawing or uploaded picture.
//
// Intensity is 1 − mean(R,G,B)/255 over 8-bit channels, so black ink on
// white paper maps to 1.0 and the background maps to 0.0.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/draw"
)

// Size is the width and height of every normalised image.
const Size = 28

// ErrEmptySource is returned when the source image has no pixels.
var ErrEmptySource = errors.New("raster: source image is empty")

// Image is a 28×28 grid of intensities in [0,1], row-major.
// The zero value is an all-background image.
type Image struct {
	pix [Size * Size]float32
}

// Width is always Size.
func (m Image) Width() int { return Size }

// Height is always Size.
func (m Image) Height() int { return Size }

// At returns the intensity at column x, row y.
func (m Image) At(x, y int) float32 {
	return m.pix[y*Size+x]
}

// Values returns a flattened copy of the grid, row-major.
func (m Image) Values() []float32 {
	out := make([]float32, len(m.pix))
	copy(out, m.pix[:])
	return out
}

// Grid returns a copy of the intensities as rows.
func (m Image) Grid() [][]float32 {
	rows := make([][]float32, Size)
	for y := range rows {
		rows[y] = append([]float32(nil), m.pix[y*Size:(y+1)*Size]...)
	}
	return rows
}

// IsBlank reports whether no pixel carries ink.
func (m Image) IsBlank() bool {
	for _, v := range m.pix {
		if v > 0 {
			return false
		}
	}
	return true
}

// FromValues builds an Image from a flattened row-major slice.
func FromValues(values []float32) (Image, error) {
	var m Image
	if len(values) != len(m.pix) {
		return m, fmt.Errorf("raster: want %d values, got %d", len(m.pix), len(values))
	}
	for i, v := range values {
		m.pix[i] = clamp01(v)
	}
	return m, nil
}

// Normalize renders src onto a white 28×28 target with the given
// resampler and converts it to intensities.
func Normalize(src image.Image, r Resampler) (Image, error) {
	var m Image
	if src == nil || src.Bounds().Empty() {
		return m, ErrEmptySource
	}

	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	r.scale(dst, src)

	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			c := dst.RGBAAt(x, y)
			avg := (float64(c.R) + float64(c.G) + float64(c.B)) / 3
			m.pix[y*Size+x] = clamp01(float32(1 - avg/255))
		}
	}
	return m, nil
}

// Gray returns the wire form of the image: one 8-bit gray pixel per cell,
// value round(intensity × 255). Ink is light, background is black.
func (m Image) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, Size, Size))
	for i, v := range m.pix {
		g.Pix[i] = uint8(math.Round(float64(v) * 255))
	}
	return g
}

// PNG encodes the wire form as a grayscale PNG.
func (m Image) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, m.Gray()); err != nil {
		return nil, fmt.Errorf("raster: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// FromPNG decodes a 28×28 wire PNG back into an Image.
func FromPNG(data []byte) (Image, error) {
	var m Image
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return m, fmt.Errorf("raster: decode png: %w", err)
	}
	b := img.Bounds()
	if b.Dx() != Size || b.Dy() != Size {
		return m, fmt.Errorf("raster: want %dx%d, got %dx%d", Size, Size, b.Dx(), b.Dy())
	}
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			m.pix[y*Size+x] = float32(g.Y) / 255
		}
	}
	return m, nil
}

// Preview upscales the wire form by scale with nearest-neighbour sampling
// so individual cells stay visible.
func (m Image) Preview(scale int) *image.Gray {
	if scale < 1 {
		scale = 1
	}
	dst := image.NewGray(image.Rect(0, 0, Size*scale, Size*scale))
	src := m.Gray()
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// ASCII renders the grid with a small character ramp, one line per row.
func (m Image) ASCII() string {
	const ramp = " .:-=+*#%@"
	var sb strings.Builder
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			i := int(m.pix[y*Size+x] * float32(len(ramp)-1))
			sb.WriteByte(ramp[i])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func clamp01(v float32) float32 {
	switch {
	case v < 0 || math.IsNaN(float64(v)):
		return 0
	case v > 1:
		return 1
	}
	return v
}
