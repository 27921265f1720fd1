package raster

import (
	"fmt"
	"image"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Resampler names the filter used to shrink a source onto the 28×28 grid.
type Resampler string

// Supported resamplers.
const (
	CatmullRom Resampler = "catmullrom"
	Lanczos    Resampler = "lanczos"
	Bilinear   Resampler = "bilinear"
)

// DefaultResampler is used when none is configured.
const DefaultResampler = CatmullRom

// ParseResampler maps a config string to a Resampler. Empty means default.
func ParseResampler(name string) (Resampler, error) {
	switch r := Resampler(strings.ToLower(strings.TrimSpace(name))); r {
	case "":
		return DefaultResampler, nil
	case CatmullRom, Lanczos, Bilinear:
		return r, nil
	default:
		return "", fmt.Errorf("raster: unknown resampler %q", name)
	}
}

// scale composites src over dst (already filled with the background),
// stretched to dst's bounds.
func (r Resampler) scale(dst *image.RGBA, src image.Image) {
	switch r {
	case Lanczos:
		b := dst.Bounds()
		scaled := resize.Resize(uint(b.Dx()), uint(b.Dy()), src, resize.Lanczos3)
		draw.Draw(dst, b, scaled, scaled.Bounds().Min, draw.Over)
	case Bilinear:
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	default:
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	}
}
