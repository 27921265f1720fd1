package capture

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// Canvas geometry: a 28×28 target drawn at ten times the resolution.
const (
	Scale      = 10
	CanvasSize = 28 * Scale
	LineWidth  = Scale * 0.4

	arcSteps = 16
)

// Ink and background colours.
var (
	Ink        = color.RGBA{0, 0, 0, 255}
	Background = color.RGBA{255, 255, 255, 255}
)

// Point is a canvas position in pixels, origin top-left.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Stroke is one freehand path. It is a value: With returns a new stroke
// and never mutates the receiver's visible points.
type Stroke struct {
	Points []Point
	Erase  bool
}

// NewStroke starts a stroke at p.
func NewStroke(p Point, erase bool) Stroke {
	return Stroke{Points: []Point{p}, Erase: erase}
}

// With returns the stroke extended by p.
func (s Stroke) With(p Point) Stroke {
	pts := make([]Point, len(s.Points), len(s.Points)+1)
	copy(pts, s.Points)
	return Stroke{Points: append(pts, p), Erase: s.Erase}
}

// Color is the paint colour: background for eraser strokes, ink otherwise.
func (s Stroke) Color() color.RGBA {
	if s.Erase {
		return Background
	}
	return Ink
}

// Paint renders the stroke onto dst with round caps and joins, LineWidth
// wide. Every segment becomes a capsule with the same winding, so the
// rasterizer's clamped accumulation unions them.
func (s Stroke) Paint(dst *image.RGBA) {
	if len(s.Points) == 0 {
		return
	}
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = draw.Over

	r := LineWidth / 2
	if len(s.Points) == 1 {
		addDisc(z, s.Points[0], r, b.Min)
	}
	for i := 1; i < len(s.Points); i++ {
		addCapsule(z, s.Points[i-1], s.Points[i], r, b.Min)
	}

	z.Draw(dst, b, image.NewUniform(s.Color()), image.Point{})
}

func addDisc(z *vector.Rasterizer, c Point, r float64, origin image.Point) {
	ox, oy := float64(origin.X), float64(origin.Y)
	const n = arcSteps * 2
	for i := 0; i <= n; i++ {
		a := 2 * math.Pi * float64(i) / n
		x := float32(c.X - ox + r*math.Cos(a))
		y := float32(c.Y - oy + r*math.Sin(a))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
}

func addCapsule(z *vector.Rasterizer, a, b Point, r float64, origin image.Point) {
	dx, dy := b.X-a.X, b.Y-a.Y
	if dx == 0 && dy == 0 {
		addDisc(z, a, r, origin)
		return
	}
	ox, oy := float64(origin.X), float64(origin.Y)
	theta := math.Atan2(dy, dx)

	first := true
	arc := func(c Point, from float64) {
		for i := 0; i <= arcSteps; i++ {
			ang := from + math.Pi*float64(i)/arcSteps
			x := float32(c.X - ox + r*math.Cos(ang))
			y := float32(c.Y - oy + r*math.Sin(ang))
			if first {
				z.MoveTo(x, y)
				first = false
			} else {
				z.LineTo(x, y)
			}
		}
	}
	// Half circle around b facing forward, then around a facing back.
	arc(b, theta-math.Pi/2)
	arc(a, theta+math.Pi/2)
	z.ClosePath()
}

// newCanvas returns a blank full-resolution canvas.
func newCanvas() *image.RGBA {
	c := image.NewRGBA(image.Rect(0, 0, CanvasSize, CanvasSize))
	draw.Draw(c, c.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)
	return c
}
