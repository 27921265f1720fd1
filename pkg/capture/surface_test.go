package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int, ink image.Rectangle) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(img, ink, image.Black, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sum(values []float32) float64 {
	var s float64
	for _, v := range values {
		s += float64(v)
	}
	return s
}

func drawLine(s *Surface, x, y0, y1 float64) {
	s.BeginStroke(Point{X: x, Y: y0})
	for y := y0 + 10; y <= y1; y += 10 {
		s.ExtendStroke(Point{X: x, Y: y})
	}
}

func TestLoadFileValidation(t *testing.T) {
	valid := encodePNG(t, 28, 28, image.Rect(10, 10, 18, 18))

	tests := []struct {
		name    string
		upload  Upload
		wantMsg string
	}{
		{
			name:    "one byte over limit",
			upload:  Upload{Data: valid, MIMEType: "image/png", Size: 5*1024*1024 + 1},
			wantMsg: MsgTooLarge,
		},
		{
			name:   "exactly at limit",
			upload: Upload{Data: valid, MIMEType: "image/png", Size: 5 * 1024 * 1024},
		},
		{
			name:    "text file",
			upload:  Upload{Data: []byte("seven"), MIMEType: "text/plain", Size: 5},
			wantMsg: MsgNotImage,
		},
		{
			name:    "missing mime",
			upload:  Upload{Data: valid, Size: int64(len(valid))},
			wantMsg: MsgNotImage,
		},
		{
			name:    "undecodable image",
			upload:  Upload{Data: []byte("GIF89a-but-not-really"), MIMEType: "image/gif", Size: 21},
			wantMsg: MsgNotImage,
		},
		{
			name:   "uppercase mime",
			upload: Upload{Data: valid, MIMEType: "IMAGE/PNG", Size: int64(len(valid))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			img, err := s.LoadFile(tt.upload)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if img.Width() != 28 || img.Height() != 28 {
					t.Errorf("got %dx%d", img.Width(), img.Height())
				}
				return
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if got := UserMessage(err); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
			if _, _, ok := s.Current(); ok {
				t.Error("rejected upload must not set the current image")
			}
		})
	}
}

func TestLoadFileSizeFromData(t *testing.T) {
	s := New(WithMaxUploadBytes(64))
	data := encodePNG(t, 100, 100, image.Rect(0, 0, 50, 50))
	if len(data) <= 64 {
		t.Skip("encoded png unexpectedly small")
	}
	_, err := s.LoadFile(Upload{Data: data, MIMEType: "image/png"})
	if UserMessage(err) != MsgTooLarge {
		t.Errorf("err = %v, want too large", err)
	}
}

func TestLoadFileFormats(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 640, 480))
	draw.Draw(src, src.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(src, image.Rect(280, 160, 360, 320), image.Black, image.Point{}, draw.Src)

	var pngBuf, jpgBuf bytes.Buffer
	if err := png.Encode(&pngBuf, src); err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(&jpgBuf, src, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}

	for name, up := range map[string]Upload{
		"png":  {Data: pngBuf.Bytes(), MIMEType: "image/png", Filename: "seven.png"},
		"jpeg": {Data: jpgBuf.Bytes(), MIMEType: "image/jpeg", Filename: "seven.jpg"},
	} {
		t.Run(name, func(t *testing.T) {
			s := New()
			img, err := s.LoadFile(up)
			if err != nil {
				t.Fatal(err)
			}
			if img.At(14, 14) < 0.9 {
				t.Errorf("centre = %f, want ink", img.At(14, 14))
			}
			if img.At(0, 0) > 0.05 {
				t.Errorf("corner = %f, want background", img.At(0, 0))
			}
			cur, source, ok := s.Current()
			if !ok || source != SourceUpload || cur != img {
				t.Errorf("current = %v %q, want upload", ok, source)
			}
		})
	}
}

func TestStrokeProducesImage(t *testing.T) {
	s := New()
	drawLine(s, 140, 40, 240)
	if !s.InStroke() {
		t.Fatal("expected stroke in progress")
	}

	img, err := s.EndStroke()
	if err != nil {
		t.Fatal(err)
	}
	if img.IsBlank() {
		t.Fatal("stroke produced blank image")
	}
	if c := max(img.At(13, 14), img.At(14, 14)); c < 0.1 {
		t.Errorf("ink near centre column = %f", c)
	}
	if img.At(0, 14) != 0 {
		t.Errorf("left edge = %f, want 0", img.At(0, 14))
	}
	if s.InStroke() {
		t.Error("stroke should be finished")
	}
	if _, source, _ := s.Current(); source != SourceDrawing {
		t.Errorf("source = %q", source)
	}
}

func TestSinglePointStrokeIsADot(t *testing.T) {
	s := New()
	s.BeginStroke(Point{X: 140, Y: 140})
	img, err := s.EndStroke()
	if err != nil {
		t.Fatal(err)
	}
	if img.IsBlank() {
		t.Error("a click should leave a dot")
	}
	if c := s.Canvas().RGBAAt(140, 140); c == Background {
		t.Error("canvas centre should carry ink")
	}
}

func TestEndStrokeWithoutBegin(t *testing.T) {
	s := New()
	if s.ExtendStroke(Point{X: 1, Y: 1}) {
		t.Error("ExtendStroke should be a no-op without a stroke")
	}
	if _, err := s.EndStroke(); !errors.Is(err, ErrNoStroke) {
		t.Errorf("err = %v, want ErrNoStroke", err)
	}
	if _, _, ok := s.Current(); ok {
		t.Error("no image expected")
	}
}

func TestEraserRestoresBackground(t *testing.T) {
	s := New()
	drawLine(s, 140, 40, 240)
	inked, err := s.EndStroke()
	if err != nil {
		t.Fatal(err)
	}

	s.SetEraser(true)
	if !s.Eraser() {
		t.Fatal("eraser not active")
	}
	var erased = inked
	for x := 136.0; x <= 144; x++ {
		drawLine(s, x, 20, 260)
		erased, err = s.EndStroke()
		if err != nil {
			t.Fatal(err)
		}
	}

	before, after := sum(inked.Values()), sum(erased.Values())
	if after > before*0.01 {
		t.Errorf("ink after erase = %f, before = %f", after, before)
	}
}

func TestClear(t *testing.T) {
	s := New()
	// Clearing a blank surface is fine.
	s.Clear()

	drawLine(s, 100, 100, 180)
	if _, err := s.EndStroke(); err != nil {
		t.Fatal(err)
	}
	s.Clear()
	s.Clear()

	if _, _, ok := s.Current(); ok {
		t.Error("clear should drop the current image")
	}
	c := s.Canvas()
	for i := 0; i < len(c.Pix); i += 4 {
		if c.Pix[i] != 255 || c.Pix[i+1] != 255 || c.Pix[i+2] != 255 {
			t.Fatalf("canvas pixel %d not background", i/4)
		}
	}
}

func TestSubmittable(t *testing.T) {
	s := New()
	if _, err := s.Submittable(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty surface: err = %v", err)
	}

	drawLine(s, 140, 60, 220)
	want, err := s.EndStroke()
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Submittable()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Error("submittable image differs from last stroke result")
	}
}

func TestSubmittableBlank(t *testing.T) {
	s := New()
	s.SetEraser(true)
	drawLine(s, 140, 60, 220)
	if _, err := s.EndStroke(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submittable(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("erased-only drawing: err = %v", err)
	}

	// A blank upload was already accepted, so it can be sent again.
	white := encodePNG(t, 28, 28, image.Rectangle{})
	want, err := s.LoadFile(Upload{Data: white, MIMEType: "image/png"})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	got, err := s.Submittable()
	if err != nil {
		t.Fatalf("blank upload: err = %v", err)
	}
	if got != want || !got.IsBlank() {
		t.Error("resubmitted upload differs from the loaded one")
	}
}

func TestStrokeWithIsValue(t *testing.T) {
	a := NewStroke(Point{X: 1, Y: 1}, false)
	b := a.With(Point{X: 2, Y: 2})
	if len(a.Points) != 1 || len(b.Points) != 2 {
		t.Errorf("len a=%d b=%d", len(a.Points), len(b.Points))
	}
	if a.Color() != Ink {
		t.Error("ink stroke colour")
	}
	if NewStroke(Point{}, true).Color() != (color.RGBA{255, 255, 255, 255}) {
		t.Error("eraser stroke colour")
	}
}
