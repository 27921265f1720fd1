package web

import (
	"bytes"
	"errors"
	"image/png"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-digits/pkg/capture"
	"github.com/teslashibe/go-digits/pkg/session"
	"github.com/teslashibe/go-digits/pkg/view"
)

const previewScale = 10

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	StatePayload
	Preview bool `json:"preview"`
	Eraser  bool `json:"eraser"`
}

// EraserRequest is the body of POST /api/eraser.
type EraserRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleIndex serves the page
func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

// handleState returns the current request state and panel
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.stateResponse(s.session.State()))
}

func (s *Server) stateResponse(st session.State) StateResponse {
	_, _, hasImage := s.surface.Current()
	return StateResponse{
		StatePayload: StatePayload{State: st, View: view.New(st)},
		Preview:      hasImage,
		Eraser:       s.surface.Eraser(),
	}
}

// handleUpload validates, normalises and submits an uploaded picture
func (s *Server) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return s.rejectInput(c, capture.MsgNotImage)
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	// Reading one byte past the limit is enough to reject.
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return err
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	img, err := s.surface.LoadFile(capture.Upload{
		Data:     data,
		MIMEType: mimeType,
		Size:     fh.Size,
		Filename: fh.Filename,
	})
	if err != nil {
		if errors.Is(err, capture.ErrInvalidInput) {
			s.logger.Debug("upload rejected", "file", fh.Filename, "error", err)
			return s.rejectInput(c, capture.UserMessage(err))
		}
		return err
	}

	seq := s.session.Submit(s.baseCtx, img)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"seq": seq})
}

// handleSubmit re-submits whatever the surface currently holds
func (s *Server) handleSubmit(c *fiber.Ctx) error {
	seq, err := s.submitCurrent()
	if err != nil {
		if errors.Is(err, capture.ErrInvalidInput) {
			return s.rejectInput(c, capture.UserMessage(err))
		}
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"seq": seq})
}

// handleClear wipes the canvas and the result
func (s *Server) handleClear(c *fiber.Ctx) error {
	s.clear()
	return c.JSON(s.stateResponse(s.session.State()))
}

// handleEraser toggles the eraser
func (s *Server) handleEraser(c *fiber.Ctx) error {
	var req EraserRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": `expected {"enabled": true|false}`,
		})
	}
	s.surface.SetEraser(*req.Enabled)
	return c.JSON(fiber.Map{"eraser": *req.Enabled})
}

// handlePreview renders the current 28×28 image, enlarged
func (s *Server) handlePreview(c *fiber.Ctx) error {
	img, _, ok := s.surface.Current()
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no image yet")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Preview(previewScale)); err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("png")
	return c.Send(buf.Bytes())
}

// rejectInput answers 400 with the inline message; state is untouched
func (s *Server) rejectInput(c *fiber.Ctx, msg string) error {
	s.rejectedInputs.Add(1)
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// =============================================================================
// Actions shared by the REST API and the canvas socket
// =============================================================================

// beginStroke starts a stroke; a new drawing clears the displayed result
func (s *Server) beginStroke(p capture.Point) {
	s.surface.BeginStroke(p)
	s.session.Clear()
}

// endStroke finishes the stroke and submits the drawing. A drawing that
// is only background is not sent; the result is cleared instead.
func (s *Server) endStroke() error {
	img, err := s.surface.EndStroke()
	if errors.Is(err, capture.ErrNoStroke) {
		return nil
	}
	if err != nil {
		return err
	}
	if img.IsBlank() {
		s.session.Clear()
		return nil
	}
	s.session.Submit(s.baseCtx, img)
	return nil
}

func (s *Server) submitCurrent() (uint64, error) {
	img, err := s.surface.Submittable()
	if err != nil {
		return 0, err
	}
	return s.session.Submit(s.baseCtx, img), nil
}

func (s *Server) clear() {
	s.surface.Clear()
	s.session.Clear()
}
