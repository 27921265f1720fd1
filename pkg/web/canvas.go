package web

import (
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	fws "github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-digits/pkg/capture"
	"github.com/teslashibe/go-digits/pkg/hub"
	"github.com/teslashibe/go-digits/pkg/protocol"
)

// maxCanvasMessage bounds one canvas event; batched moves stay well below.
const maxCanvasMessage = 64 * 1024

// handleCanvasWS reads drawing events from one page. Replies are written
// from this goroutine only.
func (s *Server) handleCanvasWS(c *websocket.Conn) {
	n := s.canvasClients.Add(1)
	defer s.canvasClients.Add(-1)
	s.logger.Debug("canvas connected", "clients", n)

	c.SetReadLimit(maxCanvasMessage)

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("canvas read error", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		reply := s.handleCanvasMessage(data)
		if reply == nil {
			continue
		}
		out, err := reply.Bytes()
		if err != nil {
			s.logger.Error("encode reply", "error", err)
			continue
		}
		if err := c.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

// handleCanvasMessage applies one event and returns the reply, if any.
func (s *Server) handleCanvasMessage(data []byte) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return errorReply(protocol.CodeBadMessage, err.Error())
	}

	switch msg.Type {
	case protocol.TypeStrokeBegin:
		p, err := msg.GetPointData()
		if err != nil {
			return errorReply(protocol.CodeBadMessage, err.Error())
		}
		s.beginStroke(capture.Point{X: p.X, Y: p.Y})

	case protocol.TypeStrokeMove:
		m, err := msg.GetMoveData()
		if err != nil {
			return errorReply(protocol.CodeBadMessage, err.Error())
		}
		for _, p := range m.All() {
			s.surface.ExtendStroke(capture.Point{X: p.X, Y: p.Y})
		}

	case protocol.TypeStrokeEnd:
		// A final point is optional.
		if p, err := msg.GetPointData(); err == nil {
			s.surface.ExtendStroke(capture.Point{X: p.X, Y: p.Y})
		}
		if err := s.endStroke(); err != nil {
			s.logger.Warn("stroke failed", "error", err)
			return errorReply(protocol.CodeInvalidInput, capture.MsgDrawing)
		}

	case protocol.TypeClear:
		s.clear()

	case protocol.TypeEraser:
		e, err := msg.GetEraserData()
		if err != nil {
			return errorReply(protocol.CodeBadMessage, err.Error())
		}
		s.surface.SetEraser(e.Enabled)

	case protocol.TypeSubmit:
		if _, err := s.submitCurrent(); err != nil {
			if errors.Is(err, capture.ErrInvalidInput) {
				s.rejectedInputs.Add(1)
				return errorReply(protocol.CodeInvalidInput, capture.UserMessage(err))
			}
			return errorReply(protocol.CodeInternal, err.Error())
		}

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return errorReply(protocol.CodeBadMessage, err.Error())
		}
		pong, err := protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli())
		if err != nil {
			return nil
		}
		return pong

	default:
		return errorReply(protocol.CodeBadMessage, "unknown message type "+string(msg.Type))
	}
	return nil
}

func errorReply(code, text string) *protocol.Message {
	msg, err := protocol.NewErrorMessage(code, text)
	if err != nil {
		return nil
	}
	return msg
}

// handleStateWS subscribes a page to state snapshots
func (s *Server) handleStateWS(c *fws.Conn) {
	client := hub.NewClient(s.states, c)
	if client == nil {
		return
	}
	client.Run()
}
