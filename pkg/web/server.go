// Package web serves the digit pad: the single-page UI, its REST API, the
// canvas and state websockets, and the operational endpoints.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fws "github.com/gofiber/websocket/v2"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-digits/internal/log"
	"github.com/teslashibe/go-digits/pkg/capture"
	"github.com/teslashibe/go-digits/pkg/hub"
	"github.com/teslashibe/go-digits/pkg/predict"
	"github.com/teslashibe/go-digits/pkg/protocol"
	"github.com/teslashibe/go-digits/pkg/session"
	"github.com/teslashibe/go-digits/pkg/view"
)

const shutdownTimeout = 5 * time.Second

// Config holds server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// PublicURL is the address phones should open; encoded by /qr.png.
	PublicURL string

	// MaxUploadBytes is the largest accepted upload.
	MaxUploadBytes int64

	// Debug enables request logging.
	Debug bool

	Version string
}

// StatePayload is what the page receives on every transition.
type StatePayload struct {
	State session.State `json:"state"`
	View  view.Panel    `json:"view"`
}

// Server is the digit pad web server
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	surface   *capture.Surface
	session   *session.Session
	predictor predict.Predictor

	// Fan-out of state snapshots to every open page
	states *hub.Hub

	// Parent context for submissions; outlives individual requests
	baseCtx context.Context

	started        time.Time
	canvasClients  atomic.Int64
	rejectedInputs atomic.Uint64
}

// NewServer wires the surface, session and predictor behind a Fiber app.
func NewServer(cfg Config, surface *capture.Surface, sess *session.Session, predictor predict.Predictor, l *slog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = capture.DefaultMaxUploadBytes
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	s := &Server{
		cfg:       cfg,
		logger:    log.Component(l, "web"),
		surface:   surface,
		session:   sess,
		predictor: predictor,
		states:    hub.New("state", l),
		baseCtx:   context.Background(),
		started:   time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-digits",
		DisableStartupMessage: true,
		// Leave room above the upload limit so oversize files reach the
		// handler and get the friendly message.
		BodyLimit:    int(cfg.MaxUploadBytes*2) + 1<<20,
		ErrorHandler: s.handleError,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if cfg.Debug {
		app.Use(logger.New())
	}

	// Page
	app.Get("/", s.handleIndex)

	// API routes
	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Post("/upload", s.handleUpload)
	api.Post("/submit", s.handleSubmit)
	api.Post("/clear", s.handleClear)
	api.Post("/eraser", s.handleEraser)
	api.Get("/preview.png", s.handlePreview)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/canvas", websocket.New(s.handleCanvasWS))
	app.Get("/ws/state", fws.New(s.handleStateWS))

	// Operations
	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)
	app.Get("/qr.png", s.handleQR)

	s.app = app
	sess.Subscribe(s.publish)
	return s
}

// App exposes the Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the state broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.states
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	s.baseCtx = ctx

	g.Go(func() error {
		return s.states.Run(ctx)
	})

	// Seed the snapshot so the first page load sees the current state.
	s.publish(s.session.State())

	g.Go(func() error {
		s.logger.Info("listening", "addr", s.cfg.Addr, "public_url", s.cfg.PublicURL)
		if err := s.app.Listen(s.cfg.Addr); err != nil {
			return fmt.Errorf("web: listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	})

	return g.Wait()
}

// publish broadcasts st to every state subscriber and keeps it as the
// snapshot for pages that connect later. It runs inside the session's
// transition, so it must not block.
func (s *Server) publish(st session.State) {
	msg, err := protocol.NewStateMessage(StatePayload{State: st, View: view.New(st)})
	if err != nil {
		s.logger.Error("encode state", "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Error("encode state", "error", err)
		return
	}
	s.states.Broadcast(hub.NewSnapshot(data))
}

// handleError renders every error as {"error": message}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	// Bodies over BodyLimit never reach handleUpload.
	if code == fiber.StatusRequestEntityTooLarge {
		return s.rejectInput(c, capture.MsgTooLarge)
	}
	if code >= 500 {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
