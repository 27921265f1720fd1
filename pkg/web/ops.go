package web

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shirou/gopsutil/v3/process"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	healthTimeout = 2 * time.Second
	qrSize        = 256
)

// handleHealth reports liveness and whether the predictor answers
func (s *Server) handleHealth(c *fiber.Ctx) error {
	predictor := "ok"
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()
	if err := s.predictor.Health(ctx); err != nil {
		predictor = "unreachable: " + err.Error()
	}

	return c.JSON(fiber.Map{
		"status":    "ok",
		"version":   s.cfg.Version,
		"predictor": predictor,
		"uptime_s":  int64(time.Since(s.started).Seconds()),
	})
}

// handleMetrics writes Prometheus text format
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	stats := s.session.Stats()

	var sb strings.Builder
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v float64) {
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n\n", name, help, name, name, v)
	}

	counter("digits_submissions_total", "Images submitted to the predictor", stats.Submissions)
	counter("digits_predictions_succeeded_total", "Predictor answers with a valid result", stats.Successes)
	counter("digits_predictions_failed_total", "Failed prediction requests", stats.Failures)
	counter("digits_stale_responses_total", "Responses discarded because a newer request superseded them", stats.Stale)
	counter("digits_rejected_inputs_total", "Uploads or submits rejected as invalid input", s.rejectedInputs.Load())
	counter("digits_dropped_clients_total", "State subscribers dropped for being too slow", s.states.Dropped())
	gauge("digits_requests_in_flight", "Prediction requests in flight", float64(stats.InFlight))
	gauge("digits_state_clients", "Connected state websocket clients", float64(s.states.ClientCount()))
	gauge("digits_canvas_clients", "Connected canvas websocket clients", float64(s.canvasClients.Load()))
	gauge("digits_uptime_seconds", "Seconds since start", time.Since(s.started).Seconds())
	gauge("go_goroutines", "Number of goroutines", float64(runtime.NumGoroutine()))

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := p.MemoryInfo(); err == nil {
			gauge("process_resident_memory_bytes", "Resident memory size in bytes", float64(mem.RSS))
		}
		if cpu, err := p.CPUPercent(); err == nil {
			gauge("process_cpu_percent", "Process CPU usage since start, percent of one core", cpu)
		}
	}

	c.Type("txt", "utf-8")
	return c.SendString(sb.String())
}

// handleQR encodes the public URL so a phone can open the pad
func (s *Server) handleQR(c *fiber.Ctx) error {
	url := s.cfg.PublicURL
	if url == "" {
		url = "http://" + c.Hostname()
	}
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		return err
	}
	c.Type("png")
	return c.Send(png)
}
