// Package webhook accepts inbound SMS posted by an SMS gateway.
package webhook

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/matheus3301/comet/internal/bus"
	"github.com/matheus3301/comet/internal/inbound"
)

// SecretHeader carries the shared secret when one is configured.
const SecretHeader = "X-Comet-Secret"

// InboundRequest is the body of POST /sms/inbound. PDUs take precedence
// over From and Text.
type InboundRequest struct {
	PDUs []string `json:"pdus"`
	From string   `json:"from"`
	Text string   `json:"text"`
}

// Server hands inbound SMS to the bus as inbound.sms events.
type Server struct {
	app    *fiber.App
	secret string
	bus    *bus.Bus
	logger *zap.Logger
}

// New builds the HTTP app. An empty secret disables the header check.
func New(secret string, b *bus.Bus, logger *zap.Logger) *Server {
	s := &Server{secret: secret, bus: b, logger: logger}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	s.app.Use(requestLogger(logger))
	s.app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	s.app.Post("/sms/inbound", s.authorize, s.inbound)
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) authorize(c *fiber.Ctx) error {
	if s.secret == "" {
		return c.Next()
	}
	got := c.Get(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
		return jsonError(c, fiber.StatusUnauthorized, "bad secret")
	}
	return c.Next()
}

func (s *Server) inbound(c *fiber.Ctx) error {
	var req InboundRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid json body")
	}

	var f inbound.Frame
	switch {
	case len(req.PDUs) > 0:
		decoded, err := inbound.DecodeSMSHex(req.PDUs)
		if err != nil {
			s.logger.Warn("undecodable inbound sms", zap.Error(err))
			return jsonError(c, fiber.StatusBadRequest, err.Error())
		}
		f = decoded
	case strings.TrimSpace(req.Text) != "":
		f = inbound.Frame{Channel: inbound.ChannelSMS, From: strings.TrimSpace(req.From), Text: req.Text}
	default:
		return jsonError(c, fiber.StatusBadRequest, "pdus or text required")
	}

	s.bus.Publish(bus.Event{Kind: bus.KindInboundSMS, Payload: f})
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

func jsonError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("webhook request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		)
		return err
	}
}
