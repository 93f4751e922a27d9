package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsInitialBackoff = time.Second
	wsMaxBackoff     = 30 * time.Second
)

// WebSocketSource reads one envelope per text frame from a websocket feed,
// reconnecting with backoff when the connection drops.
type WebSocketSource struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketSource creates a source for url.
func NewWebSocketSource(url string, logger *zap.Logger) *WebSocketSource {
	return &WebSocketSource{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

func (s *WebSocketSource) Run(ctx context.Context, h Handler) error {
	backoff := wsInitialBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.logger.Warn("push websocket dial failed",
				zap.String("url", s.url),
				zap.Duration("retry_in", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff = min(backoff*2, wsMaxBackoff)
				continue
			}
		}

		backoff = wsInitialBackoff
		s.logger.Info("push source connected", zap.String("driver", "websocket"), zap.String("url", s.url))
		s.readFrames(ctx, conn, h)
	}
}

func (s *WebSocketSource) readFrames(ctx context.Context, conn *websocket.Conn, h Handler) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("push websocket read", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		p, err := DecodeEnvelope(data)
		if err != nil {
			s.logger.Warn("dropping push message", zap.String("driver", "websocket"), zap.Error(err))
			continue
		}
		h(p)
	}
}

func (s *WebSocketSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// String describes the source for logs.
func (s *WebSocketSource) String() string {
	return fmt.Sprintf("websocket(%s)", s.url)
}
