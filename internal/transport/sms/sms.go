// Package sms submits wire messages to an HTTP SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/warthog618/sms"
	"github.com/warthog618/sms/encoding/tpdu"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures the gateway client.
type Options struct {
	GatewayURL      string
	Token           string
	Sender          string
	RatePerMinute   int
	Timeout         time.Duration
	BreakerFailures uint32
}

// Transport submits messages to the gateway. Submissions are serialized.
type Transport struct {
	mu      sync.Mutex
	opts    Options
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates an SMS transport.
func New(opts Options, logger *zap.Logger) *Transport {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 3
	}

	limit := rate.Inf
	if opts.RatePerMinute > 0 {
		limit = rate.Limit(float64(opts.RatePerMinute) / 60)
	}

	st := gobreaker.Settings{
		Name:        "sms-gateway",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &Transport{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		breaker: gobreaker.NewCircuitBreaker(st),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// CanHandle accepts any non-empty target.
func (t *Transport) CanHandle(target string) bool {
	return strings.TrimSpace(target) != ""
}

// Send splits body into segments and submits them as one gateway request.
// Success means the gateway accepted the submission, not that it was delivered.
func (t *Transport) Send(ctx context.Context, to, body string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.opts.GatewayURL == "" {
		t.logger.Error("sms gateway not configured", zap.String("to", to))
		return false
	}

	if err := t.limiter.Wait(ctx); err != nil {
		t.logger.Error("sms rate limit wait", zap.String("to", to), zap.Error(err))
		return false
	}

	parts := Split(body)
	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.submit(ctx, to, parts)
	})
	if err != nil {
		t.logger.Error("sms submission failed",
			zap.String("to", to),
			zap.Int("parts", len(parts)),
			zap.Error(err),
		)
		return false
	}
	t.logger.Debug("sms submitted", zap.String("to", to), zap.Int("parts", len(parts)))
	return true
}

type submitRequest struct {
	To     string   `json:"to"`
	Sender string   `json:"sender,omitempty"`
	Parts  []string `json:"parts"`
}

func (t *Transport) submit(ctx context.Context, to string, parts []string) error {
	reqBody, err := json.Marshal(submitRequest{To: to, Sender: t.opts.Sender, Parts: parts})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.GatewayURL, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.opts.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}
	return nil
}

// ErrEmpty is returned by Segments for an empty body.
var ErrEmpty = errors.New("sms: empty body")

// Segments encodes body as SMS-SUBMIT TPDUs, one per network segment.
func Segments(body string) ([]tpdu.TPDU, error) {
	if body == "" {
		return nil, ErrEmpty
	}
	return sms.Encode([]byte(body))
}

// Split returns the text carried by each network segment of body. If the
// body cannot be encoded it is returned whole.
func Split(body string) []string {
	pdus, err := Segments(body)
	if err != nil || len(pdus) == 0 {
		return []string{body}
	}

	parts := make([]string, 0, len(pdus))
	for i := range pdus {
		text, err := sms.Decode([]*tpdu.TPDU{&pdus[i]})
		if err != nil {
			return []string{body}
		}
		parts = append(parts, string(text))
	}
	return parts
}
