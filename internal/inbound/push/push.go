// Package push receives push-channel payloads from a message broker and
// hands them to the inbound engine.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/comet/internal/inbound"
)

// Handler receives each decoded payload.
type Handler func(inbound.PushPayload)

// Source delivers push payloads until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, h Handler) error
	Close() error
}

// Envelope is the JSON shape every driver carries. SentTime is epoch millis.
type Envelope struct {
	From     string            `json:"from,omitempty"`
	SentTime int64             `json:"sent_time,omitempty"`
	Data     map[string]string `json:"data"`
}

var errNoData = errors.New("push envelope has no data")

// DecodeEnvelope parses a raw envelope into a payload.
func DecodeEnvelope(raw []byte) (inbound.PushPayload, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return inbound.PushPayload{}, fmt.Errorf("decode push envelope: %w", err)
	}
	if env.Data == nil {
		return inbound.PushPayload{}, errNoData
	}
	p := inbound.PushPayload{Data: env.Data, From: env.From}
	if env.SentTime > 0 {
		p.SentTime = time.UnixMilli(env.SentTime)
	}
	return p, nil
}
