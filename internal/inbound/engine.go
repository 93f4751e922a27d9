package inbound

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/comet/internal/action"
	"github.com/matheus3301/comet/internal/bus"
	"github.com/matheus3301/comet/internal/message"
	"github.com/matheus3301/comet/internal/prefs"
)

// Store is where accepted messages and the push log are kept.
type Store interface {
	SaveMessage(m message.Message) error
	SavePushMessage(e prefs.PushEntry) error
	DisplayName(number string) string
}

// Resolver acts on a decoded message.
type Resolver interface {
	Resolve(m message.Message) action.Outcome
}

// Received is the payload of message.received events.
type Received struct {
	Channel     Channel         `json:"channel"`
	DisplayName string          `json:"display_name,omitempty"`
	Message     message.Message `json:"message"`
}

// Engine runs the uniform handoff for every inbound frame. It subscribes to
// "inbound.*" events on the bus and processes them.
type Engine struct {
	store    Store
	resolver Resolver
	bus      *bus.Bus
	logger   *zap.Logger
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewEngine creates an inbound engine. resolver may be nil to only store.
func NewEngine(s Store, r Resolver, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		store:    s,
		resolver: r,
		bus:      b,
		logger:   logger,
		now:      time.Now,
	}
}

// Start subscribes to inbound events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("inbound.", 256)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the in-flight event.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case Frame:
		e.Handle(p)
	case PushPayload:
		e.HandlePush(p)
	default:
		e.logger.Debug("ignoring inbound event", zap.String("kind", evt.Kind))
	}
}

// HandlePush logs the payload to the push log, then hands its text off.
func (e *Engine) HandlePush(p PushPayload) bool {
	f, ok := ExtractPush(p)
	if !ok {
		e.logger.Debug("push payload without body", zap.String("from", p.From))
		return false
	}

	ts := f.ReceivedAt
	if ts.IsZero() {
		ts = e.now()
	}
	if err := e.store.SavePushMessage(prefs.PushEntry{From: f.From, Body: f.Text, Timestamp: ts.UnixMilli()}); err != nil {
		e.logger.Error("failed to log push message", zap.Error(err))
	}
	return e.Handle(f)
}

// Handle gates, decodes, stamps, stores and resolves one frame. It reports
// whether the frame was accepted as a wire message.
func (e *Engine) Handle(f Frame) bool {
	if !message.ShouldIntercept(f.Text) {
		return false
	}
	m, ok := message.Decode(f.Text)
	if !ok {
		e.logger.Warn("undecodable wire message",
			zap.String("channel", string(f.Channel)),
			zap.String("from", f.From),
		)
		return false
	}

	ts := f.ReceivedAt
	if ts.IsZero() {
		ts = e.now()
	}
	m.From = f.From
	m.ReceivedAt = ts.UnixMilli()

	if err := e.store.SaveMessage(m); err != nil {
		e.logger.Error("failed to store message", zap.Error(err), zap.String("from", f.From))
	}

	name := e.store.DisplayName(f.From)
	e.logger.Info("message received",
		zap.String("channel", string(f.Channel)),
		zap.String("from", f.From),
		zap.String("name", name),
	)
	e.bus.Publish(bus.Event{
		Kind:    bus.KindMessageReceived,
		Payload: Received{Channel: f.Channel, DisplayName: name, Message: m},
	})

	if e.resolver != nil {
		out := e.resolver.Resolve(m)
		if out.Any() {
			e.bus.Publish(bus.Event{Kind: bus.KindActionTaken, Payload: out})
		}
	}
	return true
}
