package transport

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/comet/internal/contact"
)

// Result is the outcome of one dispatch. Kind is the transport that
// delivered, empty when nothing did.
type Result struct {
	OK   bool
	Kind Kind
}

// Dispatcher picks transports for a recipient and tries them in order.
type Dispatcher struct {
	mu         sync.RWMutex
	cfg        Config
	transports map[Kind]Transport
	notifier   Notifier
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher over a fixed registry of backends.
func NewDispatcher(cfg Config, transports map[Kind]Transport, notifier Notifier, logger *zap.Logger) *Dispatcher {
	if notifier == nil {
		notifier = discard{}
	}
	registry := make(map[Kind]Transport, len(transports))
	for k, t := range transports {
		registry[k] = t
	}
	return &Dispatcher{
		cfg:        cfg,
		transports: registry,
		notifier:   notifier,
		logger:     logger,
	}
}

// Config returns the current dispatch policy.
func (d *Dispatcher) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// SetConfig replaces the dispatch policy for subsequent sends.
func (d *Dispatcher) SetConfig(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

// Plan returns the transports Dispatch would try for e, in order.
func (d *Dispatcher) Plan(e contact.Entry) []Kind {
	cfg := d.Config()
	target := strings.TrimSpace(e.Number)

	var order []Kind
	if primary, ok := affinity(e); ok {
		order = []Kind{primary}
	} else {
		switch cfg.Mode {
		case ModeBluetooth:
			order = []Kind{Bluetooth}
		case ModeAuto:
			if bt, ok := d.transports[Bluetooth]; ok && bt.CanHandle(target) {
				order = []Kind{Bluetooth, SMS}
			} else {
				order = []Kind{SMS, Bluetooth}
			}
		default:
			order = []Kind{SMS}
		}
	}

	if cfg.Fallback != "" && !slices.Contains(order, cfg.Fallback) {
		order = append(order, cfg.Fallback)
	}
	return order
}

// Dispatch sends body to e. It returns true iff some transport accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, e contact.Entry, body string) bool {
	return d.dispatch(ctx, e, body).OK
}

// Deliver is Dispatch reporting which transport delivered.
func (d *Dispatcher) Deliver(ctx context.Context, e contact.Entry, body string) Result {
	return d.dispatch(ctx, e, body)
}

// DispatchAsync runs the base preflight inline, then sends in the
// background. The returned channel receives exactly one Result.
func (d *Dispatcher) DispatchAsync(ctx context.Context, e contact.Entry, body string) <-chan Result {
	out := make(chan Result, 1)
	if err := ValidateBase(e.Number, body); err != nil {
		d.reject(err)
		out <- Result{}
		close(out)
		return out
	}
	go func() {
		defer close(out)
		out <- d.dispatch(ctx, e, body)
	}()
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, e contact.Entry, body string) Result {
	if err := ValidateBase(e.Number, body); err != nil {
		d.reject(err)
		return Result{}
	}
	target := strings.TrimSpace(e.Number)

	for _, kind := range d.Plan(e) {
		if ctx.Err() != nil {
			d.logger.Debug("dispatch cancelled", zap.String("to", target))
			return Result{}
		}
		if d.attempt(ctx, kind, target, body) {
			return Result{OK: true, Kind: kind}
		}
	}
	return Result{}
}

func (d *Dispatcher) attempt(ctx context.Context, kind Kind, target, body string) bool {
	t, ok := d.transports[kind]
	if !ok {
		d.logger.Warn("transport not registered", zap.String("transport", string(kind)))
		d.notifier.Notify(Notice{Transport: kind, Text: kind.Label() + " is not available"})
		return false
	}

	if p, ok := t.(Preflighter); ok {
		if err := p.Preflight(target); err != nil {
			text := err.Error()
			var rej *RejectError
			if errors.As(err, &rej) {
				text = rej.Reason
			}
			d.logger.Info("preflight rejected",
				zap.String("transport", string(kind)),
				zap.String("to", target),
				zap.String("reason", text),
			)
			d.notifier.Notify(Notice{Transport: kind, Text: text})
			return false
		}
	}

	if t.Send(ctx, target, body) {
		d.logger.Debug("sent", zap.String("transport", string(kind)), zap.String("to", target))
		return true
	}

	d.logger.Warn("send failed", zap.String("transport", string(kind)), zap.String("to", target))
	d.notifier.Notify(Notice{Transport: kind, Text: kind.Label() + " send failed"})
	return false
}

func (d *Dispatcher) reject(err error) {
	var rej *RejectError
	if !errors.As(err, &rej) {
		return
	}
	d.logger.Debug("send rejected", zap.String("reason", rej.Reason))
	d.notifier.Notify(Notice{Text: rej.Reason})
}
