package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/comet/internal/bus"
	"github.com/matheus3301/comet/internal/contact"
	"github.com/matheus3301/comet/internal/store"
	"github.com/matheus3301/comet/internal/transport"
)

// Dispatcher delivers one wire message over the configured transports.
type Dispatcher interface {
	Deliver(ctx context.Context, e contact.Entry, body string) transport.Result
}

const errNoTransport = "no transport delivered the message"

// Sender drains the outbox and hands each entry to the dispatcher. Entries
// are attempted once; a failed entry stays failed.
type Sender struct {
	db         *store.DB
	dispatcher Dispatcher
	bus        *bus.Bus
	logger     *zap.Logger
	interval   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, d Dispatcher, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:         db,
		dispatcher: d,
		bus:        b,
		logger:     logger,
		interval:   500 * time.Millisecond,
	}
}

// Enqueue validates the recipient and body, then queues the send. The
// returned id identifies the entry in send_ack and send_failed events.
func (s *Sender) Enqueue(e contact.Entry, body string) (string, error) {
	if err := transport.ValidateBase(e.Number, body); err != nil {
		return "", err
	}
	id := uuid.NewString()
	err := s.db.QueueOutbox(store.OutboxEntry{
		ClientMsgID:   id,
		Recipient:     e.Number,
		Label:         e.Label,
		RecipientType: string(e.Type),
		Body:          body,
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("queued send", zap.String("client_msg_id", id), zap.String("to", e.Number))
	return id, nil
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for an in-flight entry to finish.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sender) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		s.process(ctx, entry)
	}
}

func (s *Sender) process(ctx context.Context, entry store.OutboxEntry) {
	id := entry.ClientMsgID
	if err := s.db.MarkOutboxSending(id); err != nil {
		s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", id))
		return
	}
	s.bus.Publish(bus.Event{
		Kind:    bus.KindMessageSending,
		Payload: map[string]string{"client_msg_id": id, "to": entry.Recipient},
	})

	recipient := contact.Entry{
		Label:  entry.Label,
		Number: entry.Recipient,
		Type:   contact.ParseType(entry.RecipientType),
	}
	res := s.dispatcher.Deliver(ctx, recipient, entry.Body)
	if !res.OK {
		s.logger.Error("failed to send message", zap.String("client_msg_id", id), zap.String("to", entry.Recipient))
		if err := s.db.MarkOutboxFailed(id, errNoTransport); err != nil {
			s.logger.Error("failed to mark failed", zap.Error(err), zap.String("client_msg_id", id))
		}
		s.bus.Publish(bus.Event{
			Kind: bus.KindMessageSendFailed,
			Payload: map[string]string{
				"client_msg_id": id,
				"to":            entry.Recipient,
				"error":         errNoTransport,
			},
		})
		return
	}

	if err := s.db.MarkOutboxSent(id, string(res.Kind)); err != nil {
		s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", id))
	}
	s.logger.Info("message sent", zap.String("client_msg_id", id), zap.String("transport", string(res.Kind)))
	s.bus.Publish(bus.Event{
		Kind: bus.KindMessageSendAck,
		Payload: map[string]string{
			"client_msg_id": id,
			"to":            entry.Recipient,
			"transport":     string(res.Kind),
		},
	})
}
