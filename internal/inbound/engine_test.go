package inbound

import (
	"sync"
	"testing"
	"time"

	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/comet/internal/action"
	"github.com/matheus3301/comet/internal/bus"
	"github.com/matheus3301/comet/internal/message"
	"github.com/matheus3301/comet/internal/prefs"
)

type fakeStore struct {
	mu       sync.Mutex
	messages []message.Message
	pushes   []prefs.PushEntry
	names    map[string]string
}

func (s *fakeStore) SaveMessage(m message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *fakeStore) SavePushMessage(e prefs.PushEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, e)
	return nil
}

func (s *fakeStore) DisplayName(number string) string { return s.names[number] }

func (s *fakeStore) Messages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Message(nil), s.messages...)
}

type fakeResolver struct {
	mu   sync.Mutex
	seen []message.Message
}

func (r *fakeResolver) Resolve(m message.Message) action.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, m)
	return action.Outcome{NavigationLaunched: m.HasCoordinates()}
}

var fixedNow = time.UnixMilli(1700000000123)

func newEngine(s *fakeStore, r Resolver, b *bus.Bus) *Engine {
	e := NewEngine(s, r, b, zap.NewNop())
	e.now = func() time.Time { return fixedNow }
	return e
}

func TestHandleAcceptsWireMessage(t *testing.T) {
	s := &fakeStore{names: map[string]string{"+1555": "Alice"}}
	r := &fakeResolver{}
	b := bus.New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	e := newEngine(s, r, b)
	wire := message.EncodeGeoMessage("1", "2", "Home")
	if !e.Handle(Frame{Channel: ChannelSMS, From: "+1555", Text: wire}) {
		t.Fatal("Handle() = false")
	}

	want := message.Message{Lat: "1", Lng: "2", LocationName: "Home", From: "+1555", ReceivedAt: fixedNow.UnixMilli()}
	if msgs := s.Messages(); len(msgs) != 1 || !equal(msgs[0], want) {
		t.Errorf("stored = %+v, want %+v", msgs, want)
	}
	if len(r.seen) != 1 || !equal(r.seen[0], want) {
		t.Errorf("resolved = %+v", r.seen)
	}

	evt := <-ch
	if evt.Kind != bus.KindMessageReceived {
		t.Fatalf("first event = %q", evt.Kind)
	}
	rec, ok := evt.Payload.(Received)
	if !ok || rec.DisplayName != "Alice" || rec.Channel != ChannelSMS {
		t.Errorf("payload = %+v", evt.Payload)
	}
	if evt := <-ch; evt.Kind != bus.KindActionTaken {
		t.Errorf("second event = %q, want %s", evt.Kind, bus.KindActionTaken)
	}
}

func TestHandleIgnoresOrdinaryText(t *testing.T) {
	s := &fakeStore{}
	r := &fakeResolver{}
	e := newEngine(s, r, bus.New())

	for _, text := range []string{"hey, dinner at 8?", `{"url":"http://x"}`, ""} {
		if e.Handle(Frame{Channel: ChannelSMS, From: "+1", Text: text}) {
			t.Errorf("Handle(%q) = true", text)
		}
	}
	if len(s.Messages()) != 0 || len(r.seen) != 0 {
		t.Error("ordinary text was stored or resolved")
	}
}

func TestHandleDropsUndecodable(t *testing.T) {
	s := &fakeStore{}
	e := newEngine(s, nil, bus.New())
	if e.Handle(Frame{Channel: ChannelBluetooth, From: "AA:BB:CC:DD:EE:FF", Text: message.Prefix + "{broken"}) {
		t.Fatal("Handle() = true for malformed JSON")
	}
	if len(s.Messages()) != 0 {
		t.Error("malformed message stored")
	}
}

func TestHandleUsesChannelTimestamp(t *testing.T) {
	s := &fakeStore{}
	e := newEngine(s, nil, bus.New())
	sent := time.UnixMilli(1600000000000)

	e.Handle(Frame{Channel: ChannelPush, From: "x", Text: message.Encode(message.Message{URL: "http://a"}), ReceivedAt: sent})
	if msgs := s.Messages(); len(msgs) != 1 || msgs[0].ReceivedAt != sent.UnixMilli() {
		t.Errorf("stored = %+v", msgs)
	}
}

func TestHandlePushLogsBeforeGate(t *testing.T) {
	s := &fakeStore{}
	e := newEngine(s, nil, bus.New())

	accepted := e.HandlePush(PushPayload{Data: map[string]string{"body": "plain hello", "from": "Bob"}})
	if accepted {
		t.Error("plain push text accepted as wire message")
	}
	if len(s.pushes) != 1 || s.pushes[0] != (prefs.PushEntry{From: "Bob", Body: "plain hello", Timestamp: fixedNow.UnixMilli()}) {
		t.Errorf("push log = %+v", s.pushes)
	}

	wire := message.Encode(message.Message{TextList: []string{"hi"}})
	if !e.HandlePush(PushPayload{Data: map[string]string{"message": wire}, From: "sender"}) {
		t.Error("wire push not accepted")
	}
	if msgs := s.Messages(); len(msgs) != 1 || msgs[0].From != "sender" {
		t.Errorf("stored = %+v", msgs)
	}

	if e.HandlePush(PushPayload{Data: map[string]string{}}) {
		t.Error("empty push accepted")
	}
	if len(s.pushes) != 2 {
		t.Errorf("push log len = %d, want 2", len(s.pushes))
	}
}

func TestEngineConsumesBusEvents(t *testing.T) {
	s := &fakeStore{}
	b := bus.New()
	e := newEngine(s, nil, b)
	e.Start(context.Background())
	defer e.Stop()

	b.Publish(bus.Event{Kind: bus.KindInboundBluetooth, Payload: BluetoothFrame("AA:BB:CC:DD:EE:FF", message.Encode(message.Message{URL: "http://a"}))})
	b.Publish(bus.Event{Kind: bus.KindInboundPush, Payload: PushPayload{Data: map[string]string{"body": message.Encode(message.Message{URL: "http://b"})}}})

	deadline := time.Now().Add(time.Second)
	for len(s.Messages()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("stored %d messages, want 2", len(s.Messages()))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func equal(a, b message.Message) bool {
	return a.String() == b.String()
}
