package webhook

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/comet/internal/bus"
	"github.com/matheus3301/comet/internal/inbound"
)

const howAreYouPDU = "07911326040000F0040B911346610089F60000208062917314080CC8F71D14969741F977FD07"

func post(t *testing.T, s *Server, body, secret string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sms/inbound", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func nextFrame(t *testing.T, ch <-chan bus.Event) inbound.Frame {
	t.Helper()
	select {
	case evt := <-ch:
		f, ok := evt.Payload.(inbound.Frame)
		if !ok {
			t.Fatalf("payload = %T", evt.Payload)
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("no inbound.sms event")
	}
	return inbound.Frame{}
}

func TestInboundPDU(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindInboundSMS, 4)
	defer unsub()
	s := New("", b, zap.NewNop())

	if code := post(t, s, `{"pdus":["`+howAreYouPDU+`"]}`, ""); code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", code)
	}
	f := nextFrame(t, ch)
	if f.Text != "How are you?" || !strings.HasSuffix(f.From, "31641600986") || f.Channel != inbound.ChannelSMS {
		t.Errorf("frame = %+v", f)
	}
}

func TestInboundText(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindInboundSMS, 4)
	defer unsub()
	s := New("", b, zap.NewNop())

	body := `{"from":" +15551234 ","text":"CobaltComet{\"url\":\"http://a.b\"}"}`
	if code := post(t, s, body, ""); code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", code)
	}
	f := nextFrame(t, ch)
	if f.From != "+15551234" || f.Text != `CobaltComet{"url":"http://a.b"}` {
		t.Errorf("frame = %+v", f)
	}
}

func TestInboundMalformed(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("inbound.", 4)
	defer unsub()
	s := New("", b, zap.NewNop())

	for _, body := range []string{`not json`, `{}`, `{"from":"x","text":"  "}`, `{"pdus":["zz"]}`} {
		if code := post(t, s, body, ""); code != http.StatusBadRequest {
			t.Errorf("post(%s) status = %d, want 400", body, code)
		}
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %+v", evt)
	default:
	}
}

func TestInboundSecret(t *testing.T) {
	s := New("s3cret", bus.New(), zap.NewNop())
	body := `{"from":"1","text":"hi"}`

	if code := post(t, s, body, ""); code != http.StatusUnauthorized {
		t.Errorf("missing secret status = %d, want 401", code)
	}
	if code := post(t, s, body, "wrong"); code != http.StatusUnauthorized {
		t.Errorf("wrong secret status = %d, want 401", code)
	}
	if code := post(t, s, body, "s3cret"); code != http.StatusAccepted {
		t.Errorf("good secret status = %d, want 202", code)
	}
}

func TestHealthz(t *testing.T) {
	s := New("s3cret", bus.New(), zap.NewNop())
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
