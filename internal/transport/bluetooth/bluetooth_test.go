package bluetooth

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/comet/internal/status"
	"github.com/matheus3301/comet/internal/transport"
)

const (
	addrA = "AA:BB:CC:DD:EE:01"
	addrB = "AA:BB:CC:DD:EE:02"
)

type fakeAdapter struct {
	mu        sync.Mutex
	present   bool
	powered   bool
	bonded    []string
	bondedErr error
	dialErr   error
	dials     int
	peers     chan net.Conn
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		present: true,
		powered: true,
		bonded:  []string{addrA, addrB},
		peers:   make(chan net.Conn, 4),
	}
}

func (a *fakeAdapter) Present() bool { return a.present }
func (a *fakeAdapter) Powered() bool { return a.powered }

func (a *fakeAdapter) Bonded() ([]string, error) { return a.bonded, a.bondedErr }

func (a *fakeAdapter) Dial(_ context.Context, _ string) (Conn, error) {
	a.mu.Lock()
	a.dials++
	err := a.dialErr
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	local, remote := net.Pipe()
	a.peers <- remote
	return local, nil
}

func (a *fakeAdapter) Dials() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dials
}

type frame struct{ addr, text string }

func newTransport(a Adapter, timeout time.Duration) (*Transport, chan frame) {
	frames := make(chan frame, 8)
	tr := New(a, Options{ConnectTimeout: timeout}, func(addr, text string) {
		frames <- frame{addr, text}
	}, nil, zap.NewNop())
	return tr, frames
}

func sendAsync(tr *Transport, to, body string) <-chan bool {
	out := make(chan bool, 1)
	go func() { out <- tr.Send(context.Background(), to, body) }()
	return out
}

func nextPeer(t *testing.T, a *fakeAdapter) net.Conn {
	t.Helper()
	select {
	case p := <-a.peers:
		return p
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for dial")
		return nil
	}
}

func readPeer(t *testing.T, peer net.Conn) string {
	t.Helper()
	_ = peer.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	n, err := peer.Read(buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	return string(buf[:n])
}

func waitResult(t *testing.T, ch <-chan bool) bool {
	t.Helper()
	select {
	case ok := <-ch:
		return ok
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send")
		return false
	}
}

func waitState(t *testing.T, tr *Transport, want status.State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for tr.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", tr.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendWritesBody(t *testing.T) {
	a := newFakeAdapter()
	tr, _ := newTransport(a, time.Second)
	defer tr.Close()

	res := sendAsync(tr, addrA, "CobaltComet{}")
	peer := nextPeer(t, a)
	if got := readPeer(t, peer); got != "CobaltComet{}" {
		t.Errorf("peer got %q", got)
	}
	if !waitResult(t, res) {
		t.Fatal("Send() = false")
	}
	if tr.State() != status.Listening {
		t.Errorf("state = %s, want LISTENING", tr.State())
	}
	if addr, ok := tr.Linked(); !ok || addr != addrA {
		t.Errorf("Linked() = %q, %v", addr, ok)
	}
}

func TestSendReusesLinkToSameDevice(t *testing.T) {
	a := newFakeAdapter()
	tr, _ := newTransport(a, time.Second)
	defer tr.Close()

	res := sendAsync(tr, addrA, "one")
	peer := nextPeer(t, a)
	readPeer(t, peer)
	waitResult(t, res)

	res = sendAsync(tr, "aa:bb:cc:dd:ee:01", "two")
	if got := readPeer(t, peer); got != "two" {
		t.Errorf("peer got %q, want two", got)
	}
	if !waitResult(t, res) {
		t.Fatal("second Send() = false")
	}
	if a.Dials() != 1 {
		t.Errorf("dials = %d, want 1", a.Dials())
	}
}

func TestSendToOtherDeviceReplacesLink(t *testing.T) {
	a := newFakeAdapter()
	tr, _ := newTransport(a, time.Second)
	defer tr.Close()

	res := sendAsync(tr, addrA, "one")
	oldPeer := nextPeer(t, a)
	readPeer(t, oldPeer)
	waitResult(t, res)

	res = sendAsync(tr, addrB, "two")
	newPeer := nextPeer(t, a)
	if got := readPeer(t, newPeer); got != "two" {
		t.Errorf("new peer got %q", got)
	}
	waitResult(t, res)

	_ = oldPeer.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := oldPeer.Read(make([]byte, 1)); err == nil {
		t.Error("old link still open")
	}
	if addr, _ := tr.Linked(); addr != addrB {
		t.Errorf("Linked() = %q, want %s", addr, addrB)
	}
}

func TestInboundFramesRouted(t *testing.T) {
	a := newFakeAdapter()
	tr, frames := newTransport(a, time.Second)
	defer tr.Close()

	res := sendAsync(tr, addrA, "ping")
	peer := nextPeer(t, a)
	readPeer(t, peer)
	waitResult(t, res)

	if _, err := peer.Write([]byte(`CobaltComet{"text":["pong"]}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case f := <-frames:
		want := frame{addrA, `CobaltComet{"text":["pong"]}`}
		if !reflect.DeepEqual(f, want) {
			t.Errorf("frame = %+v, want %+v", f, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestPeerCloseClearsLink(t *testing.T) {
	a := newFakeAdapter()
	tr, _ := newTransport(a, time.Second)
	defer tr.Close()

	res := sendAsync(tr, addrA, "one")
	peer := nextPeer(t, a)
	readPeer(t, peer)
	waitResult(t, res)

	peer.Close()
	waitState(t, tr, status.Disconnected)
	if _, ok := tr.Linked(); ok {
		t.Error("stale link still reported")
	}

	res = sendAsync(tr, addrA, "two")
	readPeer(t, nextPeer(t, a))
	if !waitResult(t, res) {
		t.Fatal("Send() after reconnect = false")
	}
	if a.Dials() != 2 {
		t.Errorf("dials = %d, want 2", a.Dials())
	}
}

func TestWriteTimeout(t *testing.T) {
	a := newFakeAdapter()
	tr, _ := newTransport(a, 50*time.Millisecond)
	defer tr.Close()

	res := sendAsync(tr, addrA, "nobody reads this")
	_ = nextPeer(t, a)
	if waitResult(t, res) {
		t.Fatal("Send() = true without a reader")
	}
	if tr.State() != status.Failed {
		t.Errorf("state = %s, want FAILED", tr.State())
	}
	if _, ok := tr.Linked(); ok {
		t.Error("failed link still reported")
	}
}

func TestDialFailure(t *testing.T) {
	a := newFakeAdapter()
	a.dialErr = errors.New("host is down")
	tr, _ := newTransport(a, time.Second)
	defer tr.Close()

	if tr.Send(context.Background(), addrA, "hi") {
		t.Fatal("Send() = true")
	}
	if tr.State() != status.Failed {
		t.Errorf("state = %s, want FAILED", tr.State())
	}
}

func TestCloseStopsListener(t *testing.T) {
	a := newFakeAdapter()
	tr, _ := newTransport(a, time.Second)

	res := sendAsync(tr, addrA, "one")
	peer := nextPeer(t, a)
	readPeer(t, peer)
	waitResult(t, res)

	done := make(chan struct{})
	go func() {
		tr.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() did not return")
	}
	if tr.State() != status.Disconnected {
		t.Errorf("state = %s, want DISCONNECTED", tr.State())
	}
	if tr.Send(context.Background(), addrA, "late") {
		t.Error("Send() after Close() = true")
	}
}

func TestSendInvalidAddress(t *testing.T) {
	a := newFakeAdapter()
	tr, _ := newTransport(a, time.Second)
	if tr.Send(context.Background(), "+15551234", "hi") {
		t.Fatal("Send() = true for a phone number")
	}
	if a.Dials() != 0 {
		t.Errorf("dials = %d, want 0", a.Dials())
	}
}

func TestPreflight(t *testing.T) {
	tests := []struct {
		name   string
		target string
		setup  func(*fakeAdapter)
		reason string
	}{
		{"paired", addrA, nil, ""},
		{"paired lower case", "aa:bb:cc:dd:ee:02", nil, ""},
		{"malformed", "AA:BB:CC", nil, ReasonInvalidAddress},
		{"phone number", "+15551234", nil, ReasonInvalidAddress},
		{"no adapter", addrA, func(a *fakeAdapter) { a.present = false }, ReasonUnavailable},
		{"powered off", addrA, func(a *fakeAdapter) { a.powered = false }, ReasonUnavailable},
		{"bonded list error", addrA, func(a *fakeAdapter) { a.bondedErr = errors.New("eacces") }, ReasonUnavailable},
		{"not paired", "11:22:33:44:55:66", nil, ReasonNotPaired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newFakeAdapter()
			if tt.setup != nil {
				tt.setup(a)
			}
			tr, _ := newTransport(a, time.Second)
			err := tr.Preflight(tt.target)
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("Preflight() = %v, want nil", err)
				}
				return
			}
			var rej *transport.RejectError
			if !errors.As(err, &rej) || rej.Reason != tt.reason {
				t.Errorf("Preflight() = %v, want %q", err, tt.reason)
			}
		})
	}
}

func TestCanHandle(t *testing.T) {
	tr, _ := newTransport(newFakeAdapter(), time.Second)
	cases := map[string]bool{
		addrA:               true,
		"aa:bb:cc:dd:ee:ff": true,
		"AA-BB-CC-DD-EE-FF": false,
		"AA:BB:CC:DD:EE":    false,
		"+15551234":         false,
		"":                  false,
	}
	for in, want := range cases {
		if got := tr.CanHandle(in); got != want {
			t.Errorf("CanHandle(%q) = %v, want %v", in, got, want)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSysAdapter(t *testing.T) {
	sysfs := t.TempDir()
	state := t.TempDir()

	writeFile(t, filepath.Join(sysfs, "hci0", "rfkill3", "state"), "1\n")
	writeFile(t, filepath.Join(state, "00:11:22:33:44:55", addrA, "info"), "[General]\nName=Car\n\n[LinkKey]\nKey=ABC\n")
	writeFile(t, filepath.Join(state, "00:11:22:33:44:55", "aa:bb:cc:dd:ee:02", "info"), "[LongTermKey]\nKey=DEF\n")
	writeFile(t, filepath.Join(state, "00:11:22:33:44:55", "11:22:33:44:55:66", "info"), "[General]\nName=Seen only\n")
	writeFile(t, filepath.Join(state, "00:11:22:33:44:55", "cache", "info"), "[LinkKey]\n")
	// Paired with a second controller only.
	writeFile(t, filepath.Join(state, "66:55:44:33:22:11", "AA:BB:CC:DD:EE:09", "info"), "[LinkKey]\nKey=GHI\n")

	hci := hciInfo{Address: "00:11:22:33:44:55", Up: true}
	var hciErr error
	a := &SysAdapter{Name: "hci0", SysfsRoot: sysfs, StateDir: state, Channel: 1}
	a.devInfo = func(name string) (hciInfo, error) {
		if name != "hci0" {
			t.Errorf("devInfo(%q), want hci0", name)
		}
		return hci, hciErr
	}
	if !a.Present() || !a.Powered() {
		t.Fatalf("Present() = %v, Powered() = %v", a.Present(), a.Powered())
	}

	bonded, err := a.Bonded()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{addrA, addrB}
	if !reflect.DeepEqual(bonded, want) {
		t.Errorf("Bonded() = %v, want %v", bonded, want)
	}

	hci.Up = false
	if a.Powered() {
		t.Error("Powered() = true with the controller down")
	}
	hci.Up = true

	hciErr = errors.New("no such device")
	if a.Powered() {
		t.Error("Powered() = true without device info")
	}
	if _, err := a.Bonded(); err == nil {
		t.Error("Bonded() succeeded without device info")
	}
	hciErr = nil

	writeFile(t, filepath.Join(sysfs, "hci0", "rfkill3", "state"), "0\n")
	if a.Powered() {
		t.Error("Powered() = true with rfkill blocked")
	}

	missing := &SysAdapter{Name: "hci1", SysfsRoot: sysfs, StateDir: state}
	if missing.Present() || missing.Powered() {
		t.Error("missing controller reported present")
	}
}

func TestParseHCIDevInfo(t *testing.T) {
	buf := make([]byte, hciDevInfoSize)
	copy(buf[2:], "hci0")
	copy(buf[hciAddrOffset:], []byte{0x55, 0x44, 0x33, 0x22, 0x11, 0x00})
	binary.NativeEndian.PutUint32(buf[hciFlagsOffset:], hciFlagUp|1<<2)

	info, err := parseHCIDevInfo(buf)
	if err != nil {
		t.Fatal(err)
	}
	if info.Address != "00:11:22:33:44:55" || !info.Up {
		t.Errorf("parseHCIDevInfo() = %+v", info)
	}

	binary.NativeEndian.PutUint32(buf[hciFlagsOffset:], 1<<2)
	if info, _ := parseHCIDevInfo(buf); info.Up {
		t.Error("down controller reported up")
	}
	if _, err := parseHCIDevInfo(buf[:12]); err == nil {
		t.Error("short buffer accepted")
	}
}

func TestHCIDevID(t *testing.T) {
	if id, err := hciDevID("hci3"); err != nil || id != 3 {
		t.Errorf("hciDevID(hci3) = %d, %v", id, err)
	}
	for _, name := range []string{"", "hci", "usb0", "hci-1"} {
		if _, err := hciDevID(name); err == nil {
			t.Errorf("hciDevID(%q) succeeded", name)
		}
	}
}

func TestConcurrentSendsShareOneLink(t *testing.T) {
	a := newFakeAdapter()
	tr, _ := newTransport(a, time.Second)
	defer tr.Close()

	res1 := sendAsync(tr, addrA, "one")
	res2 := sendAsync(tr, addrA, "two")

	peer := nextPeer(t, a)
	got := []string{readPeer(t, peer), readPeer(t, peer)}
	slices.Sort(got)
	if !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Errorf("peer got %v", got)
	}
	if !waitResult(t, res1) || !waitResult(t, res2) {
		t.Fatal("concurrent Send() = false")
	}
	if a.Dials() != 1 {
		t.Errorf("dials = %d, want 1", a.Dials())
	}
}
