// Package bluetooth sends wire messages over an RFCOMM serial link to a
// paired device and keeps the link open to receive replies.
package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/comet/internal/status"
	"github.com/matheus3301/comet/internal/transport"
)

// Rejection reasons shown to the user.
const (
	ReasonInvalidAddress = "Bluetooth address is invalid"
	ReasonUnavailable    = "Bluetooth is unavailable"
	ReasonNotPaired      = "No paired device matches the selected address"
)

const (
	// SerialPortUUID is the Serial Port Profile service class.
	SerialPortUUID = "00001101-0000-1000-8000-00805F9B34FB"

	readBufferSize        = 1024
	defaultConnectTimeout = 5 * time.Second
)

var errClosed = errors.New("bluetooth: transport closed")

// FrameHandler receives each non-empty read from a device.
type FrameHandler func(addr, text string)

// Options configures the transport.
type Options struct {
	// ConnectTimeout bounds both the connect and each write.
	ConnectTimeout time.Duration
}

// Transport owns at most one live link. Sends are serialized, so two sends
// never open two sockets.
type Transport struct {
	adapter Adapter
	opts    Options
	onFrame FrameHandler
	state   *status.Machine
	logger  *zap.Logger

	sendMu sync.Mutex

	mu      sync.Mutex
	current *link
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Bluetooth transport. state may be nil.
func New(adapter Adapter, opts Options, onFrame FrameHandler, state *status.Machine, logger *zap.Logger) *Transport {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if state == nil {
		state = status.NewMachine(nil)
	}
	return &Transport{
		adapter: adapter,
		opts:    opts,
		onFrame: onFrame,
		state:   state,
		logger:  logger,
	}
}

// CanHandle reports whether target is shaped like a hardware address.
func (t *Transport) CanHandle(target string) bool {
	return ValidAddress(target)
}

// Preflight rejects targets that are malformed or not paired, and any send
// while the controller is missing or off.
func (t *Transport) Preflight(target string) error {
	if !ValidAddress(target) {
		return transport.Reject(ReasonInvalidAddress)
	}
	if !t.adapter.Present() || !t.adapter.Powered() {
		return transport.Reject(ReasonUnavailable)
	}
	bonded, err := t.adapter.Bonded()
	if err != nil {
		t.logger.Warn("list bonded devices", zap.Error(err))
		return transport.Reject(ReasonUnavailable)
	}
	if !slices.ContainsFunc(bonded, func(a string) bool { return NormalizeAddress(a) == NormalizeAddress(target) }) {
		return transport.Reject(ReasonNotPaired)
	}
	return nil
}

// Send writes body to the device at to, reusing the open link when it is
// still alive and bound to the same address.
func (t *Transport) Send(ctx context.Context, to, body string) bool {
	addr := NormalizeAddress(to)
	if !ValidAddress(addr) {
		t.logger.Error("bluetooth send to invalid address", zap.String("to", to))
		return false
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	l, err := t.acquire(ctx, addr)
	if err != nil {
		t.logger.Error("bluetooth connect failed", zap.String("to", addr), zap.Error(err))
		return false
	}
	if err := l.write([]byte(body), t.opts.ConnectTimeout); err != nil {
		t.logger.Error("bluetooth write failed", zap.String("to", addr), zap.Error(err))
		t.drop(l, status.Failed)
		return false
	}
	return true
}

// State returns the link state.
func (t *Transport) State() status.State {
	return t.state.Current()
}

// Linked returns the address of the live link, if any.
func (t *Transport) Linked() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil || !t.current.alive() {
		return "", false
	}
	return t.current.addr, true
}

// Close tears down the live link and waits for its listener to exit.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	cur := t.current
	t.current = nil
	if cur != nil {
		t.transition(status.Disconnected, cur.addr)
	}
	t.mu.Unlock()

	if cur != nil {
		cur.close(t.logger)
	}
	t.wg.Wait()
	return nil
}

func (t *Transport) acquire(ctx context.Context, addr string) (*link, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errClosed
	}
	old := t.current
	if old != nil && old.addr == addr && old.alive() {
		t.mu.Unlock()
		return old, nil
	}
	if old != nil {
		t.current = nil
		t.transition(status.Disconnected, old.addr)
	}
	t.transition(status.Connecting, addr)
	t.mu.Unlock()

	if old != nil {
		old.close(t.logger)
	}

	dctx, cancel := context.WithTimeout(ctx, t.opts.ConnectTimeout)
	conn, err := t.adapter.Dial(dctx, addr)
	cancel()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.transition(status.Failed, addr)
		return nil, err
	}
	if t.closed {
		if cerr := conn.Close(); cerr != nil {
			t.logger.Warn("bluetooth close", zap.String("addr", addr), zap.Error(cerr))
		}
		return nil, errClosed
	}

	l := &link{addr: addr, conn: conn, done: make(chan struct{})}
	t.current = l
	t.transition(status.Connected, addr)
	t.wg.Add(1)
	go t.listen(l)
	t.transition(status.Listening, addr)
	t.logger.Info("bluetooth link open", zap.String("addr", addr))
	return l, nil
}

// listen hands every non-empty read to onFrame until the link fails or is
// closed.
func (t *Transport) listen(l *link) {
	defer t.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := l.conn.Read(buf)
		if n > 0 && t.onFrame != nil {
			t.onFrame(l.addr, string(buf[:n]))
		}
		if err != nil {
			if l.alive() && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				t.logger.Warn("bluetooth read", zap.String("addr", l.addr), zap.Error(err))
			}
			break
		}
	}
	t.drop(l, status.Disconnected)
}

// drop clears l as the current link if it still is, then closes it.
func (t *Transport) drop(l *link, to status.State) {
	t.mu.Lock()
	if t.current == l {
		t.current = nil
		t.transition(to, l.addr)
	}
	t.mu.Unlock()
	l.close(t.logger)
}

// transition must be called with t.mu held.
func (t *Transport) transition(to status.State, addr string) {
	if err := t.state.Transition(to, addr); err != nil {
		t.logger.Debug("link state", zap.Error(err))
	}
}

// link is one open socket. It is replaced, never re-pointed at another
// device or reopened.
type link struct {
	addr string
	conn Conn
	once sync.Once
	done chan struct{}
}

func (l *link) alive() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *link) write(b []byte, timeout time.Duration) error {
	if !l.alive() {
		return fmt.Errorf("link to %s is closed", l.addr)
	}
	if timeout > 0 {
		if err := l.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	_, err := l.conn.Write(b)
	return err
}

func (l *link) close(logger *zap.Logger) {
	l.once.Do(func() {
		close(l.done)
		if err := l.conn.Close(); err != nil {
			logger.Warn("bluetooth close", zap.String("addr", l.addr), zap.Error(err))
		}
	})
}
