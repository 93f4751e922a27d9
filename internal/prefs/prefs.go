// Package prefs gives typed access to the named preference collections:
// contacts, message history, QR contacts, the push log and the push token.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/matheus3301/comet/internal/contact"
	"github.com/matheus3301/comet/internal/message"
	"github.com/matheus3301/comet/internal/transport"
)

// Preference keys.
const (
	KeyContacts     = "phone"
	KeyMessages     = "messages"
	KeyQRContacts   = "qr_contacts"
	KeyPushMessages = "push_messages"
	KeyPushToken    = "push_token"
	KeyTransport    = "transport"
)

const (
	DefaultHistoryMax = 10
	PushLogMax        = 50
)

var (
	ErrInvalidContact = errors.New("contact needs a label and a number")
	ErrEmptyName      = errors.New("name must not be empty")
)

// KV is the persistence surface prefs are stored in.
type KV interface {
	GetPref(key string) (string, bool, error)
	SetPref(key, value string) error
}

// PushEntry is one logged push payload.
type PushEntry struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// Prefs serializes read-modify-write cycles on the collections.
type Prefs struct {
	mu         sync.Mutex
	kv         KV
	historyMax int
}

// New creates Prefs over kv. historyMax <= 0 selects the default.
func New(kv KV, historyMax int) *Prefs {
	if historyMax <= 0 {
		historyMax = DefaultHistoryMax
	}
	return &Prefs{kv: kv, historyMax: historyMax}
}

func (p *Prefs) get(key string) (string, error) {
	v, _, err := p.kv.GetPref(key)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (p *Prefs) setJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := p.kv.SetPref(key, string(b)); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Contacts returns saved contacts, most recent first.
func (p *Prefs) Contacts() ([]contact.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contacts()
}

func (p *Prefs) contacts() ([]contact.Entry, error) {
	raw, err := p.get(KeyContacts)
	if err != nil {
		return nil, err
	}
	return contact.DecodeList(raw), nil
}

func (p *Prefs) saveContacts(entries []contact.Entry) error {
	raw, err := contact.EncodeList(entries)
	if err != nil {
		return err
	}
	return p.kv.SetPref(KeyContacts, raw)
}

// AddContact saves e at the front, replacing any entry with the same number.
func (p *Prefs) AddContact(e contact.Entry) error {
	e.Label = strings.TrimSpace(e.Label)
	e.Number = strings.TrimSpace(e.Number)
	if e.Label == "" || e.Number == "" {
		return ErrInvalidContact
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	entries, err := p.contacts()
	if err != nil {
		return err
	}
	return p.saveContacts(contact.Prepend(entries, e))
}

// RemoveContact deletes the entry with number. It reports whether one existed.
func (p *Prefs) RemoveContact(number string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries, err := p.contacts()
	if err != nil {
		return false, err
	}
	kept := contact.Remove(entries, strings.TrimSpace(number))
	if len(kept) == len(entries) {
		return false, nil
	}
	return true, p.saveContacts(kept)
}

// DisplayName returns the label saved for number, or "" if none.
func (p *Prefs) DisplayName(number string) string {
	entries, err := p.Contacts()
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.Number == number {
			return e.Label
		}
	}
	return ""
}

// Messages returns the stored history, newest first.
func (p *Prefs) Messages() ([]message.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages()
}

func (p *Prefs) messages() ([]message.Message, error) {
	raw, err := p.get(KeyMessages)
	if err != nil || strings.TrimSpace(raw) == "" {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, nil
	}
	out := make([]message.Message, 0, len(items))
	for _, item := range items {
		var m message.Message
		if json.Unmarshal(item, &m) == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// SaveMessage prepends m to the history and drops the oldest entries past
// the cap.
func (p *Prefs) SaveMessage(m message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs, err := p.messages()
	if err != nil {
		return err
	}
	msgs = append([]message.Message{m}, msgs...)
	if len(msgs) > p.historyMax {
		msgs = msgs[:p.historyMax]
	}
	return p.setJSON(KeyMessages, msgs)
}

// QRContacts returns the name to push-token map.
func (p *Prefs) QRContacts() (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.qrContacts()
}

func (p *Prefs) qrContacts() (map[string]string, error) {
	raw, err := p.get(KeyQRContacts)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if strings.TrimSpace(raw) != "" {
		_ = json.Unmarshal([]byte(raw), &out)
	}
	return out, nil
}

// SaveQRContact stores token under name. The latest save for a name wins.
func (p *Prefs) SaveQRContact(name, token string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	contacts, err := p.qrContacts()
	if err != nil {
		return err
	}
	contacts[name] = token
	return p.setJSON(KeyQRContacts, contacts)
}

// PushMessages returns the push log, newest first.
func (p *Prefs) PushMessages() ([]PushEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pushMessages()
}

func (p *Prefs) pushMessages() ([]PushEntry, error) {
	raw, err := p.get(KeyPushMessages)
	if err != nil || strings.TrimSpace(raw) == "" {
		return nil, err
	}
	var out []PushEntry
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, nil
	}
	return out, nil
}

// SavePushMessage prepends e to the push log, keeping the newest PushLogMax.
func (p *Prefs) SavePushMessage(e PushEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	log, err := p.pushMessages()
	if err != nil {
		return err
	}
	log = append([]PushEntry{e}, log...)
	if len(log) > PushLogMax {
		log = log[:PushLogMax]
	}
	return p.setJSON(KeyPushMessages, log)
}

// PushToken returns this device's push token.
func (p *Prefs) PushToken() (string, error) {
	return p.get(KeyPushToken)
}

// SetPushToken stores this device's push token.
func (p *Prefs) SetPushToken(token string) error {
	return p.kv.SetPref(KeyPushToken, strings.TrimSpace(token))
}

type storedTransport struct {
	Mode     transport.Mode `json:"mode"`
	Fallback transport.Kind `json:"fallback,omitempty"`
}

// TransportConfig returns the dispatch policy saved at runtime. ok is false
// when none was saved and the configured defaults apply.
func (p *Prefs) TransportConfig() (cfg transport.Config, ok bool, err error) {
	raw, err := p.get(KeyTransport)
	if err != nil || raw == "" {
		return transport.Config{}, false, err
	}
	var st storedTransport
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return transport.Config{}, false, nil
	}
	mode, err := transport.ParseMode(string(st.Mode))
	if err != nil {
		return transport.Config{}, false, nil
	}
	fallback, err := transport.ParseKind(string(st.Fallback))
	if err != nil {
		return transport.Config{}, false, nil
	}
	return transport.Config{Mode: mode, Fallback: fallback}, true, nil
}

// SetTransportConfig saves a dispatch policy override.
func (p *Prefs) SetTransportConfig(cfg transport.Config) error {
	return p.setJSON(KeyTransport, storedTransport{Mode: cfg.Mode, Fallback: cfg.Fallback})
}
