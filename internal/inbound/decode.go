// Package inbound reduces channel-specific raw data to a sender and a text
// and runs every accepted text through the same handoff.
package inbound

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warthog618/sms"
	"github.com/warthog618/sms/encoding/pdumode"
	"github.com/warthog618/sms/encoding/tpdu"
)

// Channel names where a frame came from.
type Channel string

const (
	ChannelSMS       Channel = "sms"
	ChannelBluetooth Channel = "bluetooth"
	ChannelPush      Channel = "push"
)

// Frame is one inbound text. ReceivedAt is zero when the channel has no
// authoritative timestamp of its own.
type Frame struct {
	Channel    Channel   `json:"channel"`
	From       string    `json:"from,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at,omitzero"`
}

// PushPayload is a message delivered by the push channel. From is the
// channel's own sender metadata.
type PushPayload struct {
	Data     map[string]string `json:"data"`
	From     string            `json:"from,omitempty"`
	SentTime time.Time         `json:"sent_time,omitzero"`
}

var ErrNoPDUs = errors.New("no PDUs")

// DecodeSMS reassembles SMS-DELIVER TPDUs that make up one message. Bodies
// are concatenated in the order given; the sender is taken from the first
// fragment that carries one.
func DecodeSMS(pdus [][]byte) (Frame, error) {
	if len(pdus) == 0 {
		return Frame{}, ErrNoPDUs
	}

	f := Frame{Channel: ChannelSMS}
	var body strings.Builder
	for i, raw := range pdus {
		t, err := sms.Unmarshal(raw)
		if err != nil {
			return Frame{}, fmt.Errorf("pdu %d: %w", i, err)
		}
		text, err := sms.Decode([]*tpdu.TPDU{t})
		if err != nil {
			return Frame{}, fmt.Errorf("pdu %d: decode: %w", i, err)
		}
		body.Write(text)
		if f.From == "" {
			f.From = t.OA.Number()
		}
	}
	f.Text = body.String()
	return f, nil
}

// DecodeSMSHex is DecodeSMS for PDU-mode hex strings, which carry the SMSC
// address ahead of the TPDU.
func DecodeSMSHex(hexPDUs []string) (Frame, error) {
	pdus := make([][]byte, 0, len(hexPDUs))
	for i, h := range hexPDUs {
		p, err := pdumode.UnmarshalHexString(strings.TrimSpace(h))
		if err != nil {
			return Frame{}, fmt.Errorf("pdu %d: %w", i, err)
		}
		pdus = append(pdus, p.TPDU)
	}
	return DecodeSMS(pdus)
}

// BluetoothFrame wraps one socket read. Each read is one whole message.
func BluetoothFrame(addr, text string) Frame {
	return Frame{Channel: ChannelBluetooth, From: addr, Text: text}
}

// ExtractPush pulls the body and sender out of a push payload. The body is
// read from "body", or "message" when "body" is absent; the sender from
// "from", or the channel's sender when absent. ok is false for an empty body.
func ExtractPush(p PushPayload) (f Frame, ok bool) {
	body, found := p.Data["body"]
	if !found {
		body = p.Data["message"]
	}
	from, found := p.Data["from"]
	if !found {
		from = p.From
	}
	if body == "" {
		return Frame{}, false
	}
	return Frame{Channel: ChannelPush, From: from, Text: body, ReceivedAt: p.SentTime}, true
}
