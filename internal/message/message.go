// Package message defines the wire entity exchanged between devices and the
// codec that turns it into the string carried by SMS, Bluetooth and push.
package message

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Message is the structured payload of a wire message.
//
// Every field is optional. Empty strings, empty lists and a zero ReceivedAt
// mean "absent" and are left out of the JSON form. From and ReceivedAt are
// only ever set by the inbound pipeline.
type Message struct {
	TextList     []string `json:"text,omitempty"`
	URL          string   `json:"url,omitempty"`
	Lat          string   `json:"lat,omitempty"`
	Lng          string   `json:"lng,omitempty"`
	LocationName string   `json:"locationName,omitempty"`
	From         string   `json:"from,omitempty"`
	ReceivedAt   int64    `json:"receivedAt,omitempty"`
}

// AddText appends a free-text line.
func (m *Message) AddText(text string) {
	m.TextList = append(m.TextList, text)
}

// HasCoordinates reports whether both lat and lng are present.
func (m Message) HasCoordinates() bool {
	return m.Lat != "" && m.Lng != ""
}

// IsEmpty reports whether no payload field is set.
func (m Message) IsEmpty() bool {
	return len(m.TextList) == 0 && m.URL == "" && m.Lat == "" && m.Lng == "" && m.LocationName == ""
}

// MarshalJSON writes the sparse form without HTML escaping, so query strings
// in URLs stay as short as the sender typed them.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(plain(m)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON accepts the sparse form. Scalar fields written as JSON
// numbers or booleans by other encoders are kept as their literal text. A
// text field that is not an array and a receivedAt that is not a number are
// ignored rather than failing the whole message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w struct {
		Text         looseList   `json:"text"`
		URL          looseString `json:"url"`
		Lat          looseString `json:"lat"`
		Lng          looseString `json:"lng"`
		LocationName looseString `json:"locationName"`
		From         looseString `json:"from"`
		ReceivedAt   looseInt    `json:"receivedAt"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*m = Message{
		URL:          string(w.URL),
		Lat:          string(w.Lat),
		Lng:          string(w.Lng),
		LocationName: string(w.LocationName),
		From:         string(w.From),
		ReceivedAt:   int64(w.ReceivedAt),
	}
	for _, t := range w.Text {
		m.TextList = append(m.TextList, string(t))
	}
	return nil
}

// String returns the compact JSON form.
func (m Message) String() string {
	b, err := m.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(b)
}

type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*s = ""
	case strings.HasPrefix(raw, `"`):
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
	default:
		*s = looseString(raw)
	}
	return nil
}

type looseList []looseString

func (l *looseList) UnmarshalJSON(data []byte) error {
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		*l = nil
		return nil
	}
	var items []looseString
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

type looseInt int64

func (n *looseInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*n = looseInt(v)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*n = looseInt(f)
		return nil
	}
	*n = 0
	return nil
}
