package message

import (
	"encoding/json"
	"strings"
)

// Prefix tags app-protocol traffic and separates it from ordinary texts.
const Prefix = "CobaltComet"

// Encode produces the wire string: Prefix, the sparse JSON object, and when a
// URL is present a newline followed by the bare URL so plain SMS apps can
// still autolink it.
func Encode(m Message) string {
	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteString(m.String())
	if m.URL != "" {
		b.WriteString("\n")
		b.WriteString(m.URL)
	}
	return b.String()
}

// Decode parses a wire string. The prefix is optional here; see
// ShouldIntercept for the strict gate. The trailing plain-text URL only fills
// URL when the JSON did not carry one. ok is false for empty input and for
// anything that is not a JSON object.
func Decode(wire string) (m Message, ok bool) {
	if wire == "" {
		return Message{}, false
	}

	content, _ := strings.CutPrefix(wire, Prefix)
	jsonPart, extraURL, _ := strings.Cut(content, "\n")

	trimmed := strings.TrimSpace(jsonPart)
	if !strings.HasPrefix(trimmed, "{") {
		return Message{}, false
	}
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return Message{}, false
	}

	if m.URL == "" && extraURL != "" {
		m.URL = extraURL
	}
	return m, true
}

// ShouldIntercept reports whether inbound text is app-protocol traffic.
func ShouldIntercept(raw string) bool {
	return strings.HasPrefix(raw, Prefix)
}

// NewURLMessage builds a message from shared content. Each line holding a URL
// sets URL (the last one wins); every other line is kept as text. Without a
// title the first text line doubles as the location name.
func NewURLMessage(title, text string) Message {
	var m Message
	if text != "" {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSuffix(line, "\r")
			if u, ok := ParseURL(line); ok {
				m.URL = u
				continue
			}
			m.AddText(line)
		}
	}

	if len(m.TextList) > 0 {
		m.LocationName = m.TextList[0]
	}
	if title != "" {
		m.LocationName = title
	}
	return m
}

// EncodeURLMessage is Encode(NewURLMessage(title, text)).
func EncodeURLMessage(title, text string) string {
	return Encode(NewURLMessage(title, text))
}

// NewGeoMessage builds a coordinate message.
func NewGeoMessage(lat, lng, locationName string) Message {
	return Message{Lat: lat, Lng: lng, LocationName: locationName}
}

// EncodeGeoMessage is Encode(NewGeoMessage(lat, lng, locationName)).
func EncodeGeoMessage(lat, lng, locationName string) string {
	return Encode(NewGeoMessage(lat, lng, locationName))
}

// ParseURL returns the first "http" occurrence in text up to the next
// whitespace.
func ParseURL(text string) (string, bool) {
	idx := strings.Index(text, "http")
	if idx == -1 {
		return "", false
	}
	rest := text[idx:]
	if end := strings.IndexAny(rest, " \t"); end != -1 {
		rest = rest[:end]
	}
	return rest, true
}
