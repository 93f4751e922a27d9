// Package contact holds the recipient entries a user can send to.
package contact

import (
	"encoding/json"
	"strings"
)

// Type is the transport affinity recorded when a contact was created.
type Type string

const (
	// TypeNone means no affinity; the dispatcher falls back to its mode.
	TypeNone      Type = ""
	TypePhone     Type = "PHONE"
	TypeBluetooth Type = "BLUETOOTH"
)

// ParseType normalizes a stored or user-supplied type. Unknown values map to
// TypeNone.
func ParseType(s string) Type {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PHONE", "SMS":
		return TypePhone
	case "BLUETOOTH", "BT":
		return TypeBluetooth
	default:
		return TypeNone
	}
}

// Entry is a saved recipient. Number is a phone number or a Bluetooth MAC
// address and is the identity used for deduplication.
type Entry struct {
	Label  string `json:"label"`
	Number string `json:"number"`
	Type   Type   `json:"type,omitempty"`
}

// legacyDelim separated numbers in the pre-JSON storage format.
const legacyDelim = "-"

// EncodeList serializes entries as a JSON array.
func EncodeList(entries []Entry) (string, error) {
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeList parses a stored list. A JSON array yields its valid entries;
// anything else is read as the legacy delimiter-joined list of numbers, each
// becoming a self-labelled PHONE entry.
func DecodeList(raw string) []Entry {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err == nil {
		var entries []Entry
		for _, item := range items {
			var e struct {
				Label  string `json:"label"`
				Number string `json:"number"`
				Type   string `json:"type"`
			}
			if json.Unmarshal(item, &e) != nil || e.Label == "" || e.Number == "" {
				continue
			}
			entries = append(entries, Entry{Label: e.Label, Number: e.Number, Type: ParseType(e.Type)})
		}
		return entries
	}

	var entries []Entry
	for _, number := range strings.Split(raw, legacyDelim) {
		if number == "" {
			continue
		}
		entries = append(entries, Entry{Label: number, Number: number, Type: TypePhone})
	}
	return entries
}

// Prepend puts e at the front and drops any older entry with the same number.
func Prepend(entries []Entry, e Entry) []Entry {
	out := make([]Entry, 0, len(entries)+1)
	out = append(out, e)
	for _, existing := range entries {
		if existing.Number != e.Number {
			out = append(out, existing)
		}
	}
	return out
}

// Remove drops every entry with the given number.
func Remove(entries []Entry, number string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Number != number {
			out = append(out, e)
		}
	}
	return out
}

// Find looks an entry up by number first, then by case-insensitive label.
func Find(entries []Entry, key string) (Entry, bool) {
	key = strings.TrimSpace(key)
	for _, e := range entries {
		if e.Number == key {
			return e, true
		}
	}
	for _, e := range entries {
		if strings.EqualFold(e.Label, key) {
			return e, true
		}
	}
	return Entry{}, false
}
