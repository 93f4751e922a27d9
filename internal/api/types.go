package api

import (
	"github.com/matheus3301/comet/internal/contact"
	"github.com/matheus3301/comet/internal/message"
	"github.com/matheus3301/comet/internal/prefs"
)

// Send kinds.
const (
	SendKindURL = "url"
	SendKindGeo = "geo"
	SendKindRaw = "raw"
)

// SendRequest builds one wire message. For kind "url" Text is the shared
// text and Title the optional page title. For "geo" Lat, Lng and
// LocationName are used. "raw" (the default) sends the fields as given.
type SendRequest struct {
	To           string   `json:"to"`
	Kind         string   `json:"kind,omitempty"`
	Text         []string `json:"text,omitempty"`
	URL          string   `json:"url,omitempty"`
	Lat          string   `json:"lat,omitempty"`
	Lng          string   `json:"lng,omitempty"`
	LocationName string   `json:"location_name,omitempty"`
	Title        string   `json:"title,omitempty"`
}

type SendResponse struct {
	Accepted    bool   `json:"accepted"`
	ClientMsgID string `json:"client_msg_id"`
	Wire        string `json:"wire"`
}

type HistoryResponse struct {
	Messages []message.Message `json:"messages"`
}

type ContactsResponse struct {
	Contacts []contact.Entry `json:"contacts"`
}

type ContactRequest struct {
	Label  string `json:"label"`
	Number string `json:"number"`
	Type   string `json:"type,omitempty"`
}

type RemoveContactRequest struct {
	Number string `json:"number"`
}

type RemoveContactResponse struct {
	Removed bool `json:"removed"`
}

type QRContactsResponse struct {
	Contacts map[string]string `json:"contacts"`
}

type QRContactRequest struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

type QRContactResponse struct {
	Saved   bool   `json:"saved"`
	Subject string `json:"subject,omitempty"`
}

type PushTokenMessage struct {
	Token string `json:"token"`
}

type PushLogResponse struct {
	Entries []prefs.PushEntry `json:"entries"`
}

type TransportRequest struct {
	Mode     string `json:"mode"`
	Fallback string `json:"fallback"`
}

type StatusResponse struct {
	Profile       string `json:"profile"`
	Mode          string `json:"mode"`
	Fallback      string `json:"fallback,omitempty"`
	BluetoothLink string `json:"bluetooth_link"`
	LinkAddress   string `json:"link_address,omitempty"`
	UptimeMs      int64  `json:"uptime_ms"`
}

// EventEnvelope is one WatchEvents item.
type EventEnvelope struct {
	EventID          string `json:"event_id"`
	Kind             string `json:"kind"`
	OccurredAtUnixMs int64  `json:"occurred_at_unix_ms"`
	Payload          any    `json:"payload,omitempty"`
}
