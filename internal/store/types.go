package store

// OutboxEntry represents a queued outgoing wire message.
type OutboxEntry struct {
	ID            int64
	ClientMsgID   string
	Recipient     string
	Label         string
	RecipientType string
	Body          string
	Status        string // queued, sending, sent, failed
	Transport     string
	ErrorMessage  string
	CreatedAt     int64
}

// Outbox statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)
