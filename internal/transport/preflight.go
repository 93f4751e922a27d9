package transport

import "strings"

// Reasons shown to the user when a send is rejected before any transport runs.
const (
	ReasonNoRecipient  = "No recipient selected"
	ReasonEmptyMessage = "Cannot send an empty message"
)

// RejectError is an input rejection. Reason is the user-facing notice.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return "rejected: " + e.Reason
}

// Reject returns a RejectError with the given reason.
func Reject(reason string) error {
	return &RejectError{Reason: reason}
}

// ValidateBase applies to every transport: a recipient that is non-empty
// after trimming and a non-blank body.
func ValidateBase(to, body string) error {
	if strings.TrimSpace(to) == "" {
		return Reject(ReasonNoRecipient)
	}
	if strings.TrimSpace(body) == "" {
		return Reject(ReasonEmptyMessage)
	}
	return nil
}
