package transport

// Notice is a short transient message for the user. Transport is empty for
// rejections that happen before any backend is chosen.
type Notice struct {
	Transport Kind   `json:"transport,omitempty"`
	Text      string `json:"text"`
}

// Notifier surfaces notices to whoever is watching.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

type discard struct{}

func (discard) Notify(Notice) {}
