// Package action decides what to open for a received message: turn-by-turn
// navigation, a maps link, or a plain browser page.
package action

import (
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/comet/internal/message"
)

const (
	navigationScheme = "google.navigation:q="
	navigationWebURL = "https://www.google.com/maps/dir/?api=1&destination="
)

// Launcher opens things on the user's device. Each call reports whether
// something handled the request.
type Launcher interface {
	// OpenMapsApp hands uri to the native map application.
	OpenMapsApp(uri string) bool
	OpenBrowser(url string) bool
}

// Outcome records what Resolve opened.
type Outcome struct {
	NavigationLaunched bool   `json:"navigation_launched"`
	Destination        string `json:"destination,omitempty"`
	MapsURL            string `json:"maps_url,omitempty"`
	BrowserURL         string `json:"browser_url,omitempty"`
}

// Any reports whether anything was opened.
func (o Outcome) Any() bool {
	return o.NavigationLaunched || o.MapsURL != "" || o.BrowserURL != ""
}

// Resolver applies the action precedence to decoded messages.
type Resolver struct {
	launcher Launcher
	logger   *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(l Launcher, logger *zap.Logger) *Resolver {
	return &Resolver{launcher: l, logger: logger}
}

// Resolve navigates to coordinates or a place name when the message has
// them, then deals with the URL: a maps link becomes navigation when nothing
// was launched yet, anything else opens in the browser. A maps URL is not
// opened in the browser once navigation is running.
func (r *Resolver) Resolve(m message.Message) Outcome {
	var out Outcome

	switch {
	case m.HasCoordinates():
		dest := m.Lat + "," + m.Lng
		if m.LocationName != "" {
			dest += "(" + m.LocationName + ")"
		}
		out.Destination = dest
		out.NavigationLaunched = r.Navigate(dest)
	case m.LocationName != "":
		out.Destination = m.LocationName
		out.NavigationLaunched = r.Navigate(m.LocationName)
	}

	if m.URL == "" {
		return out
	}

	handled := false
	if !out.NavigationLaunched {
		handled = r.openMapsURL(m.URL, &out)
	}
	if !handled && (!out.NavigationLaunched || !IsMapsURL(m.URL)) {
		if r.openBrowser(m.URL) {
			out.BrowserURL = m.URL
		}
	}
	return out
}

// openMapsURL handles raw as a maps link. It returns false only when raw is
// not a maps URL.
func (r *Resolver) openMapsURL(raw string, out *Outcome) bool {
	if !IsMapsURL(raw) {
		return false
	}
	if dest, ok := ExtractNavigationQuery(raw); ok {
		out.Destination = dest
		out.NavigationLaunched = r.Navigate(dest)
		return true
	}
	if r.launcher.OpenMapsApp(raw) {
		out.MapsURL = raw
		return true
	}
	if r.openBrowser(raw) {
		out.BrowserURL = raw
	}
	return true
}

// Navigate starts turn-by-turn navigation to dest. It tries the map app's
// navigation scheme, then the maps web deep link in the map app, then the
// same link in the browser. It always reports true: every tier is attempted.
func (r *Resolver) Navigate(dest string) bool {
	enc := encodeComponent(dest)
	if r.launcher.OpenMapsApp(navigationScheme + enc) {
		return true
	}
	web := navigationWebURL + enc
	r.logger.Debug("navigation scheme unhandled, falling back", zap.String("url", web))
	if r.launcher.OpenMapsApp(web) {
		return true
	}
	if !r.openBrowser(web) {
		r.logger.Warn("navigation could not be opened", zap.String("destination", dest))
	}
	return true
}

func (r *Resolver) openBrowser(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	ok := r.launcher.OpenBrowser(raw)
	if !ok {
		r.logger.Warn("browser launch failed", zap.String("url", raw))
	}
	return ok
}
