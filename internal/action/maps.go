package action

import (
	"net/url"
	"regexp"
	"strings"
)

var coordinatePattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)

// navigationParams are checked in order for a destination.
var navigationParams = []string{"q", "query", "destination", "daddr", "ll"}

// IsMapsURL reports whether raw points at Google Maps: the maps short-link
// host, a goo.gl/maps short link, or a google.com host with a /maps path.
func IsMapsURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "":
		return false
	case host == "maps.app.goo.gl":
		return true
	case host == "goo.gl":
		return strings.HasPrefix(u.Path, "/maps")
	case host == "google.com" || strings.HasSuffix(host, ".google.com"):
		return strings.HasPrefix(u.Path, "/maps")
	default:
		return false
	}
}

// ExtractNavigationQuery finds a destination in a maps URL: a known query
// parameter, else a lat,lng pair in the path or fragment, else the same
// search inside a nested "link" maps URL, one level deep.
func ExtractNavigationQuery(raw string) (string, bool) {
	return extractNavigationQuery(raw, 1)
}

func extractNavigationQuery(raw string, depth int) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	q := u.Query()

	for _, name := range navigationParams {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v, true
		}
	}
	if c, ok := findCoordinates(u.EscapedPath()); ok {
		return c, true
	}
	if c, ok := findCoordinates(u.Fragment); ok {
		return c, true
	}

	if depth > 0 {
		if nested := q.Get("link"); nested != "" {
			if decoded, err := url.QueryUnescape(nested); err == nil {
				nested = decoded
			}
			if nested != raw && IsMapsURL(nested) {
				return extractNavigationQuery(nested, depth-1)
			}
		}
	}
	return "", false
}

func findCoordinates(s string) (string, bool) {
	m := coordinatePattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1] + "," + m[2], true
}

// encodeComponent escapes a destination for use in a URI, with spaces as %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
