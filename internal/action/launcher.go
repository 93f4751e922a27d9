package action

import (
	"os/exec"
	"strings"

	"github.com/pkg/browser"
	"go.uber.org/zap"
)

// DesktopLauncher opens maps URIs with a configured command and everything
// else with the system browser.
type DesktopLauncher struct {
	// MapsCommand is run with the URI appended. Empty means no maps app.
	// Only web URIs are handed to it; app-only schemes are declined.
	MapsCommand string
	logger      *zap.Logger
}

// NewDesktopLauncher creates a launcher.
func NewDesktopLauncher(mapsCommand string, logger *zap.Logger) *DesktopLauncher {
	return &DesktopLauncher{MapsCommand: mapsCommand, logger: logger}
}

func (l *DesktopLauncher) OpenMapsApp(uri string) bool {
	fields := strings.Fields(l.MapsCommand)
	if len(fields) == 0 || !strings.HasPrefix(uri, "http") {
		return false
	}
	cmd := exec.Command(fields[0], append(fields[1:], uri)...)
	if err := cmd.Start(); err != nil {
		l.logger.Warn("maps command failed", zap.String("command", fields[0]), zap.Error(err))
		return false
	}
	go func() { _ = cmd.Wait() }()
	return true
}

func (l *DesktopLauncher) OpenBrowser(url string) bool {
	if err := browser.OpenURL(url); err != nil {
		l.logger.Warn("open browser", zap.String("url", url), zap.Error(err))
		return false
	}
	return true
}
