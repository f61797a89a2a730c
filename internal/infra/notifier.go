package infra

import (
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/eliteGoblin/screentimed/internal/domain"
)

// DesktopNotifier shows a desktop notification via notify-send (Linux) or
// osascript (macOS). When neither is available the alert degrades to a log
// line so terminal failures are never silently dropped.
type DesktopNotifier struct {
	logger *zap.Logger
}

// NewDesktopNotifier creates a notifier for the current platform.
func NewDesktopNotifier(logger *zap.Logger) *DesktopNotifier {
	return &DesktopNotifier{logger: logger}
}

// Notify surfaces a user-visible alert.
func (n *DesktopNotifier) Notify(title, message string) error {
	if err := n.show(title, message); err != nil {
		n.logger.Warn("desktop notification unavailable, logging instead",
			zap.String("title", title),
			zap.String("message", message),
			zap.Error(err))
	}
	return nil
}

func (n *DesktopNotifier) show(title, message string) error {
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", message, title)
		return exec.Command("osascript", "-e", script).Run()
	default:
		if _, err := exec.LookPath("notify-send"); err != nil {
			return err
		}
		return exec.Command("notify-send", "--urgency=normal", title, message).Run()
	}
}

// Ensure DesktopNotifier implements domain.Notifier.
var _ domain.Notifier = (*DesktopNotifier)(nil)
