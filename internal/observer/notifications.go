package observer

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

const notifyTitle = "ClashFlux"

// Notifier shows desktop notifications for connectivity transitions.
type Notifier struct {
	logger *zap.SugaredLogger
}

// NewNotifier creates a notifier.
func NewNotifier(logger *zap.SugaredLogger) *Notifier {
	return &Notifier{logger: logger}
}

// ConnectionChanged announces a control-plane connectivity transition.
// Notification failures are logged and ignored; the tray itself still shows
// the state.
func (n *Notifier) ConnectionChanged(connected bool) {
	msg := "Kernel disconnected"
	if connected {
		msg = "Kernel connected"
	}
	if err := beeep.Notify(notifyTitle, msg, ""); err != nil {
		n.logger.Debugw("Desktop notification failed", "error", err)
	}
}
