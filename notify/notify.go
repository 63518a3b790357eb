// Package notify shows desktop notifications for finished invocations.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"

	"markestedt/tokenspark/config"
	"markestedt/tokenspark/failure"
)

// AppName is shown as the notification source
const AppName = "TokenSpark"

// Settings supplies the current configuration
type Settings interface {
	Current() *config.Config
}

type sendFunc func(title, message string, icon any) error

// Notifier sends notifications through the OS notification service
type Notifier struct {
	settings Settings
	notify   sendFunc
	alert    sendFunc
}

// New creates a notifier. Notifications are skipped while disabled in settings.
func New(settings Settings) *Notifier {
	beeep.AppName = AppName
	return &Notifier{
		settings: settings,
		notify:   beeep.Notify,
		alert:    beeep.Alert,
	}
}

func (n *Notifier) enabled() bool {
	return n.settings == nil || n.settings.Current().Notifications.Enabled
}

// Notify shows an informational notification
func (n *Notifier) Notify(title, message string) {
	if !n.enabled() {
		return
	}
	if err := n.notify(title, message, ""); err != nil {
		slog.Warn("Failed to show notification", "error", err)
	}
}

// NotifyError shows an alert titled after the failure kind. Errors are
// always shown, even with notifications disabled.
func (n *Notifier) NotifyError(kind failure.Kind, message string) {
	if err := n.alert(kind.Title(), message, ""); err != nil {
		slog.Warn("Failed to show alert", "kind", kind, "error", err)
	}
}
