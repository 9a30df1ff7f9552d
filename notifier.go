package accounts

import (
	"context"
	"fmt"
)

// NotificationType tags the template a dispatcher should render.
type NotificationType string

const (
	NotificationWelcome           NotificationType = "welcome"
	NotificationEmailVerification NotificationType = "email_verification"
	NotificationPasswordReset     NotificationType = "password_reset"
	NotificationPasswordChanged   NotificationType = "password_changed"
	NotificationAccountSuspended  NotificationType = "account_suspended"
	NotificationAccountActivated  NotificationType = "account_activated"
)

// Notification is the payload handed to the dispatcher. Data carries the
// template variables; for token bearing notifications the raw token travels
// under the "token" key and must never be logged in full.
type Notification struct {
	Type NotificationType
	To   string
	Name string
	Data map[string]any
}

// Notifier delivers typed notifications to a user's email address. The core
// calls it but does not own delivery; most lifecycle commands treat failures
// as best-effort (logged, never rolled back), with the exception of the
// email verification request which couples its success to dispatch.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// ConsoleNotifier prints notifications to stdout. Useful for development and
// examples; swap in a real mailer in production.
type ConsoleNotifier struct{}

// Notify implements Notifier.
func (ConsoleNotifier) Notify(_ context.Context, n Notification) error {
	fmt.Println("====== SENDING NOTIFICATION =======")
	fmt.Printf("type: %s\n", n.Type)
	fmt.Printf("to: %s\n", n.To)
	if link, ok := n.Data["link"].(string); ok {
		fmt.Printf("link: %s\n", link)
	}
	return nil
}

// TruncateSecret returns a loggable prefix of an ephemeral token. Only ever
// log the result of this, never the raw value.
func TruncateSecret(raw string) string {
	if len(raw) <= 8 {
		return raw
	}
	return raw[:8] + "..."
}
