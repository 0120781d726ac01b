// README: Notification messages, recipients and the sink contract.
package notify

import (
	"context"
	"strings"

	"buggy/internal/types"
)

const StaffRecipient = "staff"

type Message struct {
	Recipient string
	Title     string
	Body      string
	Data      map[string]string
}

// Notifier delivers a message to one channel (FCM, web push, log).
type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg Message) error
}

func DriverRecipient(id types.ID) string {
	return "driver-" + sanitize(string(id))
}

// GuestRecipient keys guests by requester name, the only identity a guest has.
func GuestRecipient(name string) string {
	return "guest-" + sanitize(strings.ToLower(strings.TrimSpace(name)))
}

// sanitize keeps recipients within the FCM topic alphabet [a-zA-Z0-9-_.~%].
func sanitize(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
