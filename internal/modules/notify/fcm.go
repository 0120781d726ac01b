package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
)

// FCMSender is the subset of *messaging.Client used here.
type FCMSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier publishes to a topic per recipient; driver and staff apps
// subscribe to their own topic.
type FCMNotifier struct {
	client FCMSender
}

func NewFCMNotifier(client FCMSender) *FCMNotifier {
	return &FCMNotifier{client: client}
}

func (n *FCMNotifier) Name() string { return "fcm" }

func (n *FCMNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("empty recipient for %q", msg.Title)
	}
	m := &messaging.Message{
		Topic: sanitize(msg.Recipient),
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if _, err := n.client.Send(ctx, m); err != nil {
		return fmt.Errorf("sending FCM to topic %s: %w", m.Topic, err)
	}
	return nil
}
