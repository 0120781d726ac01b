package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"buggy/internal/logger"
)

// PushSender defines the interface for sending a web push notification.
type PushSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender sends through the webpush library.
type WebPushSender struct{}

func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WebPushNotifier reaches guests' browsers. Subscriptions answered with
// 410 Gone are removed.
type WebPushNotifier struct {
	subs    SubscriptionStore
	options *webpush.Options
	sender  PushSender
	log     logger.ILogger
}

func NewWebPushNotifier(subs SubscriptionStore, options *webpush.Options, log logger.ILogger) *WebPushNotifier {
	return &WebPushNotifier{subs: subs, options: options, sender: &WebPushSender{}, log: log}
}

// WithSender swaps the transport, for tests.
func (n *WebPushNotifier) WithSender(sender PushSender) *WebPushNotifier {
	n.sender = sender
	return n
}

func (n *WebPushNotifier) Name() string { return "webpush" }

type pushPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

func (n *WebPushNotifier) Notify(ctx context.Context, msg Message) error {
	subs, err := n.subs.List(ctx, msg.Recipient)
	if err != nil {
		return fmt.Errorf("listing subscriptions for %s: %w", msg.Recipient, err)
	}
	if len(subs) == 0 {
		return nil
	}
	payload, err := json.Marshal(pushPayload{Title: msg.Title, Body: msg.Body, Data: msg.Data})
	if err != nil {
		return err
	}

	var errs []error
	for i := range subs {
		if err := n.send(ctx, msg.Recipient, &subs[i], payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *WebPushNotifier) send(ctx context.Context, recipient string, sub *webpush.Subscription, payload []byte) error {
	resp, err := n.sender.Send(payload, sub, n.options)
	if err != nil {
		return fmt.Errorf("push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		n.log.Info("push subscription expired, deleting", logger.String("endpoint", sub.Endpoint))
		if err := n.subs.Remove(ctx, recipient, sub.Endpoint); err != nil {
			return fmt.Errorf("delete expired subscription %s: %w", sub.Endpoint, err)
		}
		return nil
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push to %s: status %d", sub.Endpoint, resp.StatusCode)
	}
	return nil
}
