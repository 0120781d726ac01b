package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buggy/internal/logger"
)

// mockSender is a mock implementation of the PushSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func response(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(bytes.NewReader(nil))}
}

func testSubscription(endpoint string) webpush.Subscription {
	return webpush.Subscription{
		Endpoint: endpoint,
		Keys:     webpush.Keys{P256dh: "test_p256dh", Auth: "test_auth"},
	}
}

func TestWebPush_SendsPayloadToEverySubscription(t *testing.T) {
	ctx := context.Background()
	subs := NewMemorySubscriptions()
	recipient := GuestRecipient("Ana")
	require.NoError(t, subs.Add(ctx, recipient, testSubscription("https://push.example/a")))
	require.NoError(t, subs.Add(ctx, recipient, testSubscription("https://push.example/b")))

	var endpoints []string
	var last pushPayload
	n := NewWebPushNotifier(subs, &webpush.Options{}, logger.NewNop()).WithSender(&mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
			endpoints = append(endpoints, sub.Endpoint)
			require.NoError(t, json.Unmarshal(payload, &last))
			return response(http.StatusCreated), nil
		},
	})

	err := n.Notify(ctx, Message{Recipient: recipient, Title: "Your buggy is on the way", Body: "soon"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://push.example/a", "https://push.example/b"}, endpoints)
	assert.Equal(t, "Your buggy is on the way", last.Title)
}

func TestWebPush_DeletesExpiredSubscription(t *testing.T) {
	ctx := context.Background()
	subs := NewMemorySubscriptions()
	require.NoError(t, subs.Add(ctx, "guest-ana", testSubscription("https://push.example/gone")))

	n := NewWebPushNotifier(subs, &webpush.Options{}, logger.NewNop()).WithSender(&mockSender{
		SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
			return response(http.StatusGone), nil
		},
	})

	require.NoError(t, n.Notify(ctx, Message{Recipient: "guest-ana", Title: "x"}))
	left, err := subs.List(ctx, "guest-ana")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestWebPush_ReportsTransportErrors(t *testing.T) {
	ctx := context.Background()
	subs := NewMemorySubscriptions()
	require.NoError(t, subs.Add(ctx, "guest-ana", testSubscription("https://push.example/a")))

	n := NewWebPushNotifier(subs, &webpush.Options{}, logger.NewNop()).WithSender(&mockSender{
		SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
			return nil, errors.New("network down")
		},
	})

	assert.Error(t, n.Notify(ctx, Message{Recipient: "guest-ana", Title: "x"}))
}

func TestWebPush_NoSubscriptionsIsNoop(t *testing.T) {
	n := NewWebPushNotifier(NewMemorySubscriptions(), &webpush.Options{}, logger.NewNop()).WithSender(&mockSender{
		SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
			t.Fatal("sender must not be called")
			return nil, nil
		},
	})
	assert.NoError(t, n.Notify(context.Background(), Message{Recipient: "guest-nobody"}))
}

func TestMemorySubscriptions_RejectsIncomplete(t *testing.T) {
	err := NewMemorySubscriptions().Add(context.Background(), "guest-ana", webpush.Subscription{Endpoint: "x"})
	assert.ErrorIs(t, err, ErrInvalidSubscription)
}
