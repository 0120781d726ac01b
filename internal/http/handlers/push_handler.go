// README: Guest web push subscription handlers.
package handlers

import (
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"buggy/internal/modules/notify"
)

type PushHandler struct {
	subs    notify.SubscriptionStore
	webpush *webpush.Options
}

func NewPushHandler(subs notify.SubscriptionStore, options *webpush.Options) *PushHandler {
	return &PushHandler{subs: subs, webpush: options}
}

type putSubscriptionReq struct {
	RequesterName string `json:"requesterName" binding:"required"`
	Endpoint      string `json:"endpoint" binding:"required"`
	P256DH        string `json:"p256dh" binding:"required"`
	Auth          string `json:"auth" binding:"required"`
}

// PutSubscription registers a browser to receive updates for a requester's rides.
func (h *PushHandler) PutSubscription(c *gin.Context) {
	var req putSubscriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request")
		return
	}
	sub := webpush.Subscription{
		Endpoint: req.Endpoint,
		Keys:     webpush.Keys{P256dh: req.P256DH, Auth: req.Auth},
	}
	if err := h.subs.Add(c.Request.Context(), notify.GuestRecipient(req.RequesterName), sub); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

type deleteSubscriptionReq struct {
	RequesterName string `json:"requesterName" binding:"required"`
	Endpoint      string `json:"endpoint" binding:"required"`
}

func (h *PushHandler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request")
		return
	}
	if err := h.subs.Remove(c.Request.Context(), notify.GuestRecipient(req.RequesterName), req.Endpoint); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PushHandler) VAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		writeError(c, http.StatusServiceUnavailable, "vapid keys are not configured")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"publicKey": h.webpush.VAPIDPublicKey})
}
