package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const fcmSendURL = "https://fcm.googleapis.com/fcm/send"

// Push sends mobile push notifications through FCM to a batch of
// device registration tokens.
type Push struct {
	http      *http.Client
	serverKey string
	sendURL   string
}

// NewPush returns a Push sender authenticating with serverKey.
func NewPush(serverKey string, timeout time.Duration) *Push {
	return &Push{
		http:      &http.Client{Timeout: timeout},
		serverKey: serverKey,
		sendURL:   fcmSendURL,
	}
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmRequest struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Notification    fcmNotification   `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

// Send pushes one notification to every token in tokens. FCM accepts
// the whole batch in a single request; per-token delivery failures
// (expired tokens) are FCM's to report and not surfaced here.
func (p *Push) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	if len(tokens) == 0 {
		return nil
	}
	payload, err := json.Marshal(fcmRequest{
		RegistrationIDs: tokens,
		Notification:    fcmNotification{Title: title, Body: body},
		Data:            data,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sendURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+p.serverKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fcm: send returned %s", resp.Status)
	}
	return nil
}
