// Package queue defines the notification job payloads exchanged over
// the message broker and the consumers that deliver them.
package queue

// PushMessage is a push-notification job on the send-notification
// queue. UserIDs are account ids; the consumer resolves them to device
// tokens at delivery time so stale tokens are skipped, not failed.
type PushMessage struct {
	UserIDs []string          `json:"userIds"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
}

// EmailMessage is an email job on the send-email queue. To is either a
// raw address or a user id the consumer resolves before sending.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
