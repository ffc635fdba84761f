// Package notify publishes push and email jobs to RabbitMQ and holds
// the senders the queue consumers deliver them with. Publishing is
// best-effort: every error is logged and swallowed so a broker outage
// never interrupts the request flow that triggered the notification.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/taqo-app/taqo-backend/internal/queue"
)

const (
	// PushQueue and EmailQueue are the durable work queues the
	// consumers in internal/queue drain.
	PushQueue  = "send-notification"
	EmailQueue = "send-email"

	confirmTimeout = 5 * time.Second
)

// Fanout publishes notification jobs to the broker. It dials per
// publish; the broker is close by and publish volume is low, so a held
// connection buys little and a reconnect loop costs complexity.
type Fanout struct {
	url string
}

// NewFanout returns a Fanout publishing to the broker at url.
func NewFanout(url string) *Fanout {
	return &Fanout{url: url}
}

// EnqueuePush queues a push notification to userIDs. When wait is true
// the call blocks until the broker confirms the publish; when false it
// returns as soon as the message is handed off.
func (f *Fanout) EnqueuePush(ctx context.Context, userIDs []string, title, body string, data map[string]string, wait bool) {
	f.publish(ctx, PushQueue, queue.PushMessage{
		UserIDs: userIDs,
		Title:   title,
		Body:    body,
		Data:    data,
	}, wait)
}

// EnqueueEmail queues an email. The to field is either a raw address or
// a user id the consumer resolves before sending.
func (f *Fanout) EnqueueEmail(ctx context.Context, to, subject, body string, wait bool) {
	f.publish(ctx, EmailQueue, queue.EmailMessage{
		To:      to,
		Subject: subject,
		Body:    body,
	}, wait)
}

func (f *Fanout) publish(ctx context.Context, queueName string, msg any, wait bool) {
	conn, err := amqp.Dial(f.url)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return
	}
	defer func() { _ = ch.Close() }()

	var confirms chan amqp.Confirmation
	if wait {
		if err := ch.Confirm(false); err != nil {
			log.Printf("rabbitmq: confirm mode failed: %v", err)
			return
		}
		confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	}

	// Durable queue so queued jobs survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return
	}

	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("rabbitmq: marshal message failed: %v", err)
		return
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		pub,
	); err != nil {
		log.Printf("rabbitmq: publish to %s failed: %v", queueName, err)
		return
	}

	if wait {
		select {
		case c := <-confirms:
			if !c.Ack {
				log.Printf("rabbitmq: broker nacked publish to %s", queueName)
			}
		case <-time.After(confirmTimeout):
			log.Printf("rabbitmq: publish confirm to %s timed out", queueName)
		case <-ctx.Done():
			log.Printf("rabbitmq: publish confirm to %s cancelled: %v", queueName, ctx.Err())
		}
	}
}
