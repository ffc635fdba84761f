package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	pushQueueName  = "send-notification"
	emailQueueName = "send-email"
)

// PushSender delivers one push notification to a batch of device
// tokens. Satisfied by notify.Push.
type PushSender interface {
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// EmailSender delivers one email. Satisfied by notify.Mailgun.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Directory resolves user ids to delivery addresses. Satisfied by
// repository.UserRepo.
type Directory interface {
	MessagingTokens(ctx context.Context, userIDs []string) ([]string, error)
	EmailAddress(ctx context.Context, userID string) (string, error)
}

// Consumer drains the notification queues and hands each job to its
// sender. Each queue gets its own connection and reconnect loop so a
// poisoned channel on one never stalls the other.
type Consumer struct {
	url   string
	push  PushSender
	email EmailSender
	dir   Directory
}

// NewConsumer returns a Consumer for the broker at url.
func NewConsumer(url string, push PushSender, email EmailSender, dir Directory) *Consumer {
	return &Consumer{url: url, push: push, email: email, dir: dir}
}

// StartPushConsumer consumes the send-notification queue until ctx is
// cancelled. It runs a reconnect loop with capped backoff; processing
// errors are logged and the message rejected without requeue so a bad
// payload cannot loop forever.
func (c *Consumer) StartPushConsumer(ctx context.Context) error {
	return c.run(ctx, pushQueueName, c.handlePush)
}

// StartEmailConsumer consumes the send-email queue until ctx is
// cancelled.
func (c *Consumer) StartEmailConsumer(ctx context.Context) error {
	return c.run(ctx, emailQueueName, c.handleEmail)
}

func (c *Consumer) run(ctx context.Context, queueName string, handle func(context.Context, []byte) error) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Printf("%s-consumer: failed to dial broker: %v; retrying in %s", queueName, err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := c.consumeLoop(ctx, conn, queueName, handle); err != nil {
			log.Printf("%s-consumer: consume loop ended: %v; reconnecting", queueName, err)
			_ = conn.Close()
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		_ = conn.Close()
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, handle func(context.Context, []byte) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("%s-consumer: set QoS failed: %v", queueName, err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handle(ctx, d.Body); err != nil {
				log.Printf("%s-consumer: handle message failed: %v", queueName, err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handlePush(ctx context.Context, body []byte) error {
	var msg PushMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	tokens, err := c.dir.MessagingTokens(ctx, msg.UserIDs)
	if err != nil {
		return fmt.Errorf("resolve tokens: %w", err)
	}
	if len(tokens) == 0 {
		// Every recipient is missing or has no registered device.
		return nil
	}
	return c.push.Send(ctx, tokens, msg.Title, msg.Body, msg.Data)
}

func (c *Consumer) handleEmail(ctx context.Context, body []byte) error {
	var msg EmailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	to := msg.To
	if !strings.Contains(to, "@") {
		addr, err := c.dir.EmailAddress(ctx, to)
		if err != nil {
			return fmt.Errorf("resolve address for %s: %w", to, err)
		}
		to = addr
	}
	return c.email.Send(ctx, to, msg.Subject, msg.Body)
}
