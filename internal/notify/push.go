package notify

import (
	"context"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"vehicle-rental-backend/internal/domain"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// CustomerPusher sends a push notification to the customer's FCM topic on every transition.
type CustomerPusher struct {
	client      messageSender
	topicPrefix string
}

func NewCustomerPusher(ctx context.Context, credentialsFile, topicPrefix string) (*CustomerPusher, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return &CustomerPusher{client: client, topicPrefix: topicPrefix}, nil
}

func (p *CustomerPusher) Name() string { return "fcm" }

func (p *CustomerPusher) Deliver(ctx context.Context, event domain.BookingEvent) error {
	title, body := describe(event)
	msg := &messaging.Message{
		Topic: p.topicPrefix + strconv.Itoa(int(event.CustomerID)),
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"event_id":   event.ID,
			"booking_id": strconv.Itoa(int(event.BookingID)),
			"status":     string(event.To),
		},
	}
	if _, err := p.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
