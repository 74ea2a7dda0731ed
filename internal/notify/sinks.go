package notify

import (
	"context"

	"vehicle-rental-backend/internal/config"
	"vehicle-rental-backend/internal/logger"
)

// SinksFromConfig enables every sink that has settings. A sink that fails to start is
// logged and left out so the caller still comes up. The returned func releases the
// broker connection.
func SinksFromConfig(ctx context.Context, n config.NotificationsConfig) ([]Sink, func()) {
	var sinks []Sink
	closeSinks := func() {}
	if n.AMQPURL != "" {
		p, err := NewRabbitPublisher(n.AMQPURL, n.Exchange)
		if err != nil {
			logger.Error("RabbitMQ sink disabled", "error", err)
		} else {
			sinks = append(sinks, p)
			closeSinks = p.Close
		}
	}
	if n.SendGridAPIKey != "" {
		sinks = append(sinks, NewOpsEmailer(n.SendGridAPIKey, n.FromEmail, n.FromName, n.OpsEmail))
	}
	if n.FirebaseCredentials != "" {
		p, err := NewCustomerPusher(ctx, n.FirebaseCredentials, n.PushTopicPrefix)
		if err != nil {
			logger.Error("FCM sink disabled", "error", err)
		} else {
			sinks = append(sinks, p)
		}
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info("Notification sinks", "enabled", names)
	return sinks, closeSinks
}
