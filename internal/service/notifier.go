package service

import (
	"context"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type pushNotifier struct {
	client messageSender
}

// NewPushNotifier builds a Firebase Cloud Messaging notifier from a service
// account file. An empty path returns a notifier that only logs.
func NewPushNotifier(ctx context.Context, credentialsFile string) (Notifier, error) {
	if credentialsFile == "" {
		return &pushNotifier{}, nil
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &pushNotifier{client: client}, nil
}

func (n *pushNotifier) NotifyPayout(ctx context.Context, carrier *domain.Carrier, loadID, amountInCents int64) error {
	if n.client == nil || carrier.PushToken == "" {
		logger.Debug("Push disabled or no device token", "carrierID", carrier.ID, "loadID", loadID)
		return nil
	}

	msg := &messaging.Message{
		Token: carrier.PushToken,
		Notification: &messaging.Notification{
			Title: "Payment sent",
			Body:  fmt.Sprintf("%s for load %d is on its way", formatCents(amountInCents), loadID),
		},
		Data: map[string]string{
			"type":    "payout",
			"load_id": strconv.FormatInt(loadID, 10),
		},
	}

	logger.ExternalServiceCall("fcm", "Send", "carrierID", carrier.ID)
	id, err := n.client.Send(ctx, msg)
	logger.ExternalServiceResult("fcm", "Send", err, "carrierID", carrier.ID, "messageID", id)
	return err
}
