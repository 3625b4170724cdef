package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// ConsumerGroup is the Kafka group of the notifier service
const ConsumerGroup = "notifier-service"

// Consumer turns tenant events into notifications for the user who made the change
type Consumer struct {
	reader *kafka.Reader
	center *Center
}

func NewConsumer(broker string, center *Center) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{broker},
		Topic:          TenantEventsTopic,
		GroupID:        ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	return &Consumer{reader: reader, center: center}
}

// Run reads events until ctx is cancelled
func (c *Consumer) Run(ctx context.Context) {
	logrus.WithField("topic", TenantEventsTopic).Info("Starting tenant event consumer")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logrus.Info("Tenant event consumer stopped")
				return
			}
			logrus.WithError(err).Error("Error reading tenant event")
			time.Sleep(time.Second)
			continue
		}

		if err := HandleEvent(ctx, c.center, msg.Value); err != nil {
			logrus.WithFields(logrus.Fields{
				"offset":    msg.Offset,
				"partition": msg.Partition,
				"error":     err,
			}).Warn("Tenant event not delivered")
		}
	}
}

// HandleEvent decodes one event and pushes its notification
func HandleEvent(ctx context.Context, center *Center, value []byte) error {
	var event TenantEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal tenant event: %w", err)
	}
	if event.ActorID == "" {
		return errors.New("tenant event has no actor")
	}

	if _, err := center.Push(ctx, event.ActorID, event.Notification()); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"event_id":  event.ID,
		"type":      event.Type,
		"tenant_id": event.TenantID,
		"actor_id":  event.ActorID,
	}).Debug("Tenant event delivered")
	return nil
}

func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close tenant event reader: %w", err)
	}
	return nil
}
