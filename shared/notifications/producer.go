package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when the producer cannot take more events
var ErrQueueFull = errors.New("tenant event queue full, event dropped")

// Publisher sends tenant events without blocking the request
type Publisher interface {
	Publish(event TenantEvent) error
	Close() error
}

// NewPublisher returns a Kafka producer, or a no-op publisher when no broker is configured
func NewPublisher(broker string) Publisher {
	if broker == "" {
		logrus.Warn("KAFKA_BROKER not set, tenant events will not be published")
		return NopPublisher{}
	}
	return NewProducer(broker)
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) Publish(TenantEvent) error { return nil }
func (NopPublisher) Close() error              { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes tenant events to Kafka from a worker pool
type Producer struct {
	writer       messageWriter
	events       chan TenantEvent
	workerCount  int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

// NewProducer creates a producer and starts its workers
func NewProducer(broker string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        TenantEventsTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
	return newProducer(writer, 256, 4)
}

func newProducer(writer messageWriter, queueSize, workers int) *Producer {
	p := &Producer{
		writer:       writer,
		events:       make(chan TenantEvent, queueSize),
		workerCount:  workers,
		shutdownChan: make(chan struct{}),
	}
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logrus.WithField("workers", p.workerCount).Info("Tenant event producer started")
	return p
}

func (p *Producer) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case event := <-p.events:
			p.send(id, event)
		case <-p.shutdownChan:
			// flush what is already queued
			for {
				select {
				case event := <-p.events:
					p.send(id, event)
				default:
					return
				}
			}
		}
	}
}

func (p *Producer) send(worker int, event TenantEvent) {
	if err := p.write(event); err != nil {
		logrus.WithFields(logrus.Fields{
			"worker":    worker,
			"event_id":  event.ID,
			"type":      event.Type,
			"tenant_id": event.TenantID,
			"error":     err,
		}).Error("Failed to publish tenant event")
	}
}

// Publish queues an event; it never blocks
func (p *Producer) Publish(event TenantEvent) error {
	select {
	case p.events <- event:
		return nil
	default:
		logrus.WithFields(logrus.Fields{
			"event_id": event.ID,
			"type":     event.Type,
		}).Warn("Tenant event queue full")
		return ErrQueueFull
	}
}

func (p *Producer) write(event TenantEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.TenantID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
			{Key: "actor_id", Value: []byte(event.ActorID)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write tenant event to Kafka: %w", err)
	}
	return nil
}

// Close drains queued events and closes the writer
func (p *Producer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.shutdownChan)
		p.wg.Wait()
		if cerr := p.writer.Close(); cerr != nil {
			err = fmt.Errorf("failed to close Kafka writer: %w", cerr)
		}
		logrus.Info("Tenant event producer stopped")
	})
	return err
}
