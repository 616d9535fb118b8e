package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/ashevelev/order-platform-service/pkg/retry"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// IntentProcess asks a worker to drive the order through its lifecycle.
const IntentProcess = "process"

// Message is the work item handed from the API process to the workers.
// Delivery is at-least-once; handlers must tolerate duplicates.
type Message struct {
	MessageID string `json:"message_id"`
	Intent    string `json:"intent"`
	OrderID   int    `json:"order_id"`
}

// Producer writes processing jobs to the queue topic, keyed by order id
// so all messages of one order land on the same partition.
type Producer struct {
	writer *kafka.Writer
	policy retry.Policy
	logger logger.Logger
}

func NewProducer(cfg *config.Config, logger logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}

	return &Producer{
		writer: writer,
		policy: retry.Policy{
			Attempts:     cfg.Worker.RetryAttempts,
			Base:         cfg.Worker.RetryBase,
			Max:          cfg.Worker.RetryMax,
			JitterFactor: 0.3,
		},
		logger: logger,
	}
}

// Enqueue publishes a processing job for the order. The write is
// retried a bounded number of times; exhaustion surfaces as a
// dependency-unavailable error.
func (p *Producer) Enqueue(ctx context.Context, orderID int) error {
	value, err := json.Marshal(Message{
		MessageID: uuid.NewString(),
		Intent:    IntentProcess,
		OrderID:   orderID,
	})
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(orderID)),
		Value: value,
	}

	err = retry.Do(ctx, p.policy, func() error {
		return p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("%w: queue write for order %d: %s", errs.ErrUnavailable, orderID, err)
	}

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
