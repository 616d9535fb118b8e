package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/ashevelev/order-platform-service/pkg/retry"
	"github.com/segmentio/kafka-go"
)

// Handler processes one queue message. A nil return acknowledges the
// message; an error triggers the bounded retry policy.
type Handler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// Reader is the subset of kafka.Reader the consumer needs.
// Kept narrow so tests can feed messages in.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewReader builds a kafka reader for the configured worker group.
// The broker guarantees single in-flight delivery per message within
// the group until the offset is committed.
func NewReader(cfg *config.Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.Group,
		MaxWait: 500 * time.Millisecond,
	})
}

type jobItem struct {
	msg    kafka.Message
	result chan error
}

// Consumer pulls messages and dispatches them to a bounded worker pool,
// so distinct orders are handled concurrently. A message is committed
// after a successful handle (at-least-once), and commits follow fetch
// order: an offset is never acknowledged while an earlier message is
// still in flight. Once the retry policy is exhausted a message is
// parked: committed anyway with a structured failure event, so one
// poisoned message never stalls the loop.
type Consumer struct {
	handler Handler
	reader  Reader
	logger  logger.Logger
	policy  retry.Policy
	workers int
	jobs    chan jobItem
}

func NewConsumer(handler Handler, reader Reader, cfg *config.Config, logger logger.Logger) *Consumer {
	workers := cfg.Kafka.Workers
	if workers < 1 {
		workers = 1
	}

	return &Consumer{
		handler: handler,
		reader:  reader,
		logger:  logger,
		policy: retry.Policy{
			Attempts:     cfg.Worker.RetryAttempts,
			Base:         cfg.Worker.RetryBase,
			Max:          cfg.Worker.RetryMax,
			JitterFactor: 0.3,
		},
		workers: workers,
		jobs:    make(chan jobItem, workers),
	}
}

// Run consumes until ctx is canceled. It always returns a non-nil
// error: ctx.Err() on shutdown or the fetch error that stopped it.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Errorf("close queue reader: %s", err)
		}
	}()

	for i := 0; i < c.workers; i++ {
		go c.worker(ctx)
	}

	// In-flight messages queue up here in fetch order; the commit loop
	// acknowledges them in that same order as their handlers finish.
	inFlight := make(chan jobItem, c.workers)
	go c.commitLoop(ctx, inFlight)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.logger.Errorf("fetch message: %s", err)
			sleepWithContext(ctx, 500*time.Millisecond)
			continue
		}

		// Hand the message to a worker and keep fetching; the in-flight
		// queue bounds how far ahead of the commits the fetches may run.
		item := jobItem{msg: msg, result: make(chan error, 1)}
		select {
		case c.jobs <- item:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case inFlight <- item:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) commitLoop(ctx context.Context, inFlight <-chan jobItem) {
	for {
		var item jobItem
		select {
		case <-ctx.Done():
			return
		case item = <-inFlight:
		}

		var handleErr error
		select {
		case <-ctx.Done():
			return
		case handleErr = <-item.result:
		}

		if handleErr != nil {
			// Retries exhausted: park the message so the loop survives.
			c.logger.With(ctx,
				"event", "message_parked",
				"partition", item.msg.Partition,
				"offset", item.msg.Offset,
				"ts", time.Now().UTC(),
			).Errorf("handling failed after %d attempts: %s", c.policy.Attempts, handleErr)
		}

		if err := c.reader.CommitMessages(ctx, item.msg); err != nil {
			c.logger.Errorf("commit partition %d offset %d: %s",
				item.msg.Partition, item.msg.Offset, err)
			sleepWithContext(ctx, 200*time.Millisecond)
		}
	}
}

func (c *Consumer) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-c.jobs:
			item.result <- retry.Do(ctx, c.policy, func() error {
				return c.handler.Handle(ctx, item.msg)
			})
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
