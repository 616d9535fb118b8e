package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	orderrepo "github.com/ashevelev/order-platform-service/internal/order"
	"github.com/ashevelev/order-platform-service/internal/queue"

	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/order"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Processor drives consumed orders through
// pending -> processing -> completed.
type Processor struct {
	repo   orderrepo.Repository
	cache  orderrepo.Invalidator
	logger logger.Logger
	delay  time.Duration
}

func NewProcessor(
	repo orderrepo.Repository,
	cache orderrepo.Invalidator,
	cfg *config.Config,
	logger logger.Logger,
) (*Processor, error) {
	if cfg == nil {
		return nil, errors.New("nil dependency: config")
	}
	if cache == nil {
		return nil, errors.New("nil dependency: cache")
	}

	return &Processor{
		repo:   repo,
		cache:  cache,
		logger: logger,
		delay:  cfg.Worker.ProcessingDelay,
	}, nil
}

var _ queue.Handler = (*Processor)(nil)

// Handle processes one queue message. Duplicate deliveries are
// acknowledged silently: a missing or terminal order is discarded, and
// each transition is a precondition-checked write that no-ops when the
// expected prior state is gone. Store errors are returned so the
// consumer retries.
func (p *Processor) Handle(ctx context.Context, msg kafka.Message) error {
	var m queue.Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		// Malformed payloads can never succeed; acknowledge and drop.
		p.logger.Errorf("discard malformed queue message at offset %d: %s", msg.Offset, err)
		return nil
	}
	if m.Intent != queue.IntentProcess {
		p.logger.Errorf("discard queue message %s: unknown intent %q", m.MessageID, m.Intent)
		return nil
	}

	o, err := p.repo.GetByID(ctx, m.OrderID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			p.logger.Infof("discard message %s: order %d not found", m.MessageID, m.OrderID)
			return nil
		}
		return fmt.Errorf("load order %d: %w", m.OrderID, err)
	}

	if o.Status.Terminal() {
		p.logger.Infof("discard message %s: order %d already %s", m.MessageID, o.ID, o.Status)
		return nil
	}

	if o.Status == order.StatusPending {
		applied, err := p.repo.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusProcessing)
		if err != nil {
			return fmt.Errorf("order %d to processing: %w", o.ID, err)
		}
		if !applied {
			// Someone moved the order first (cancel or a duplicate
			// delivery); the no-op keeps transitions strictly ordered.
			p.logger.Infof("order %d left pending concurrently, skipping", o.ID)
			return nil
		}
		p.cache.Invalidate(o.UserID)
	}

	// The processing step itself (billing/logistics integrations in a
	// real system) is simulated with a deterministic delay.
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	applied, err := p.repo.UpdateStatus(ctx, o.ID, order.StatusProcessing, order.StatusCompleted)
	if err != nil {
		return fmt.Errorf("order %d to completed: %w", o.ID, err)
	}
	if !applied {
		// Lost the race to an owner-requested cancel; nothing to undo.
		p.logger.Infof("order %d no longer processing, completion skipped", o.ID)
		return nil
	}

	p.cache.Invalidate(o.UserID)
	p.logger.Infof("order %d completed", o.ID)

	return nil
}
