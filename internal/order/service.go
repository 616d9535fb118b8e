package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/order"
	"github.com/ashevelev/order-platform-service/internal/models/user"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/shopspring/decimal"
)

// Listing page bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Field bounds shared by create and update.
const (
	titleMinLen       = 3
	titleMaxLen       = 140
	descriptionMaxLen = 500
	priorityMin       = 1
	priorityMax       = 5
	priorityDefault   = 3
)

// Producer hands an order over for asynchronous processing.
type Producer interface {
	Enqueue(ctx context.Context, orderID int) error
}

// trManager runs fn within a database transaction.
type trManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates the repository, the list cache and the job queue
// behind the ownership contract.
type Service struct {
	repo   Repository
	cache  *ListCache
	queue  Producer
	trm    trManager
	logger logger.Logger
	config *config.Config
}

func NewService(
	repo Repository,
	cache *ListCache,
	queue Producer,
	trm trManager,
	logger logger.Logger,
	config *config.Config,
) (*Service, error) {
	if config == nil {
		return nil, errors.New("nil dependency: config")
	}
	if trm == nil {
		return nil, errors.New("nil dependency: transaction manager")
	}
	if cache == nil {
		return nil, errors.New("nil dependency: cache")
	}
	if queue == nil {
		return nil, errors.New("nil dependency: queue producer")
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		queue:  queue,
		trm:    trm,
		logger: logger,
		config: config,
	}, nil
}

// Authorize is the single authorization policy: the owner and elevated
// users may access the order, everyone else is denied.
func Authorize(requester *user.User, ownerID int) error {
	if requester == nil {
		return errs.ErrInvalidCredentials
	}
	if requester.ID == ownerID || requester.Role.Elevated() {
		return nil
	}
	return errs.ErrForbidden
}

// CreateParams defines parameters for Create.
type CreateParams struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"total_amount"`
	Priority    *int            `json:"priority"`
}

// UpdateParams defines parameters for Update. Nil fields stay untouched.
type UpdateParams struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"total_amount"`
	Priority    *int             `json:"priority"`
	Status      *order.Status    `json:"status"`
}

// Create persists a new pending order owned by the requester and hands
// it to the job queue. The queue write happens strictly after the
// repository write commits. A queue failure is surfaced to the caller,
// but the committed order remains; the reconciliation sweep re-enqueues
// it later.
func (s *Service) Create(ctx context.Context, requester *user.User, params CreateParams) (*order.Order, error) {
	if requester == nil {
		return nil, errs.ErrInvalidCredentials
	}

	priority := priorityDefault
	if params.Priority != nil {
		priority = *params.Priority
	}

	o := &order.Order{
		UserID:      requester.ID,
		Title:       params.Title,
		Description: params.Description,
		Amount:      params.Amount,
		Priority:    priority,
		Status:      order.StatusPending,
	}

	if err := validate(o); err != nil {
		return nil, err
	}

	var created *order.Order
	err := s.trm.Do(ctx, func(ctx context.Context) error {
		var err error
		if created, err = s.repo.Create(ctx, o); err != nil {
			return err
		}
		return s.repo.SaveEvent(ctx, created.ID, "", order.StatusPending)
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.cache.Invalidate(created.UserID)

	if err = s.queue.Enqueue(ctx, created.ID); err != nil {
		s.logger.With(ctx,
			"event", "enqueue_failure",
			"order_id", created.ID,
		).Errorf("order %d committed but not enqueued: %s", created.ID, err)
		return nil, fmt.Errorf("enqueue order %d: %w", created.ID, err)
	}

	return created, nil
}

// Get returns the order. Existence is checked before ownership, so an
// absent id yields NotFound and a foreign one yields Forbidden.
func (s *Service) Get(ctx context.Context, requester *user.User, id int) (*order.Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err = Authorize(requester, o.UserID); err != nil {
		return nil, err
	}

	return o, nil
}

// List returns the requester's orders, newest first, serving from the
// snapshot cache when possible. Cache failures silently degrade to
// repository reads.
func (s *Service) List(ctx context.Context, requester *user.User, f Filter, p Page) ([]*order.Order, error) {
	if requester == nil {
		return nil, errs.ErrInvalidCredentials
	}

	if f.Status != "" && !f.Status.Valid() {
		return nil, &errs.ValidationError{Field: "status", Reason: "unknown status"}
	}

	p = normalize(p)
	key := cacheKey(requester.ID, f, p)

	if snapshot, ok := s.cache.Get(key); ok {
		orders := make([]*order.Order, 0)
		if err := json.Unmarshal(snapshot, &orders); err == nil {
			return orders, nil
		}
		// A corrupted snapshot is treated as a miss.
		s.logger.Errorf("unmarshal cached snapshot %q failed", key)
	}

	orders, err := s.repo.List(ctx, requester.ID, f, p)
	if err != nil {
		return nil, err
	}

	if snapshot, err := json.Marshal(orders); err == nil {
		s.cache.Put(key, snapshot)
	}

	return orders, nil
}

// Update mutates the order fields and, when requested, cancels it.
// Clients may only move the status to canceled; processing and
// completed are reserved for the worker.
func (s *Service) Update(ctx context.Context, requester *user.User, id int, params UpdateParams) (*order.Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err = Authorize(requester, o.UserID); err != nil {
		return nil, err
	}

	if params.Status != nil {
		if o, err = s.cancel(ctx, o, *params.Status); err != nil {
			return nil, err
		}
	}

	if params.Title != nil || params.Description != nil ||
		params.Amount != nil || params.Priority != nil {
		if params.Title != nil {
			o.Title = *params.Title
		}
		if params.Description != nil {
			o.Description = *params.Description
		}
		if params.Amount != nil {
			o.Amount = *params.Amount
		}
		if params.Priority != nil {
			o.Priority = *params.Priority
		}

		if err = validate(o); err != nil {
			return nil, err
		}

		if o, err = s.repo.Update(ctx, o); err != nil {
			return nil, fmt.Errorf("update order %d: %w", id, err)
		}
	}

	s.cache.Invalidate(o.UserID)

	return o, nil
}

// cancel applies the owner-requested transition to canceled with a
// precondition-checked write. When the worker moves the order
// concurrently, the fresher state is re-read and the write retried;
// a terminal state ends the race with InvalidTransition.
func (s *Service) cancel(ctx context.Context, o *order.Order, requested order.Status) (*order.Order, error) {
	if requested == o.Status {
		return o, nil
	}
	if requested != order.StatusCanceled {
		return nil, fmt.Errorf("%w: only cancellation may be requested, got %q",
			errs.ErrInvalidTransition, requested)
	}

	for {
		if o.Status.Terminal() {
			return nil, fmt.Errorf("%w: order is already %s",
				errs.ErrInvalidTransition, o.Status)
		}

		applied, err := s.repo.UpdateStatus(ctx, o.ID, o.Status, order.StatusCanceled)
		if err != nil {
			return nil, fmt.Errorf("cancel order %d: %w", o.ID, err)
		}
		if applied {
			return s.repo.GetByID(ctx, o.ID)
		}

		// Lost the race against a concurrent transition; re-read and decide
		// against the fresh state.
		if o, err = s.repo.GetByID(ctx, o.ID); err != nil {
			return nil, err
		}
	}
}

// Delete removes the order.
func (s *Service) Delete(ctx context.Context, requester *user.User, id int) error {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err = Authorize(requester, o.UserID); err != nil {
		return err
	}

	if err = s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}

	s.cache.Invalidate(o.UserID)

	return nil
}

func validate(o *order.Order) error {
	if len(o.Title) < titleMinLen || len(o.Title) > titleMaxLen {
		return &errs.ValidationError{
			Field:  "title",
			Reason: fmt.Sprintf("must be between %d and %d characters long", titleMinLen, titleMaxLen),
		}
	}
	if len(o.Description) > descriptionMaxLen {
		return &errs.ValidationError{
			Field:  "description",
			Reason: fmt.Sprintf("must not exceed %d characters", descriptionMaxLen),
		}
	}
	if !o.Amount.IsPositive() {
		return &errs.ValidationError{Field: "total_amount", Reason: "must be positive"}
	}
	if o.Priority < priorityMin || o.Priority > priorityMax {
		return &errs.ValidationError{
			Field:  "priority",
			Reason: fmt.Sprintf("must be between %d and %d", priorityMin, priorityMax),
		}
	}
	return nil
}

func normalize(p Page) Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
