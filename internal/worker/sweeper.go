package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ashevelev/order-platform-service/internal/config"
	orderrepo "github.com/ashevelev/order-platform-service/internal/order"
	"github.com/ashevelev/order-platform-service/pkg/logger"
)

// Sweeper periodically re-enqueues orders stuck in pending. It closes
// the gap left when a committed order could not be handed to the queue.
type Sweeper struct {
	repo   orderrepo.Repository
	queue  orderrepo.Producer
	logger logger.Logger
	config *config.Config
	wg     *sync.WaitGroup
	done   chan struct{}
	stop   sync.Once
}

func NewSweeper(
	repo orderrepo.Repository,
	queue orderrepo.Producer,
	cfg *config.Config,
	logger logger.Logger,
) (*Sweeper, error) {
	if cfg == nil {
		return nil, errors.New("nil dependency: config")
	}
	if queue == nil {
		return nil, errors.New("nil dependency: queue producer")
	}

	return &Sweeper{
		repo:   repo,
		queue:  queue,
		logger: logger,
		config: cfg,
		wg:     &sync.WaitGroup{},
		done:   make(chan struct{}),
	}, nil
}

func (s *Sweeper) Run() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
}

func (s *Sweeper) Stop() {
	s.stop.Do(func() {
		close(s.done)
	})

	ready := make(chan struct{})
	go func() {
		defer close(ready)
		s.wg.Wait()
	}()

	select {
	case <-time.After(s.config.HTTPServer.ShutdownTimeout):
		s.logger.Error("sweeper stop: shutdown timeout exceeded")
	case <-ready:
	}
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.config.Worker.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Worker.SweepInterval)
	defer cancel()

	ids, err := s.repo.StalePendingIDs(ctx,
		s.config.Worker.SweepAfter, s.config.Worker.SweepLimit)
	if err != nil {
		s.logger.Errorf("sweep stale pending orders: %s", err)
		return
	}

	for _, id := range ids {
		if err = s.queue.Enqueue(ctx, id); err != nil {
			s.logger.Errorf("re-enqueue order %d: %s", id, err)
			continue
		}
		s.logger.Infof("re-enqueued stale pending order %d", id)
	}
}
