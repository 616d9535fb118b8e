package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/order"
)

type event struct {
	orderID int
	from    order.Status
	to      order.Status
}

// Lock in case of t.Parallel call.
type mockRepository struct {
	mu     sync.Mutex
	items  map[int]*order.Order
	events []event
	nextID int

	// listCalls counts repository reads behind List so tests can tell
	// a cache hit from a miss.
	listCalls int

	// failWith, when set, is returned by every method.
	failWith error

	// beforeUpdateStatus, when set, runs once before the next
	// UpdateStatus call. Lets tests interleave a concurrent write.
	beforeUpdateStatus func()
}

func newMockRepository() *mockRepository {
	return &mockRepository{items: make(map[int]*order.Order)}
}

var _ Repository = (*mockRepository)(nil)

func (m *mockRepository) Create(_ context.Context, o *order.Order) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	m.nextID++
	stored := *o
	stored.ID = m.nextID
	// UTC keeps timestamps stable across a JSON round trip.
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	m.items[stored.ID] = &stored

	copied := stored
	return &copied, nil
}

func (m *mockRepository) GetByID(_ context.Context, id int) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	stored, ok := m.items[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (m *mockRepository) List(_ context.Context, ownerID int, f Filter, p Page) ([]*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.listCalls++

	matched := make([]*order.Order, 0)
	for _, stored := range m.items {
		if stored.UserID != ownerID {
			continue
		}
		if f.Status != "" && stored.Status != f.Status {
			continue
		}
		copied := *stored
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if p.Offset >= len(matched) {
		return []*order.Order{}, nil
	}
	matched = matched[p.Offset:]
	if p.Limit < len(matched) {
		matched = matched[:p.Limit]
	}

	return matched, nil
}

func (m *mockRepository) Update(_ context.Context, o *order.Order) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	stored, ok := m.items[o.ID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	stored.Title = o.Title
	stored.Description = o.Description
	stored.Amount = o.Amount
	stored.Priority = o.Priority
	stored.UpdatedAt = time.Now().UTC()

	copied := *stored
	return &copied, nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, id int, from, to order.Status) (bool, error) {
	if hook := m.beforeUpdateStatus; hook != nil {
		m.beforeUpdateStatus = nil
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}

	stored, ok := m.items[id]
	if !ok || stored.Status != from {
		return false, nil
	}
	stored.Status = to
	stored.UpdatedAt = time.Now().UTC()
	m.events = append(m.events, event{orderID: id, from: from, to: to})

	return true, nil
}

func (m *mockRepository) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	if _, ok := m.items[id]; !ok {
		return errs.ErrNotFound
	}
	delete(m.items, id)

	return nil
}

func (m *mockRepository) SaveEvent(_ context.Context, orderID int, from, to order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	m.events = append(m.events, event{orderID: orderID, from: from, to: to})

	return nil
}

func (m *mockRepository) StalePendingIDs(_ context.Context, olderThan time.Duration, limit int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	ids := make([]int, 0)
	cutoff := time.Now().Add(-olderThan)
	for id, stored := range m.items {
		if stored.Status == order.StatusPending && stored.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	if limit < len(ids) {
		ids = ids[:limit]
	}

	return ids, nil
}

// setStatus overwrites the stored status directly, bypassing the
// precondition check. Used to stage race scenarios.
func (m *mockRepository) setStatus(id int, status order.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.items[id]; ok {
		stored.Status = status
	}
}

type mockProducer struct {
	mu       sync.Mutex
	enqueued []int
	failWith error
}

var _ Producer = (*mockProducer)(nil)

func (m *mockProducer) Enqueue(_ context.Context, orderID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.enqueued = append(m.enqueued, orderID)
	return nil
}

// fakeTrManager runs the unit of work without a database transaction.
type fakeTrManager struct{}

func (fakeTrManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
