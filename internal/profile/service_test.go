package profile

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/user"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Lock in case of t.Parallel call.
type mockRepository struct {
	mu   sync.Mutex
	byID map[int]*user.User
}

func newMockRepository(users ...*user.User) *mockRepository {
	byID := make(map[int]*user.User, len(users))
	for _, u := range users {
		copied := *u
		byID[u.ID] = &copied
	}
	return &mockRepository{byID: byID}
}

var _ Repository = (*mockRepository)(nil)

func (m *mockRepository) UpdateProfile(_ context.Context, userID int, name, password *string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if name != nil {
		u.Name = *name
	}
	if password != nil {
		u.Password = *password
	}

	copied := *u
	return &copied, nil
}

func (m *mockRepository) List(_ context.Context, offset, limit int) ([]*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	users := make([]*user.User, 0)
	for _, id := range ids {
		copied := *m.byID[id]
		users = append(users, &copied)
	}

	if offset >= len(users) {
		return []*user.User{}, nil
	}
	users = users[offset:]
	if limit < len(users) {
		users = users[:limit]
	}

	return users, nil
}

func (m *mockRepository) Deactivate(_ context.Context, userID int) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	u.Active = false

	copied := *u
	return &copied, nil
}

func standardUser() *user.User {
	return &user.User{ID: 1, Email: "user@example.com", Name: "User", Role: user.RoleStandard, Active: true}
}

func elevatedUser() *user.User {
	return &user.User{ID: 2, Email: "admin@example.com", Name: "Admin", Role: user.RoleElevated, Active: true}
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()

	service, err := NewService(repo, logger.NewNop(), &config.Config{
		PasswordHashCost: bcrypt.MinCost,
	})
	require.NoError(t, err)

	return service
}

func TestService_UpdateMe(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository(standardUser())
	service := newTestService(t, repo)

	name := "Renamed User"
	password := "fresh-password"

	updated, err := service.UpdateMe(ctx, standardUser(), UpdateParams{Name: &name, Password: &password})
	require.NoError(t, err)

	assert.Equal(t, name, updated.Name)
	// The repository receives a hash, never the plaintext.
	assert.NotEqual(t, password, updated.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.Password), []byte(password)))
}

func TestService_UpdateMe_Validation(t *testing.T) {
	ctx := context.Background()

	shortName := "N"
	shortPassword := "short"

	tests := []struct {
		name   string
		params UpdateParams
	}{
		{"short name", UpdateParams{Name: &shortName}},
		{"short password", UpdateParams{Password: &shortPassword}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestService(t, newMockRepository(standardUser()))

			_, err := service.UpdateMe(ctx, standardUser(), tt.params)
			assert.ErrorIs(t, err, errs.ErrInvalidPayload)
		})
	}
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository(standardUser(), elevatedUser())
	service := newTestService(t, repo)

	_, err := service.List(ctx, standardUser(), 0, 10)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	users, err := service.List(ctx, elevatedUser(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	// Offset past the end yields an empty page, not an error.
	users, err = service.List(ctx, elevatedUser(), 10, 10)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestService_Deactivate(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository(standardUser(), elevatedUser())
	service := newTestService(t, repo)

	_, err := service.Deactivate(ctx, standardUser(), 1)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	deactivated, err := service.Deactivate(ctx, elevatedUser(), 1)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	_, err = service.Deactivate(ctx, elevatedUser(), 404)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
