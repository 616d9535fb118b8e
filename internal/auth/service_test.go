package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/ashevelev/order-platform-service/internal/jwt"
	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/user"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "test-signing-key"

// Lock in case of t.Parallel call.
type mockRepository struct {
	mu     sync.Mutex
	byID   map[int]*user.User
	nextID int
}

func newMockRepository() *mockRepository {
	return &mockRepository{byID: make(map[int]*user.User)}
}

var _ Repository = (*mockRepository)(nil)

func (m *mockRepository) GetUserByID(_ context.Context, id int) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockRepository) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.byID {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *mockRepository) CreateUser(_ context.Context, email, password, name string) (int, error) {
	return m.createUser(email, password, name, user.RoleStandard)
}

func (m *mockRepository) CreateElevatedUser(_ context.Context, email, password, name string) (int, error) {
	return m.createUser(email, password, name, user.RoleElevated)
}

func (m *mockRepository) createUser(email, password, name string, role user.Role) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.byID {
		if u.Email == email {
			return 0, errs.ErrDataConflict
		}
	}

	m.nextID++
	m.byID[m.nextID] = &user.User{
		ID:       m.nextID,
		Email:    email,
		Name:     name,
		Password: password,
		Role:     role,
		Active:   true,
	}

	return m.nextID, nil
}

// deactivate flips the active flag directly for middleware scenarios.
func (m *mockRepository) deactivate(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		u.Active = false
	}
}

func newTestService(t *testing.T) (*Service, *mockRepository) {
	t.Helper()

	repo := newMockRepository()
	service, err := NewService(repo, logger.NewNop(), &config.Config{
		JWT: config.JWT{
			SigningKey: testSigningKey,
			Expiration: time.Hour,
		},
		// MinCost keeps password hashing fast in tests.
		PasswordHashCost: bcrypt.MinCost,
	})
	require.NoError(t, err)

	return service, repo
}

func registerUser(t *testing.T, service *Service, email, password string) int {
	t.Helper()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/auth/register", nil)
	service.Register(w, r, RegisterParams{Email: email, Password: password, Name: "Test User"})
	require.Equal(t, http.StatusCreated, w.Code)

	claims, err := jwt.Parse(w.Header().Get("Authorization"), testSigningKey)
	require.NoError(t, err)

	return claims.UserID
}

func TestService_Bootstrap(t *testing.T) {
	ctx := context.Background()

	repo := newMockRepository()
	service, err := NewService(repo, logger.NewNop(), &config.Config{
		JWT:              config.JWT{SigningKey: testSigningKey, Expiration: time.Hour},
		PasswordHashCost: bcrypt.MinCost,
		Admin: config.Admin{
			Email:    "admin@example.com",
			Password: "admin-password",
			Name:     "Administrator",
		},
	})
	require.NoError(t, err)

	require.NoError(t, service.Bootstrap(ctx))

	admin, err := repo.GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.True(t, admin.Role.Elevated())
	assert.True(t, admin.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte("admin-password")))

	// Restarting against an already seeded database is a no-op.
	require.NoError(t, service.Bootstrap(ctx))
	assert.Len(t, repo.byID, 1)
}

func TestService_Bootstrap_Unconfigured(t *testing.T) {
	service, repo := newTestService(t)

	require.NoError(t, service.Bootstrap(context.Background()))
	assert.Empty(t, repo.byID)
}

func TestService_Bootstrap_MissingPassword(t *testing.T) {
	repo := newMockRepository()
	service, err := NewService(repo, logger.NewNop(), &config.Config{
		PasswordHashCost: bcrypt.MinCost,
		Admin:            config.Admin{Email: "admin@example.com"},
	})
	require.NoError(t, err)

	assert.Error(t, service.Bootstrap(context.Background()))
}

func TestService_Register(t *testing.T) {
	service, repo := newTestService(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/auth/register", nil)
	service.Register(w, r, RegisterParams{
		Email:    "new@example.com",
		Password: "secret-password",
		Name:     "New User",
	})

	require.Equal(t, http.StatusCreated, w.Code)

	// The token travels in the header, the cookie and the body.
	authToken := w.Header().Get("Authorization")
	claims, err := jwt.Parse(authToken, testSigningKey)
	require.NoError(t, err)
	assert.Equal(t, 1, claims.UserID)
	assert.Equal(t, user.RoleStandard, claims.Role)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "Authorization", cookies[0].Name)
	assert.Equal(t, authToken, cookies[0].Value)

	var body tokenResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, authToken, body.AccessToken)
	assert.Equal(t, "bearer", body.TokenType)

	// The stored password is a hash, never the plaintext.
	stored, err := repo.GetUserByID(context.Background(), claims.UserID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret-password", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("secret-password")))
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	service, _ := newTestService(t)
	registerUser(t, service, "taken@example.com", "secret-password")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/auth/register", nil)
	service.Register(w, r, RegisterParams{
		Email:    "taken@example.com",
		Password: "another-password",
		Name:     "Impostor",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestService_Login(t *testing.T) {
	service, repo := newTestService(t)
	id := registerUser(t, service, "login@example.com", "secret-password")

	tests := []struct {
		name     string
		params   LoginParams
		prepare  func()
		wantCode int
	}{
		{
			name:     "valid credentials",
			params:   LoginParams{Email: "login@example.com", Password: "secret-password"},
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong password",
			params:   LoginParams{Email: "login@example.com", Password: "wrong-password"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "unknown email",
			params:   LoginParams{Email: "ghost@example.com", Password: "secret-password"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "inactive user",
			params:   LoginParams{Email: "login@example.com", Password: "secret-password"},
			prepare:  func() { repo.deactivate(id) },
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prepare != nil {
				tt.prepare()
			}

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			service.Login(w, r, tt.params)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.NotEmpty(t, w.Header().Get("Authorization"))
			}
		})
	}
}

func TestService_Middleware(t *testing.T) {
	service, repo := newTestService(t)
	id := registerUser(t, service, "auth@example.com", "secret-password")

	validToken, err := jwt.BuildString(id, user.RoleStandard, testSigningKey, time.Hour)
	require.NoError(t, err)
	unknownUserToken, err := jwt.BuildString(id+100, user.RoleStandard, testSigningKey, time.Hour)
	require.NoError(t, err)
	expiredToken, err := jwt.BuildString(id, user.RoleStandard, testSigningKey, -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name      string
		decorate  func(r *http.Request)
		prepare   func()
		wantCode  int
		wantsUser bool
	}{
		{
			name:      "token in header",
			decorate:  func(r *http.Request) { r.Header.Set("Authorization", validToken) },
			wantCode:  http.StatusOK,
			wantsUser: true,
		},
		{
			name: "token in cookie",
			decorate: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "Authorization", Value: validToken})
			},
			wantCode:  http.StatusOK,
			wantsUser: true,
		},
		{
			name:     "missing token",
			decorate: func(*http.Request) {},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "garbage token",
			decorate: func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") },
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "expired token",
			decorate: func(r *http.Request) { r.Header.Set("Authorization", expiredToken) },
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "token of unknown user",
			decorate: func(r *http.Request) { r.Header.Set("Authorization", unknownUserToken) },
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "token of deactivated user",
			decorate: func(r *http.Request) { r.Header.Set("Authorization", validToken) },
			prepare:  func() { repo.deactivate(id) },
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prepare != nil {
				tt.prepare()
			}

			var gotUser *user.User
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = user.FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			tt.decorate(r)

			service.Middleware(next).ServeHTTP(w, r)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantsUser {
				require.NotNil(t, gotUser)
				assert.Equal(t, id, gotUser.ID)
				assert.Equal(t, "auth@example.com", gotUser.Email)
			}
		})
	}
}

func TestErrorHandlerFunc(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation error", &errs.ValidationError{Field: "email", Reason: "bad"}, http.StatusBadRequest},
		{"invalid credentials", errs.ErrInvalidCredentials, http.StatusUnauthorized},
		{"forbidden", errs.ErrForbidden, http.StatusForbidden},
		{"not found", errs.ErrNotFound, http.StatusNotFound},
		{"data conflict", errs.ErrDataConflict, http.StatusConflict},
		{"unclassified", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil))

			ErrorHandlerFunc(w, r, tt.err)

			assert.Equal(t, tt.wantCode, w.Code)

			var body errs.JSON
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}
