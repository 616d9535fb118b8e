package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/ashevelev/order-platform-service/internal/jwt"
	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/user"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	repo   Repository
	logger logger.Logger
	config *config.Config
}

func NewService(repo Repository, logger logger.Logger, config *config.Config) (*Service, error) {
	if config == nil {
		return nil, errors.New("nil dependency: config")
	}
	return &Service{repo: repo, logger: logger, config: config}, nil
}

var _ ServerInterface = (*Service)(nil)

// tokenResponse is the body of successful register/login responses.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Bootstrap ensures the configured administrator account exists, so
// the elevated-only operations are reachable on a fresh database. An
// already registered email leaves the existing account untouched.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.config.Admin.Email == "" {
		return nil
	}
	if s.config.Admin.Password == "" {
		return errors.New("admin email configured without a password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.config.Admin.Password), s.config.PasswordHashCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	id, err := s.repo.CreateElevatedUser(ctx, s.config.Admin.Email, string(hash), s.config.Admin.Name)
	if err != nil {
		if errors.Is(err, errs.ErrDataConflict) {
			return nil
		}
		return fmt.Errorf("bootstrap admin %q: %w", s.config.Admin.Email, err)
	}

	s.logger.Infof("bootstrapped admin user %d (%s)", id, s.config.Admin.Email)

	return nil
}

// Registration (POST /api/auth/register).
func (s *Service) Register(w http.ResponseWriter, r *http.Request, params RegisterParams) {
	// Create password hash.
	hashPassword, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.config.PasswordHashCost)
	if err != nil {
		ErrorHandlerFunc(w, r, fmt.Errorf("hash password: %w", err))
		return
	}

	// Create user.
	id, err := s.repo.CreateUser(r.Context(), params.Email, string(hashPassword), params.Name)
	if err != nil {
		if errors.Is(err, errs.ErrDataConflict) {
			ErrorHandlerFunc(w, r, fmt.Errorf("%w: email %q already registered", err, params.Email))
			return
		}
		ErrorHandlerFunc(w, r, fmt.Errorf("create user: %w", err))
		return
	}

	s.writeToken(w, r, id, user.RoleStandard, http.StatusCreated)
}

// Authentication (POST /api/auth/login).
func (s *Service) Login(w http.ResponseWriter, r *http.Request, params LoginParams) {
	// Retrieve user from the database with provided email.
	u, err := s.repo.GetUserByEmail(r.Context(), params.Email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.authFailure(r, "login", "unknown email")
			ErrorHandlerFunc(w, r, fmt.Errorf("%w: email or password", errs.ErrInvalidCredentials))
			return
		}
		ErrorHandlerFunc(w, r, fmt.Errorf("get user %q: %w", params.Email, err))
		return
	}

	if !u.Active {
		s.authFailure(r, "login", "inactive user")
		ErrorHandlerFunc(w, r, fmt.Errorf("%w: inactive user", errs.ErrInvalidCredentials))
		return
	}

	// Compare stored and provided passwords.
	err = bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(params.Password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.authFailure(r, "login", "password mismatch")
			ErrorHandlerFunc(w, r, fmt.Errorf("%w: email or password", errs.ErrInvalidCredentials))
			return
		}
		ErrorHandlerFunc(w, r, fmt.Errorf("compare passwords: %w", err))
		return
	}

	s.writeToken(w, r, u.ID, u.Role, http.StatusOK)
}

// writeToken builds an authentication token for the user and sends it
// both as the "Authorization" cookie and in the response body.
func (s *Service) writeToken(w http.ResponseWriter, r *http.Request, userID int, role user.Role, code int) {
	authToken, err := jwt.BuildString(userID, role, s.config.JWT.SigningKey, s.config.JWT.Expiration)
	if err != nil {
		ErrorHandlerFunc(w, r, fmt.Errorf("build token: %w", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "Authorization",
		Value:    authToken,
		Expires:  time.Now().Add(s.config.JWT.Expiration),
		HttpOnly: true,
	})

	w.Header().Set("Authorization", authToken)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err = json.NewEncoder(w).Encode(tokenResponse{
		AccessToken: authToken,
		TokenType:   "bearer",
	}); err != nil {
		s.logger.Errorf("encode token response: %s", err)
	}
}

// Middleware authenticates the request, loads the user and stores it
// in the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	f := func(w http.ResponseWriter, r *http.Request) {
		authToken := r.Header.Get("Authorization")
		if authToken == "" {
			if cookie, err := r.Cookie("Authorization"); err == nil {
				authToken = cookie.Value
			}
		}
		if authToken == "" {
			s.authFailure(r, "token", "missing")
			ErrorHandlerFunc(w, r, fmt.Errorf("%w: authorization token missing", errs.ErrInvalidCredentials))
			return
		}

		claims, err := jwt.Parse(authToken, s.config.JWT.SigningKey)
		if err != nil {
			s.authFailure(r, "token", "invalid or expired")
			ErrorHandlerFunc(w, r, fmt.Errorf("%w: %s", errs.ErrInvalidCredentials, err))
			return
		}

		u, err := s.repo.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				s.authFailure(r, "token", "unknown user")
				ErrorHandlerFunc(w, r, fmt.Errorf("%w: unknown user", errs.ErrInvalidCredentials))
				return
			}
			ErrorHandlerFunc(w, r, fmt.Errorf("get user %d: %w", claims.UserID, err))
			return
		}

		if !u.Active {
			s.authFailure(r, "token", "inactive user")
			ErrorHandlerFunc(w, r, fmt.Errorf("%w: inactive user", errs.ErrInvalidCredentials))
			return
		}

		r = r.WithContext(user.NewContext(r.Context(), u))

		next.ServeHTTP(w, r)
	}

	return http.HandlerFunc(f)
}

// authFailure emits a structured event for the observability pipeline.
func (s *Service) authFailure(r *http.Request, kind, reason string) {
	s.logger.With(r.Context(),
		"event", "auth_failure",
		"kind", kind,
		"reason", reason,
		"remote_addr", r.RemoteAddr,
		"ts", time.Now().UTC(),
	).Warn("authentication failed")
}

// ErrorHandlerFunc handles sending of an error in the JSON format,
// writing appropriate status code and handling the failure to marshal that.
func ErrorHandlerFunc(w http.ResponseWriter, _ *http.Request, err error) {
	errJSON := errs.JSON{Error: err.Error()}
	code := http.StatusInternalServerError

	switch {
	// Status Bad Request.
	case errors.Is(err, errs.ErrRequiredBodyParam) ||
		errors.Is(err, errs.ErrInvalidPayload) ||
		errors.Is(err, errs.ErrInvalidContentType) ||
		errors.Is(err, io.EOF):
		code = http.StatusBadRequest

	// Status Unauthorized.
	case errors.Is(err, errs.ErrInvalidCredentials):
		code = http.StatusUnauthorized

	// Status Forbidden.
	case errors.Is(err, errs.ErrForbidden):
		code = http.StatusForbidden

	// Status Not Found.
	case errors.Is(err, errs.ErrNotFound):
		code = http.StatusNotFound

	// Status Conflict.
	case errors.Is(err, errs.ErrDataConflict):
		code = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err = json.NewEncoder(w).Encode(errJSON); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
