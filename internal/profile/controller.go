package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/user"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type MiddlewareFunc func(http.Handler) http.Handler

type ChiServerOptions struct {
	BaseRouter  chi.Router
	BaseURL     string
	Middlewares []MiddlewareFunc
}

type Controller struct {
	service *Service
	logger  logger.Logger
}

// NewController registers the user profile routes with additional options.
func NewController(service *Service, logger logger.Logger, options ChiServerOptions) *Controller {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}

	c := &Controller{
		service: service,
		logger:  logger,
	}

	r.Group(func(r chi.Router) {
		for _, middleware := range options.Middlewares {
			r.Use(middleware)
		}
		r.Get(options.BaseURL+"/users/me", c.GetMe)
		r.Patch(options.BaseURL+"/users/me", c.UpdateMe)
		r.Get(options.BaseURL+"/users", c.ListUsers)
		r.Patch(options.BaseURL+"/users/{userID}/deactivate", c.DeactivateUser)
	})

	return c
}

// Get current user (GET /api/users/me).
func (c *Controller) GetMe(w http.ResponseWriter, r *http.Request) {
	u, found := user.FromContext(r.Context())
	if !found {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	c.writeJSON(w, http.StatusOK, u)
}

// Update current user (PATCH /api/users/me).
func (c *Controller) UpdateMe(w http.ResponseWriter, r *http.Request) {
	u, found := user.FromContext(r.Context())
	if !found {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var params UpdateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		ErrorHandlerFunc(w, r, fmt.Errorf("%w: %s", errs.ErrInvalidPayload, err))
		return
	}
	defer r.Body.Close()

	updated, err := c.service.UpdateMe(r.Context(), u, params)
	if err != nil {
		ErrorHandlerFunc(w, r, err)
		return
	}

	c.writeJSON(w, http.StatusOK, updated)
}

// List users (GET /api/users?offset=&limit=). Elevated only.
func (c *Controller) ListUsers(w http.ResponseWriter, r *http.Request) {
	u, found := user.FromContext(r.Context())
	if !found {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	users, err := c.service.List(r.Context(), u, offset, limit)
	if err != nil {
		ErrorHandlerFunc(w, r, err)
		return
	}

	c.writeJSON(w, http.StatusOK, users)
}

// Deactivate user (PATCH /api/users/{userID}/deactivate). Elevated only.
func (c *Controller) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	u, found := user.FromContext(r.Context())
	if !found {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		ErrorHandlerFunc(w, r, &errs.ValidationError{Field: "userID", Reason: "must be an integer"})
		return
	}

	deactivated, err := c.service.Deactivate(r.Context(), u, userID)
	if err != nil {
		ErrorHandlerFunc(w, r, err)
		return
	}

	c.writeJSON(w, http.StatusOK, deactivated)
}

func (c *Controller) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Errorf("encode response: %s", err)
	}
}

// ErrorHandlerFunc handles sending of an error in the JSON format,
// writing appropriate status code and handling the failure to marshal that.
func ErrorHandlerFunc(w http.ResponseWriter, _ *http.Request, err error) {
	errJSON := errs.JSON{Error: err.Error()}
	code := http.StatusInternalServerError

	switch {
	case errors.Is(err, errs.ErrInvalidPayload):
		code = http.StatusBadRequest
	case errors.Is(err, errs.ErrInvalidCredentials):
		code = http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, errs.ErrDataConflict):
		code = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err = json.NewEncoder(w).Encode(errJSON); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
