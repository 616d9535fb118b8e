package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/order"
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

// NewController registers the order routes with additional options.
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
		r.Post(options.BaseURL+"/orders", c.CreateOrder)
		r.Get(options.BaseURL+"/orders", c.GetOrders)
		r.Get(options.BaseURL+"/orders/{orderID}", c.GetOrder)
		r.Put(options.BaseURL+"/orders/{orderID}", c.UpdateOrder)
		r.Delete(options.BaseURL+"/orders/{orderID}", c.DeleteOrder)
	})

	return c
}

// Create new order (POST /api/orders).
func (c *Controller) CreateOrder(w http.ResponseWriter, r *http.Request) {
	u, found := user.FromContext(r.Context())
	if !found {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var params CreateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		ErrorHandlerFunc(w, r, fmt.Errorf("%w: %s", errs.ErrInvalidPayload, err))
		return
	}
	defer r.Body.Close()

	created, err := c.service.Create(r.Context(), u, params)
	if err != nil {
		ErrorHandlerFunc(w, r, err)
		return
	}

	c.writeJSON(w, http.StatusCreated, created)
}

// Get own orders (GET /api/orders?status=&offset=&limit=).
func (c *Controller) GetOrders(w http.ResponseWriter, r *http.Request) {
	u, found := user.FromContext(r.Context())
	if !found {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f := Filter{Status: order.Status(r.URL.Query().Get("status"))}

	p := Page{}
	var err error
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if p.Offset, err = strconv.Atoi(raw); err != nil {
			ErrorHandlerFunc(w, r, &errs.ValidationError{Field: "offset", Reason: "must be an integer"})
			return
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if p.Limit, err = strconv.Atoi(raw); err != nil {
			ErrorHandlerFunc(w, r, &errs.ValidationError{Field: "limit", Reason: "must be an integer"})
			return
		}
	}

	orders, err := c.service.List(r.Context(), u, f, p)
	if err != nil {
		ErrorHandlerFunc(w, r, err)
		return
	}

	c.writeJSON(w, http.StatusOK, orders)
}

// Get single order (GET /api/orders/{orderID}).
func (c *Controller) GetOrder(w http.ResponseWriter, r *http.Request) {
	u, found := user.FromContext(r.Context())
	if !found {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	id, err := orderID(r)
	if err != nil {
		ErrorHandlerFunc(w, r, err)
		return
	}

	o, err := c.service.Get(r.Context(), u, id)
	if err != nil {
		ErrorHandlerFunc(w, r, err)
		return
	}

	c.writeJSON(w, http.StatusOK, o)
}

// Update order (PUT /api/orders/{orderID}).
func (c *Controller) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	u, found := user.FromContext(r.Context())
	if !found {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	id, err := orderID(r)
	if err != nil {
		ErrorHandlerFunc(w, r, err)
		return
	}

	var params UpdateParams
	if err = json.NewDecoder(r.Body).Decode(&params); err != nil {
		ErrorHandlerFunc(w, r, fmt.Errorf("%w: %s", errs.ErrInvalidPayload, err))
		return
	}
	defer r.Body.Close()

	updated, err := c.service.Update(r.Context(), u, id, params)
	if err != nil {
		ErrorHandlerFunc(w, r, err)
		return
	}

	c.writeJSON(w, http.StatusOK, updated)
}

// Delete order (DELETE /api/orders/{orderID}).
func (c *Controller) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	u, found := user.FromContext(r.Context())
	if !found {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	id, err := orderID(r)
	if err != nil {
		ErrorHandlerFunc(w, r, err)
		return
	}

	if err = c.service.Delete(r.Context(), u, id); err != nil {
		ErrorHandlerFunc(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Errorf("encode response: %s", err)
	}
}

func orderID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "orderID"))
	if err != nil {
		return 0, &errs.ValidationError{Field: "orderID", Reason: "must be an integer"}
	}
	return id, nil
}

// ErrorHandlerFunc handles sending of an error in the JSON format,
// writing appropriate status code and handling the failure to marshal that.
func ErrorHandlerFunc(w http.ResponseWriter, _ *http.Request, err error) {
	errJSON := errs.JSON{Error: err.Error()}
	code := http.StatusInternalServerError

	switch {
	// Status Bad Request (400).
	case errors.Is(err, errs.ErrInvalidPayload):
		code = http.StatusBadRequest

	// Status Unauthorized (401).
	case errors.Is(err, errs.ErrInvalidCredentials):
		code = http.StatusUnauthorized

	// Status Forbidden (403).
	case errors.Is(err, errs.ErrForbidden):
		code = http.StatusForbidden

	// Status Not Found (404).
	case errors.Is(err, errs.ErrNotFound):
		code = http.StatusNotFound

	// Status Conflict (409).
	case errors.Is(err, errs.ErrInvalidTransition) ||
		errors.Is(err, errs.ErrDataConflict):
		code = http.StatusConflict

	// Status Service Unavailable (503).
	case errors.Is(err, errs.ErrUnavailable):
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err = json.NewEncoder(w).Encode(errJSON); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
