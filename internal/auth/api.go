package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"

	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/go-chi/chi/v5"
)

// RegisterParams defines parameters for Register.
type RegisterParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginParams defines parameters for Login.
type LoginParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Registration (POST /api/auth/register)
	Register(w http.ResponseWriter, r *http.Request, params RegisterParams)
	// Authentication (POST /api/auth/login)
	Login(w http.ResponseWriter, r *http.Request, params LoginParams)
}

// ServerInterfaceWrapper converts payloads to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
	HandlerMiddlewares []MiddlewareFunc
}

type MiddlewareFunc func(http.Handler) http.Handler

// decodeJSONBody unmarshals the request body into params, translating
// malformed payloads into client-facing errors.
func decodeJSONBody(r *http.Request, params interface{}) error {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: %s", errs.ErrInvalidContentType, ct)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	if len(data) == 0 {
		return fmt.Errorf("%w: empty body", errs.ErrInvalidPayload)
	}

	if err = json.Unmarshal(data, params); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: %s must be of type %s, got %s",
				errs.ErrInvalidPayload, typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return fmt.Errorf("%w: %s", errs.ErrInvalidPayload, err)
	}

	return nil
}

// Register operation middleware.
func (siw *ServerInterfaceWrapper) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parameter object where we will unmarshal all parameters from the body.
	var params RegisterParams

	if err := decodeJSONBody(r, &params); err != nil {
		siw.ErrorHandlerFunc(w, r, err)
		return
	}

	// ------------- Required JSON body parameter "email" -------------

	if params.Email == "" {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: email", errs.ErrRequiredBodyParam))
		return
	}
	if _, err := mail.ParseAddress(params.Email); err != nil {
		siw.ErrorHandlerFunc(w, r,
			&errs.ValidationError{Field: "email", Reason: "must be a valid email address"})
		return
	}

	// ------------- Required JSON body parameter "password" ----------

	if params.Password == "" {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: password", errs.ErrRequiredBodyParam))
		return
	}
	if len(params.Password) < 8 {
		siw.ErrorHandlerFunc(w, r,
			&errs.ValidationError{Field: "password", Reason: "must be at least 8 characters long"})
		return
	}
	// bcrypt operates on at most 72 bytes.
	if len(params.Password) > 72 {
		siw.ErrorHandlerFunc(w, r,
			&errs.ValidationError{Field: "password", Reason: "must not exceed 72 characters in length"})
		return
	}

	// ------------- Required JSON body parameter "name" --------------

	if params.Name == "" {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: name", errs.ErrRequiredBodyParam))
		return
	}
	if len(params.Name) < 2 || len(params.Name) > 120 {
		siw.ErrorHandlerFunc(w, r,
			&errs.ValidationError{Field: "name", Reason: "must be between 2 and 120 characters long"})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.Register(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r.WithContext(ctx))
}

// Login operation middleware.
func (siw *ServerInterfaceWrapper) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var params LoginParams

	if err := decodeJSONBody(r, &params); err != nil {
		siw.ErrorHandlerFunc(w, r, err)
		return
	}

	// ------------- Required JSON body parameter "email" -------------

	if params.Email == "" {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: email", errs.ErrRequiredBodyParam))
		return
	}

	// ------------- Required JSON body parameter "password" ----------

	if params.Password == "" {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: password", errs.ErrRequiredBodyParam))
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.Login(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r.WithContext(ctx))
}

type ChiServerOptions struct {
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
	BaseRouter       chi.Router
	BaseURL          string
	Middlewares      []MiddlewareFunc
}

// HandlerWithOptions creates http.Handler with additional options.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/register", wrapper.Register)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/login", wrapper.Login)
	})

	return r
}
