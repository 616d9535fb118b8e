package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) PingContext(context.Context) error {
	return f.err
}

func get(t *testing.T, router chi.Router, path string) (*httptest.ResponseRecorder, string) {
	t.Helper()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))

	return w, body["status"]
}

func TestController_Live(t *testing.T) {
	router := chi.NewRouter()
	NewController(&fakePinger{}, logger.NewNop(), router)

	w, status := get(t, router, "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", status)
}

func TestController_Ready(t *testing.T) {
	router := chi.NewRouter()
	NewController(&fakePinger{}, logger.NewNop(), router)

	w, status := get(t, router, "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", status)
}

func TestController_Ready_StoreDown(t *testing.T) {
	router := chi.NewRouter()
	NewController(&fakePinger{err: assert.AnError}, logger.NewNop(), router)

	w, status := get(t, router, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "store unreachable", status)
}
