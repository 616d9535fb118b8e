package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Controller struct {
	db     Pinger
	logger logger.Logger
}

// NewController registers the liveness and readiness probes.
func NewController(db Pinger, logger logger.Logger, r chi.Router) *Controller {
	c := &Controller{db: db, logger: logger}

	r.Get("/health/live", c.Live)
	r.Get("/health/ready", c.Ready)

	return c
}

// Liveness probe (GET /health/live). Answers as long as the process
// serves requests.
func (c *Controller) Live(w http.ResponseWriter, _ *http.Request) {
	c.writeStatus(w, http.StatusOK, "ok")
}

// Readiness probe (GET /health/ready). Pings the store, so a lost
// database takes the instance out of rotation.
func (c *Controller) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		c.logger.Errorf("readiness ping: %s", err)
		c.writeStatus(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}

	c.writeStatus(w, http.StatusOK, "ok")
}

func (c *Controller) writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": status}); err != nil {
		c.logger.Errorf("encode health response: %s", err)
	}
}
