package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fundamentallm-backend/internal/events"
	"fundamentallm-backend/internal/models"
	"fundamentallm-backend/internal/store"
	"fundamentallm-backend/pkg/httputil"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports whether the service and its dependencies are reachable.
type HealthHandler struct {
	store  store.Store
	events events.Publisher
}

func NewHealthHandler(st store.Store, pub events.Publisher) *HealthHandler {
	if pub == nil {
		pub = events.Noop{}
	}
	return &HealthHandler{store: st, events: pub}
}

// HandleHealth answers 200 when the database is reachable and 503 otherwise.
// The event bus is reported but does not affect the status.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var mu sync.Mutex
	checks := map[string]string{}
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("check", name).Msg("[HealthHandler] check failed")
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}

	var g errgroup.Group
	g.Go(func() error {
		record("database", h.store.Ping(ctx))
		return nil
	})
	g.Go(func() error {
		record("events", h.events.Check(ctx))
		return nil
	})
	_ = g.Wait()

	resp := models.HealthResponse{Status: "ok", Database: checks["database"] == "ok", Checks: checks}
	if !resp.Database {
		resp.Status = "degraded"
		httputil.RespondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
