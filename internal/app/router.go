package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kid-livraison/parcel/internal/billing"
	"github.com/kid-livraison/parcel/internal/dispatch"
	"github.com/kid-livraison/parcel/internal/fleet"
	"github.com/kid-livraison/parcel/internal/notify"
	"github.com/kid-livraison/parcel/internal/observability"
	"github.com/kid-livraison/parcel/internal/parcel"
	"github.com/kid-livraison/parcel/internal/parties"
	"github.com/kid-livraison/parcel/internal/platform/httpx"
	"github.com/kid-livraison/parcel/internal/tariff"
	"github.com/kid-livraison/parcel/internal/zones"
	"github.com/kid-livraison/parcel/jobs"
)

const readinessTimeout = 2 * time.Second

// Check is one readiness dependency probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// PostgresCheck probes the connection pool.
func PostgresCheck(pool *pgxpool.Pool) Check {
	return Check{Name: "postgres", Ping: pool.Ping}
}

// RedisCheck probes the Redis server backing the queue.
func RedisCheck(client redis.UniversalClient) Check {
	return Check{Name: "redis", Ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	PackageHandler      *parcel.Handler
	TariffHandler       *tariff.Handler
	InvoiceHandler      *billing.Handler
	AssignmentHandler   *dispatch.Handler
	SenderHandler       *parties.Handler
	RecipientHandler    *parties.Handler
	FleetHandler        *fleet.Handler
	ZoneHandler         *zones.Handler
	NotificationHandler *notify.Handler
	JobHandler          *jobs.Handler

	Readiness []Check
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(logger, params.Readiness))
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	if params.PackageHandler != nil {
		params.PackageHandler.MountRoutes(r)
	}
	if params.TariffHandler != nil {
		params.TariffHandler.MountRoutes(r)
	}
	if params.InvoiceHandler != nil {
		params.InvoiceHandler.MountRoutes(r)
	}
	if params.AssignmentHandler != nil {
		params.AssignmentHandler.MountRoutes(r)
	}
	if params.SenderHandler != nil {
		r.Route("/senders", params.SenderHandler.MountRoutes)
	}
	if params.RecipientHandler != nil {
		r.Route("/recipients", params.RecipientHandler.MountRoutes)
	}
	if params.FleetHandler != nil {
		params.FleetHandler.MountRoutes(r)
	}
	if params.ZoneHandler != nil {
		r.Route("/zones", params.ZoneHandler.MountRoutes)
	}
	if params.NotificationHandler != nil {
		params.NotificationHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})
	return r
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// readinessHandler pings every dependency concurrently and answers 503 when
// any of them fails.
func readinessHandler(logger *slog.Logger, checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		results := make([]error, len(checks))
		var g errgroup.Group
		for i, c := range checks {
			g.Go(func() error {
				if err := c.Ping(ctx); err != nil {
					results[i] = fmt.Errorf("%s: %w", c.Name, err)
				}
				return nil
			})
		}
		_ = g.Wait()

		out := readiness{Status: "ok", Checks: make(map[string]string, len(checks))}
		for i, c := range checks {
			if results[i] != nil {
				out.Status = "unavailable"
				out.Checks[c.Name] = "down"
				logger.Warn("readiness check failed", slog.Any("error", results[i]))
				continue
			}
			out.Checks[c.Name] = "up"
		}
		status := http.StatusOK
		if out.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httpx.JSON(w, status, out)
	}
}
