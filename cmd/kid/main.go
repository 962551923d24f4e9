package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/kid-livraison/parcel/cmd/kid/cli"
	"github.com/kid-livraison/parcel/internal/app"
	"github.com/kid-livraison/parcel/internal/billing"
	"github.com/kid-livraison/parcel/internal/dispatch"
	"github.com/kid-livraison/parcel/internal/fleet"
	"github.com/kid-livraison/parcel/internal/notify"
	"github.com/kid-livraison/parcel/internal/numbering"
	"github.com/kid-livraison/parcel/internal/observability"
	"github.com/kid-livraison/parcel/internal/parcel"
	"github.com/kid-livraison/parcel/internal/parties"
	"github.com/kid-livraison/parcel/internal/platform/cache"
	"github.com/kid-livraison/parcel/internal/platform/db"
	"github.com/kid-livraison/parcel/internal/tariff"
	"github.com/kid-livraison/parcel/internal/zones"
	"github.com/kid-livraison/parcel/jobs"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "jobs":
		err = runJobs(ctx, cfg, args)
	default:
		err = fmt.Errorf("unknown command %q (want serve or jobs)", cmd)
	}
	if err != nil {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return fmt.Errorf("init job client: %w", err)
	}
	defer func() { _ = jobClient.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	metrics := observability.NewMetrics()
	numbers := numbering.New()
	notifier := notify.NewDispatcher(jobClient, logger, metrics)

	tariffRepo := tariff.NewRepository(pool)
	calculator := tariff.NewCalculator(tariffRepo, logger,
		tariff.WithDefaultBase(cfg.DefaultBase()),
		tariff.WithRecorder(metrics),
	)
	tariffService := tariff.NewService(tariffRepo, calculator)
	billingService := billing.NewService(billing.NewRepository(pool))

	senders := parties.NewService(parties.NewRepository(pool, parties.RoleSender), parties.RoleSender)
	recipients := parties.NewService(parties.NewRepository(pool, parties.RoleRecipient), parties.RoleRecipient)

	parcelService := parcel.NewService(parcel.Deps{
		Store:      parcel.NewRepository(pool),
		Senders:    senders,
		Recipients: recipients,
		Numbers:    numbers,
		Invoices:   billing.NewBuilder(numbers, calculator),
		Notifier:   notifier,
		Metrics:    metrics,
		Logger:     logger,
	})
	dispatchService := dispatch.NewService(dispatch.Deps{
		Store:      dispatch.NewRepository(pool),
		Recipients: recipients,
		Notifier:   notifier,
		Metrics:    metrics,
		Logger:     logger,
	})
	fleetService := fleet.NewService(fleet.NewRepository(pool))
	notifyService := notify.NewService(notify.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Metrics:             metrics,
		PackageHandler:      parcel.NewHandler(logger, parcelService),
		TariffHandler:       tariff.NewHandler(logger, tariffService),
		InvoiceHandler:      billing.NewHandler(logger, billingService),
		AssignmentHandler:   dispatch.NewHandler(logger, dispatchService),
		SenderHandler:       parties.NewHandler(logger, senders),
		RecipientHandler:    parties.NewHandler(logger, recipients),
		FleetHandler:        fleet.NewHandler(logger, fleetService),
		ZoneHandler:         zones.NewHandler(logger, zones.NewService(zones.NewRepository(pool))),
		NotificationHandler: notify.NewHandler(logger, notifyService),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Readiness:           []app.Check{app.PostgresCheck(pool), app.RedisCheck(redisClient)},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)
	minAge := fs.Duration("min-age", 2*time.Minute, "redispatch rows older than this")
	batch := fs.Int("batch", 200, "maximum rows per redispatch sweep")
	id := fs.Int64("id", 0, "notification id to resend")
	redisAddr := fs.String("redis", cfg.RedisAddr, "redis address")
	if len(args) == 0 {
		return errors.New("usage: kid jobs stats|redispatch|resend [flags]")
	}
	action := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	c := cli.NewJobsCLI(*redisAddr)
	defer func() { _ = c.Close() }()

	switch action {
	case "stats":
		stats, err := c.InspectQueues()
		if err != nil {
			return err
		}
		for _, s := range stats {
			fmt.Printf("%-14s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
		return nil
	case "redispatch":
		info, err := c.Redispatch(ctx, *minAge, *batch)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s (%s)\n", info.ID, info.Queue)
		return nil
	case "resend":
		info, err := c.Resend(ctx, *id)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s (%s)\n", info.ID, info.Queue)
		return nil
	default:
		return fmt.Errorf("unknown jobs action %q", action)
	}
}
