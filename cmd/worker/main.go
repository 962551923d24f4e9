package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kid-livraison/parcel/internal/app"
	jobmetrics "github.com/kid-livraison/parcel/internal/jobs"
	"github.com/kid-livraison/parcel/internal/notify"
	"github.com/kid-livraison/parcel/internal/platform/db"
	"github.com/kid-livraison/parcel/jobs"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	metrics := jobmetrics.NewMetrics(nil)
	store := notify.NewRepository(pool)
	sender := newSender(cfg, logger)

	sendJob := jobs.NewNotificationSendJob(store, sender, logger, metrics)
	redispatchJob := jobs.NewNotificationRedispatchJob(store, client, logger, metrics)

	redispatchTask, err := jobs.NewNotificationRedispatchTask(2*time.Minute, 200)
	if err != nil {
		logger.Error("build redispatch task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotificationSend, Handler: sendJob.Handle},
			{Type: jobs.TaskNotificationRedispatch, Handler: redispatchJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.RedispatchSpec, Task: redispatchTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.WorkerMetricsAddr != "" {
		server := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// newSender routes EMAIL through SMTP when configured. Every other channel,
// and EMAIL under the log sender, is written to the log.
func newSender(cfg *app.Config, logger *slog.Logger) notify.Sender {
	logSender := notify.NewLogSender(logger)
	multi := notify.NewMultiSender(logSender)
	if cfg.NotifySender == app.SenderSMTP {
		multi.Route(notify.ChannelEmail, notify.NewSMTPSender(notify.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}))
	}
	return multi
}
