package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/heatmap-webhooks/config"
	"github.com/marcelsud/heatmap-webhooks/endpoints"
	"github.com/marcelsud/heatmap-webhooks/internal/http/chi"
	"github.com/marcelsud/heatmap-webhooks/metrics"
	"github.com/marcelsud/heatmap-webhooks/ratelimit"
	"github.com/marcelsud/heatmap-webhooks/retry"
	"github.com/marcelsud/heatmap-webhooks/webhook"
	"github.com/marcelsud/heatmap-webhooks/webhook/memory"
	"github.com/marcelsud/heatmap-webhooks/webhook/postgres"
	"github.com/marcelsud/heatmap-webhooks/webhook/redis"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const TIMEOUT = 30 * time.Second

// responseHeadroom keeps handlers alive past one delivery timeout so a dispatch
// waiting on a slow subscriber still gets its answer written
const responseHeadroom = 15 * time.Second

/* main wires the application: config, storage, delivery pipeline, rate limiting
 * and the HTTP surface. Imports only flow downwards: the binary imports the
 * business packages, which import storage.
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	logger := httplog.NewLogger("heatmap-webhooks", httplog.Options{
		JSON:     true,
		LogLevel: cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	repo, queue, err := openStorage(cfg)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.StorageDriver).Msg("opening storage")
		return
	}
	defer repo.Close(ctx)

	var limiter *ratelimit.Limiter
	exporter, err := metrics.NewOTelExporter(metrics.CollectorFunc(func(ctx context.Context) (metrics.Snapshot, error) {
		snap := metrics.Snapshot{Timestamp: time.Now()}
		if limiter != nil {
			snap.TrackedClients = int64(limiter.Len())
		}
		if queue != nil {
			pending, err := queue.Len(ctx)
			if err != nil {
				return snap, err
			}
			snap.PendingRetries = pending
		}
		return snap, nil
	}))
	if err != nil {
		logger.Error().Err(err).Msg("creating metrics exporter")
		return
	}
	defer exporter.Shutdown(context.Background())

	executor := webhook.NewExecutor(repo,
		webhook.WithTimeout(cfg.WebhookTimeout()),
		webhook.WithUserAgent(cfg.WebhookUserAgent),
		webhook.WithLogger(logger),
		webhook.WithRecorder(exporter),
	)

	dispatchOpts := []webhook.DispatcherOption{
		webhook.WithConcurrency(cfg.DispatchConcurrency),
		webhook.WithDispatchLogger(logger),
	}
	if queue != nil {
		dispatchOpts = append(dispatchOpts, webhook.WithFailureHandler(retry.NewScheduler(queue, time.Now)))
		worker := retry.NewWorker(queue, repo, executor,
			retry.WithPollInterval(cfg.RetryPollInterval()),
			retry.WithLogger(logger),
		)
		go worker.Run(ctx)
	}
	service := webhook.NewService(repo, executor, webhook.NewDispatcher(repo, executor, dispatchOpts...))

	classes := endpoints.Defaults()
	if cfg.EndpointsFile != "" {
		classes = endpoints.NewLoader()
		if err := classes.Load(cfg.EndpointsFile); err != nil {
			logger.Error().Err(err).Str("file", cfg.EndpointsFile).Msg("loading endpoint classes")
			return
		}
	}
	limiter = ratelimit.New(classes.Ceiling,
		ratelimit.WithWindow(classes.Window()),
		ratelimit.WithRecorder(exporter),
		ratelimit.WithLogger(logger),
	)
	go limiter.RunSweeper(ctx, cfg.RateLimitSweepInterval())

	trusted, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		logger.Error().Err(err).Msg("parsing trusted proxies")
		return
	}

	handlerTimeout, writeTimeout := requestTimeouts(cfg.WebhookTimeout())
	r := chi.Handlers(ctx, service, chi.Options{
		Logger:         logger,
		Limiter:        limiter,
		Classes:        classes,
		TrustedProxies: trusted,
		Metrics:        exporter.ServeHTTP(),
		Timeout:        handlerTimeout,
	})
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(r, "heatmap-webhooks"),
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown, logger)
	logger.Info().Str("port", cfg.Port).Str("driver", cfg.StorageDriver).Msg("listening")
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("serving")
		return
	}
	err = <-errShutdown
	if err != nil {
		logger.Error().Err(err).Msg("shutting down")
		return
	}
}

// requestTimeouts derives the router and server write timeouts from the delivery timeout
func requestTimeouts(delivery time.Duration) (handler, write time.Duration) {
	handler = delivery + responseHeadroom
	return handler, handler + responseHeadroom
}

// openStorage returns the repository for the configured driver and, when retries are on, its queue
func openStorage(cfg *config.Config) (webhook.Repository, retry.Queue, error) {
	var queue retry.Queue
	if cfg.RetryEnabled {
		queue = retry.NewMemoryQueue()
	}

	switch cfg.StorageDriver {
	case config.DriverPostgres:
		repo, err := postgres.NewRepositoryWithPoolConfig(cfg.PostgresURL,
			cfg.PostgresMaxOpenConns, cfg.PostgresMaxIdleConns, cfg.PostgresConnMaxLifetime)
		if err != nil {
			return nil, nil, err
		}
		if _, err := postgres.Migrate(repo.DB, postgres.Up, 0); err != nil {
			repo.Close(context.Background())
			return nil, nil, err
		}
		return repo, queue, nil
	case config.DriverRedis:
		repo, err := redis.NewRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DeliveryLogCap)
		if err != nil {
			return nil, nil, err
		}
		if cfg.RetryEnabled {
			queue = redis.NewRetryQueue(repo.GetClient())
		}
		return repo, queue, nil
	default:
		return memory.NewRepository(cfg.DeliveryLogCap), queue, nil
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error, logger zerolog.Logger) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		logger.Info().Msg("shutting down server")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("forcing closing the server: %w", err)
	}
}
