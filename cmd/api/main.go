package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"faceguard/internal/attendance"
	"faceguard/internal/capture"
	"faceguard/internal/config"
	"faceguard/internal/enrollment"
	"faceguard/internal/faceclient"
	"faceguard/internal/httpapi"
	"faceguard/internal/journal"
	"faceguard/internal/metrics"
	"faceguard/internal/queue"
	"faceguard/internal/scheduler"
	"faceguard/internal/store"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("kiosk api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}

func run(ctx context.Context, cfg config.App, logger *slog.Logger) error {
	ledger := attendance.NewLedger(cfg.DedupWindow)
	identities := enrollment.NewStore()
	checks := map[string]httpapi.HealthChecker{}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Persist {
		db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN())
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		checks["db"] = db

		attRepo := attendance.NewRepository(db.Client)
		idRepo := enrollment.NewRepository(db.Client)
		if err := restore(ctx, ledger, identities, attRepo, idRepo); err != nil {
			return err
		}
		logger.Info("state restored", "identities", identities.Len(), "records", ledger.Len())

		var q queue.Queue
		if cfg.QueueBackend == "redis" {
			redisClient := store.NewRedis(cfg.RedisAddr)
			defer redisClient.Close()
			checks["redis"] = redisClient
			q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
			logger.Info("journal publishing to redis, run the worker to persist", "key", cfg.QueueKey)
		} else {
			mem := queue.NewInMemory(256)
			q = mem
			applier := journal.NewApplier(attRepo, idRepo, logger)
			g.Go(func() error { return ignoreCanceled(applier.Run(gctx, mem)) })
		}
		detach := journal.NewPublisher(q, 2*time.Second, logger).Attach(ledger, identities)
		defer detach()
	} else {
		logger.Warn("persistence disabled, attendance lives in memory only")
	}

	recognizer, err := newRecognizer(ctx, cfg)
	if err != nil {
		return err
	}

	frames := capture.NewFrameBuffer(cfg.FrameMaxAge)
	m := metrics.New(prometheus.DefaultRegisterer)

	sched := scheduler.New(scheduler.Config{
		Interval:         cfg.ScanInterval,
		Cooldown:         cfg.ScanCooldown,
		Threshold:        cfg.MatchThreshold,
		RecognizeTimeout: cfg.RecognizeTimeout,
		MatchDisplay:     cfg.MatchDisplay,
		MaxImageSize:     cfg.MaxImageSize,
	}, identities, frames, recognizer, ledger,
		scheduler.WithLogger(logger.With("component", "scheduler")),
		scheduler.WithMetrics(m),
		scheduler.WithOnStop(func() { _ = frames.Close() }),
	)

	api := httpapi.New(httpapi.Deps{
		Ledger:          ledger,
		Identities:      identities,
		Frames:          frames,
		Scanner:         sched,
		Metrics:         m,
		Gatherer:        prometheus.DefaultGatherer,
		Checks:          checks,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowOrigins:    cfg.AllowOrigins,
		Logger:          logger.With("component", "http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting server", "addr", srv.Addr, "recognizer", recognizer.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		// Give outstanding requests 10 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return ignoreCanceled(sched.Run(gctx)) })

	return g.Wait()
}

func restore(ctx context.Context, ledger *attendance.Ledger, identities *enrollment.Store, attRepo *attendance.Repository, idRepo *enrollment.Repository) error {
	ids, err := idRepo.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("restore identities: %w", err)
	}
	identities.Restore(ids)

	records, err := attRepo.ListRecords(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("restore attendance: %w", err)
	}
	ledger.Restore(records)
	return nil
}

func newRecognizer(ctx context.Context, cfg config.App) (faceclient.Recognizer, error) {
	switch cfg.Recognizer {
	case config.RecognizerGemini:
		return faceclient.NewGeminiRecognizer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case config.RecognizerOpenAI:
		return faceclient.NewOpenAIRecognizer(cfg.OpenAIToken, option.WithRequestTimeout(cfg.RecognizeTimeout)), nil
	case config.RecognizerHTTP:
		face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
		if !cfg.FaceSkip {
			if err := face.Health(ctx); err != nil {
				slog.Warn("face service not available, scans will fail until it is", "url", cfg.FaceServiceURL, "error", err)
			}
		}
		return face, nil
	default:
		return nil, fmt.Errorf("unknown recognizer %q", cfg.Recognizer)
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
