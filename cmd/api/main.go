package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Avaneeshakrishna/cliniccall-AI/cmd/mainconfig"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/api/router"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/app/bootstrap"
	appconfig "github.com/Avaneeshakrishna/cliniccall-AI/internal/config"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/conversation"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/nlu"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/notify"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/observability/metrics"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/webchat"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting cliniccall API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Create HTTP server. WriteTimeout stays off so chat websockets can idle.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler  http.Handler
	notifier *notify.BookingNotifier
	closers  []func()
}

// Close waits for queued confirmations, then releases connections.
func (a *app) Close() {
	if a.notifier != nil {
		a.notifier.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setupMetrics() (http.Handler, *metrics.DialogMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewDialogMetrics(reg)
}

func loadAWS(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *aws.Config {
	if !bootstrap.NeedsAWS(cfg) {
		return nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Warn("failed to load AWS config; AWS collaborators disabled", "error", err)
		return nil
	}
	return &awsCfg
}

func healthCheck(redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if redisClient == nil {
			return nil
		}
		return redisClient.Ping(ctx).Err()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	a := &app{}
	metricsHandler, dialogMetrics := setupMetrics()
	awsCfg := loadAWS(ctx, cfg, logger)
	loc := cfg.Location()

	repo, closeRepo, err := bootstrap.BuildRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRepo)

	calendar := scheduling.NewCalendar(repo, loc)
	if cfg.SeedOnStart {
		if err := calendar.Seed(ctx, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("seed slots: %w", err)
		}
	}
	booker := scheduling.NewBooker(repo, logger)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}
	store := bootstrap.BuildSessionStore(redisClient, awsCfg, cfg, logger)

	classifier, err := bootstrap.BuildClassifier(ctx, cfg, awsCfg, dialogMetrics, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	desk := nlu.NewUrgentDesk(classifier, repo, logger).
		WithPublisher(bootstrap.BuildEscalationPublisher(cfg, awsCfg))

	a.notifier = notify.NewBookingNotifier(bootstrap.BuildEmailSender(cfg, awsCfg, logger), loc, cfg.NotifyTimeout, logger)

	opts := []conversation.EngineOption{
		conversation.WithClassifier(classifier),
		conversation.WithUrgentRecorder(desk),
		conversation.WithNotifier(a.notifier),
		conversation.WithMetrics(dialogMetrics),
	}
	directory, err := bootstrap.BuildDirectory(cfg, dialogMetrics, logger)
	if err != nil {
		logger.Warn("provider directory disabled", "error", err)
	} else if directory != nil {
		opts = append(opts, conversation.WithProviderSearcher(directory))
	}

	var history conversation.HistoryReader
	transcript, closeTranscript, err := bootstrap.BuildTranscriptLog(cfg, logger)
	if err != nil {
		logger.Warn("conversation history disabled", "error", err)
	} else {
		a.closers = append(a.closers, closeTranscript)
		if transcript != nil {
			opts = append(opts, conversation.WithTranscript(transcript))
			history = transcript
		}
	}

	engine := conversation.NewEngine(store, repo, booker, calendar, logger, opts...)

	a.handler = router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        conversation.NewHandler(engine, history, logger),
		SchedulingHandler:  scheduling.NewHandler(repo, booker, calendar, a.notifier, logger),
		TriageHandler:      nlu.NewTriageHandler(desk, logger),
		WebchatHandler:     webchat.NewHandler(engine, history, logger),
		MetricsHandler:     metricsHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		VoiceAPIToken:      cfg.VoiceAPIToken,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSec:    cfg.RateLimitPerSec,
		RateLimitBurst:     cfg.RateLimitBurst,
		HealthCheck:        healthCheck(redisClient),
	})
	return a, nil
}
