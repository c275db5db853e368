// Command lumed runs the Lume conversation daemon: it wires the message
// classifier, the task, calendar, onboarding and learning services, and the
// orchestration graph behind an HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/agents"
	"github.com/lumehq/lume/internal/calendar"
	"github.com/lumehq/lume/internal/checkpoint"
	"github.com/lumehq/lume/internal/config"
	"github.com/lumehq/lume/internal/httpapi"
	"github.com/lumehq/lume/internal/insights"
	"github.com/lumehq/lume/internal/logging"
	"github.com/lumehq/lume/internal/nlu"
	"github.com/lumehq/lume/internal/onboarding"
	"github.com/lumehq/lume/internal/orchestrator"
	"github.com/lumehq/lume/internal/tasks"
	"github.com/lumehq/lume/internal/telemetry"
)

// Set via ldflags at release build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/lume/config.yaml)")
	flag.Parse()

	if flag.Arg(0) == "version" {
		fmt.Printf("lumed %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received %s, shutting down\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "lumed: %v\n", err)
		os.Exit(1)
	}
}

// dependencies holds everything run() owns and must release on exit.
type dependencies struct {
	natsConn *nats.Conn // nil when the in-memory store is active
	store    checkpoint.Store
	logger   *zap.Logger
}

func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.logger != nil {
		_ = logging.Sync(d.logger)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	logger.Info("starting lumed",
		zap.String("version", version),
		zap.String("commit", commit))

	provider, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		Protocol:       cfg.Observability.OTLPProtocol,
		SampleRate:     cfg.Observability.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	svc, err := initService(cfg, deps)
	if err != nil {
		return err
	}

	srv, err := httpapi.NewServer(svc, logger, &httpapi.Config{Port: cfg.Server.Port})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	logger.Info("lumed stopped")
	return nil
}

// initDependencies connects the checkpoint backend. NATS failures are fatal
// when NATS is enabled; there is no silent fallback to the in-memory store.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{logger: logger}

	if !cfg.NATS.Enabled {
		logger.Warn("nats disabled, thread state will not survive restarts")
		deps.store = checkpoint.NewMemoryStore()
		return deps, nil
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.NATS.URL, err)
	}
	deps.natsConn = nc

	store, err := checkpoint.NewNATSStore(&checkpoint.NATSConfig{Bucket: cfg.NATS.Bucket}, nc, logger)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating checkpoint store: %w", err)
	}
	deps.store = store

	logger.Info("connected checkpoint store",
		zap.String("url", cfg.NATS.URL),
		zap.String("bucket", cfg.NATS.Bucket))
	return deps, nil
}

// initService builds the domain services, the node graph, and the turn
// service on top of them.
func initService(cfg *config.Config, deps *dependencies) (*orchestrator.Service, error) {
	logger := deps.logger

	classifier, err := initClassifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	insightSvc, err := insights.NewService(&insights.Config{
		Path:       cfg.Insights.Path,
		Collection: cfg.Insights.Collection,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating insights service: %w", err)
	}

	taskSvc := tasks.NewService(logger)
	calSvc := calendar.NewService(logger)
	onboardSvc := onboarding.NewService(logger)

	orch, err := orchestrator.New(&orchestrator.Config{
		MaxHops: cfg.Orchestrator.MaxHops,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	err = agents.RegisterAll(orch, agents.Nodes{
		Router:     agents.NewRouter(classifier, logger),
		Task:       agents.NewTaskHandler(taskSvc, insightSvc, logger),
		Calendar:   agents.NewCalendarHandler(calSvc, insightSvc, logger),
		Onboarding: agents.NewOnboardingHandler(onboardSvc, logger),
		Learning:   agents.NewLearningHandler(insightSvc, logger),
		Human:      agents.NewHumanHandler(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("registering nodes: %w", err)
	}

	svc, err := orchestrator.NewService(&orchestrator.ServiceConfig{
		HistoryWindow: cfg.Orchestrator.HistoryWindow,
	}, orch, deps.store, logger)
	if err != nil {
		return nil, fmt.Errorf("creating turn service: %w", err)
	}
	return svc, nil
}

func initClassifier(cfg *config.Config, logger *zap.Logger) (nlu.Classifier, error) {
	switch cfg.NLU.Provider {
	case "openai":
		classifier, err := nlu.NewOpenAIClassifier(&nlu.Config{
			BaseURL:           cfg.NLU.BaseURL,
			Model:             cfg.NLU.Model,
			APIKey:            cfg.NLU.APIKey,
			Timeout:           cfg.NLU.Timeout,
			RequestsPerSecond: cfg.NLU.RequestsPerSecond,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating openai classifier: %w", err)
		}
		return classifier, nil
	default:
		logger.Info("using rule-based classifier")
		return nlu.NewRuleClassifier(), nil
	}
}
