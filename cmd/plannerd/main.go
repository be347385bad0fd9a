// Plannerd is the conversational planning daemon.
//
// It exposes the planning workflow over HTTP: user turns enter the
// orchestrator, confirmation suspensions survive restarts through SQLite
// run snapshots, and plan feedback is recorded through the feedback
// state machine.
//
// Configuration is loaded from a YAML file plus environment overrides
// (SERVER_PORT, PLANNER_MAX_ITERATIONS, ...). See internal/config for
// details.
//
// Usage:
//
//	# Start with defaults (sqlite at ./plannerd.db, port 9080)
//	plannerd
//
//	# Start with a config file
//	plannerd -config /etc/plannerd/config.yaml
//
//	# Configure via environment
//	SERVER_PORT=9090 plannerd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/config"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/feedback"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/generate"
	httpapi "github.com/MoeMoeen/smart-personal-planner-sub001/internal/http"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/intent"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/ledger"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/llm"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/logging"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/orchestrator"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/services"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/store"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  plannerd           Start the planner daemon\n")
			fmt.Fprintf(os.Stderr, "  plannerd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("plannerd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the planner daemon and blocks until the context is
// cancelled. It wires, in order: configuration, logger, SQLite store,
// generator and classifier backends, feedback service, orchestrator,
// and the HTTP server, then shuts them down gracefully.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Fields: map[string]string{"service": "plannerd"},
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting plannerd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path),
		zap.Bool("llm_enabled", cfg.LLM.Enabled),
	)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		_ = st.Close()
	}()

	reg, err := initServices(cfg, st, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}

	srv, err := httpapi.NewServer(reg.Orchestrator(), st, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	mux := srv.Handler().(*echo.Echo)
	mux.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// initServices builds the business services and the registry over them.
func initServices(cfg *config.Config, st *store.Store, logger *zap.Logger) (services.Registry, error) {
	led := ledger.New(cfg.Planner.MaxMessagesPerUser)

	var (
		chat       llm.Client
		classifier intent.Classifier
		generator  generate.Generator
	)
	if cfg.LLM.Enabled {
		var err error
		chat, err = llm.NewClient(llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			APIKey:  cfg.LLM.APIKey.Value(),
		})
		if err != nil {
			return nil, fmt.Errorf("create llm client: %w", err)
		}
		classifier = intent.NewLLMClassifier(chat, logger)
		generator, err = generate.NewLLMGenerator(chat, logger)
		if err != nil {
			return nil, fmt.Errorf("create generator: %w", err)
		}
	} else {
		logger.Warn("llm backend disabled, using static classifier and generator")
		classifier = &intent.StaticClassifier{Fallback: intent.CreateNewPlan}
		generator = &generate.StaticGenerator{}
	}

	fb, err := feedback.NewService(st, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("create feedback service: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Store:      st,
		Ledger:     led,
		Classifier: classifier,
		Generator:  generator,
		Feedback:   fb,
		Chat:       chat,
		Logger:     logger,
		Planner:    cfg.Planner,
		Features:   cfg.Features,
	})
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	return services.NewRegistry(services.Options{
		Store:        st,
		Ledger:       led,
		Feedback:     fb,
		Generator:    generator,
		Classifier:   classifier,
		Orchestrator: orch,
	}), nil
}
