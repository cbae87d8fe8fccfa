package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/apresai/newsroom/internal/api"
	"github.com/apresai/newsroom/internal/cluster"
	"github.com/apresai/newsroom/internal/config"
	"github.com/apresai/newsroom/internal/llm"
	"github.com/apresai/newsroom/internal/observability"
	"github.com/apresai/newsroom/internal/orchestrator"
	"github.com/apresai/newsroom/internal/scheduler"
	"github.com/apresai/newsroom/internal/search"
	"github.com/apresai/newsroom/internal/store"
	"github.com/apresai/newsroom/internal/tts"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the episode scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.InitLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// baseCtx is cancelled on SIGINT/SIGTERM; workers derive from it.
	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracesEnable {
		tp, err := observability.InitTracer(baseCtx, "newsroom", Version)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tp.Shutdown(shutdownCtx)
		}()
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return err
	}

	completer, err := llm.NewClient(cfg.LLMModel)
	if err != nil {
		return err
	}
	embedder, err := cluster.NewGenaiEmbedder(baseCtx, cfg.EmbeddingModel)
	if err != nil {
		return err
	}

	factory := &orchestrator.ProductionFactory{
		Store:       st,
		Completer:   completer,
		Embedder:    embedder,
		Search:      search.NewDuckDuckGoProvider(),
		TTSProvider: cfg.TTSProvider,
		TTSConfig:   tts.ProviderConfig{Speed: cfg.TTSSpeed, Pitch: cfg.TTSPitch},
		OutputRoot:  cfg.OutputRoot,
		Log:         logger,
	}
	orch := orchestrator.New(st, factory, cfg.MaxJobs, logger, baseCtx)

	if err := orch.RecoverOrphans(baseCtx); err != nil {
		return err
	}

	sched := scheduler.New(st, orch, logger)
	if err := sched.Reconcile(baseCtx); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(st, orch, cfg.BaseURL, logger).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-baseCtx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	orch.Shutdown()
	return nil
}
