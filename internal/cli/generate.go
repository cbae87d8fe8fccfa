package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/apresai/newsroom/internal/cluster"
	"github.com/apresai/newsroom/internal/config"
	"github.com/apresai/newsroom/internal/llm"
	"github.com/apresai/newsroom/internal/observability"
	"github.com/apresai/newsroom/internal/orchestrator"
	"github.com/apresai/newsroom/internal/progress"
	"github.com/apresai/newsroom/internal/search"
	"github.com/apresai/newsroom/internal/store"
	"github.com/apresai/newsroom/internal/tts"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one episode now and wait for it to finish",
	RunE:  runGenerate,
}

var (
	flagProfile  string
	flagTopics   int
	flagDuration int
	flagDeep     bool
	flagNoAudio  bool
	flagTTS      string
	flagVerbose  bool
)

func init() {
	generateCmd.Flags().StringVarP(&flagProfile, "profile", "p", "", "Profile ID to generate for (required)")
	generateCmd.Flags().IntVarP(&flagTopics, "topics", "t", 0, "Topic count (default: profile setting)")
	generateCmd.Flags().IntVarP(&flagDuration, "duration", "d", 0, "Target duration in minutes (default: profile setting)")
	generateCmd.Flags().BoolVar(&flagDeep, "deep-research", false, "Research every topic at deep depth")
	generateCmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "Stop after the script is written")
	generateCmd.Flags().StringVar(&flagTTS, "tts", "", "TTS provider override: google or cloud-tts-alt")
	generateCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log instead of rendering a progress bar")
	generateCmd.MarkFlagRequired("profile")
}

// pollInterval is how often the one-shot command re-reads job state.
const pollInterval = 500 * time.Millisecond

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.InitLogger(cfg.LogLevel)
	if !flagVerbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	slog.SetDefault(logger)

	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	orch := orchestrator.New(st, factory, 1, logger, baseCtx)

	opts := store.Options{
		TopicCount:      flagTopics,
		DurationMinutes: flagDuration,
		DeepResearch:    flagDeep,
		TTSModel:        flagTTS,
	}
	if flagNoAudio {
		f := false
		opts.GenerateAudio = &f
	}

	jobID, err := orch.Start(baseCtx, flagProfile, opts)
	if err != nil {
		return err
	}

	var bar *progress.BarRenderer
	if !flagVerbose {
		bar = progress.NewBarRenderer(os.Stdout)
		defer bar.Finish()
	}

	return waitForJob(baseCtx, orch, jobID, bar)
}

// waitForJob polls until the job reaches a terminal state, echoing
// progress to the bar renderer.
func waitForJob(ctx context.Context, orch *orchestrator.Orchestrator, jobID string, bar *progress.BarRenderer) error {
	start := time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		job, err := orch.Status(ctx, jobID)
		if err != nil || job == nil {
			continue
		}

		if bar != nil {
			msg := ""
			if n := len(job.Activity); n > 0 {
				msg = job.Activity[n-1].Message
			}
			bar.Handle(progress.Event{
				Stage:   progress.Stage(job.Stage),
				Message: msg,
				Percent: job.Progress,
				Elapsed: time.Since(start),
			})
		}

		switch job.State {
		case store.StateCompleted:
			fmt.Printf("\nEpisode ready: %s\n", job.EpisodeID)
			return nil
		case store.StateFailed:
			return fmt.Errorf("generation failed: %s", job.Error)
		case store.StateCancelled:
			return fmt.Errorf("generation cancelled")
		case store.StateWaitingForReview:
			fmt.Printf("\nScript ready for review: %s\napprove with: POST /jobs/%s/approve\n", job.EpisodeID, job.ID)
			return nil
		}
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return err
	}
	fmt.Printf("database ready: %s\n", cfg.DatabasePath)
	return nil
}
