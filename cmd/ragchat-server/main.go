package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ragchat/internal/config"
	"ragchat/internal/logging"
	"ragchat/internal/rag"
	"ragchat/internal/server"
	"ragchat/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "ragchat-server",
		Short:         "Serve the ragchat conversation API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          run,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.ragchat/config.yaml)")
	flags.String("addr", "127.0.0.1:8000", "listen address")
	flags.String("db-path", "", "SQLite database (default ~/.ragchat/chats.db)")
	flags.String("corpus", "", "YAML corpus of documents to retrieve from")
	flags.String("model", "gpt-4o-mini", "chat completion model")
	flags.String("openai-base-url", "", "OpenAI-compatible API base URL")
	flags.Int("top-k", 3, "passages retrieved per question")
	flags.Int("max-tokens", 1000, "maximum tokens per answer")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	v, err := config.New(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.LoadServer(v)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, os.Stderr, true)
	if err != nil {
		return err
	}

	if cfg.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY environment variable is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return errors.Wrap(err, "creating database directory")
	}
	db, err := storage.NewDatabase(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var index *rag.Index
	if cfg.Corpus != "" {
		passages, err := rag.LoadCorpus(cfg.Corpus)
		if err != nil {
			return err
		}
		index = rag.NewIndex(passages)
		logger.Info().Str("corpus", cfg.Corpus).Int("passages", index.Len()).Msg("corpus indexed")
	} else {
		logger.Warn().Msg("no corpus configured, answers will not cite sources")
	}

	pipeline := &rag.Pipeline{
		Index:   index,
		Replier: rag.NewOpenAIReplier(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.MaxTokens),
		TopK:    cfg.TopK,
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(db, pipeline, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Str("model", cfg.Model).Msg("ragchat-server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serving http")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
