package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ragchat/internal/api"
	"ragchat/internal/chat"
	"ragchat/internal/config"
	"ragchat/internal/logging"
	"ragchat/internal/ui"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "ragchat",
		Short:         "Chat with your documents through a ragchat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runTUI,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.ragchat/config.yaml)")
	flags.String("server-url", "http://127.0.0.1:8000", "base URL of the ragchat server")
	flags.Duration("timeout", 30*time.Second, "timeout for each server request")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "log file (default ~/.ragchat/ragchat.log)")

	rootCmd.AddCommand(
		newListCommand(),
		newShowCommand(),
		newAskCommand(),
		newRenameCommand(),
		newDeleteCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// session is what every subcommand needs to talk to the server
type session struct {
	store  *chat.Store
	logger zerolog.Logger
	close  func()
}

func openSession(cmd *cobra.Command) (*session, error) {
	v, err := config.New(configPath, cmd.Root().PersistentFlags())
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadClient(v)
	if err != nil {
		return nil, err
	}

	// The terminal belongs to the interface, so logs go to a file
	logFile, err := logging.OpenFile(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, logFile, false)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	logger = logger.With().Str("cmd", cmd.Name()).Logger()

	client := api.NewClient(cfg.ServerURL, api.WithLogger(logger))
	store := chat.NewStore(client, chat.WithLogger(logger), chat.WithTimeout(cfg.Timeout))

	logger.Debug().Str("server_url", cfg.ServerURL).Dur("timeout", cfg.Timeout).Msg("session opened")

	return &session{
		store:  store,
		logger: logger,
		close:  func() { logFile.Close() },
	}, nil
}

func runTUI(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	var p *tea.Program
	model := ui.NewModel(s.store, func(path string) {
		p.Send(ui.NavigateMsg{Path: path})
	})
	p = tea.NewProgram(model, tea.WithAltScreen())

	unsubscribe := s.store.Subscribe(func(state chat.State) {
		p.Send(ui.StateMsg(state))
	})
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		s.logger.Error().Err(err).Msg("interface exited with error")
		return errors.Wrap(err, "running interface")
	}
	return nil
}
