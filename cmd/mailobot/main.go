package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mailobot/internal/app"
	"github.com/nhle/mailobot/internal/credential"
	"github.com/nhle/mailobot/internal/gateway"
	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/internal/relay"
	"github.com/nhle/mailobot/internal/store"
)

var version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "mailobot",
		Short: "A chat assistant for your email",
		Long: "MailoBot is a terminal chat assistant that relays your messages to a\n" +
			"Rasa conversational backend and keeps an eye on your inbox over IMAP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(
		&configPath, "config", model.DefaultConfigPath(),
		"path to the configuration file",
	)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway for browser clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("mailobot", version)
		},
	}

	root.AddCommand(serve, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore loads the config and opens the local database, seeding the
// welcome message on first run.
func openStore() (*model.AppConfig, *store.SQLiteStore, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	dbPath := model.DefaultDBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, err
	}

	return cfg, s, nil
}

// runTUI starts the terminal chat assistant.
func runTUI() error {
	cfg, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()

	history, err := s.GetConversation(ctx, 200)
	if err != nil {
		return fmt.Errorf("loading conversation history: %w", err)
	}
	if len(history) == 0 {
		welcome := model.WelcomeMessage()
		if _, err := s.AppendMessage(ctx, welcome); err != nil {
			return fmt.Errorf("seeding welcome message: %w", err)
		}
		history = append(history, welcome)
	}

	imapSettings, err := s.GetIMAPSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading mail settings: %w", err)
	}
	if imapSettings != nil && imapSettings.Password == "" {
		if pw, err := credential.Get(credential.KeyIMAPPassword); err == nil {
			imapSettings.Password = pw
		}
	}

	m := app.New(s, *cfg, history, imapSettings)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}
	return nil
}

// runGateway starts the HTTP gateway and blocks until SIGINT/SIGTERM.
func runGateway() error {
	cfg, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	relayClient := relay.New(
		cfg.Rasa.URL,
		time.Duration(cfg.Rasa.TimeoutSec)*time.Second,
	)

	srv := gateway.NewServer(gateway.Config{
		Listen:       cfg.Gateway.Listen,
		StaticDir:    cfg.Gateway.StaticDir,
		SettingsFile: cfg.Gateway.SettingsFile,
	}, s, relayClient, logger)

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	return srv.Run(ctx)
}
