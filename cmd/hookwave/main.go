package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shohag/hookwave/internal/api"
	"github.com/shohag/hookwave/internal/config"
	"github.com/shohag/hookwave/internal/gateway"
	"github.com/shohag/hookwave/internal/models"
	"github.com/shohag/hookwave/internal/normalize"
	"github.com/shohag/hookwave/internal/processor"
	"github.com/shohag/hookwave/internal/storage"
	"github.com/shohag/hookwave/internal/sweeper"
	"github.com/shohag/hookwave/internal/webhook"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hookwave",
		Short: "Hookwave — Webhook ingestion and retry gateway",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(sweepCmd(&configPath))
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(channelCmd(&configPath))
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Hookwave server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			svc, normalizer := buildPipeline(cfg, store, log)

			var sweep *sweeper.Sweeper
			if cfg.Webhook.Sweep.Enabled {
				sweep = sweeper.New(cfg.Webhook.Sweep, svc, log)
				if err := sweep.Start(cfg.Webhook.Sweep.Schedule); err != nil {
					return fmt.Errorf("failed to start retry sweeper: %w", err)
				}
			}

			server := api.NewServer(cfg, store, svc, normalizer, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Bool("sweeper", cfg.Webhook.Sweep.Enabled).
				Str("storage", cfg.Storage.Driver).
				Msg("Hookwave is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}
			if sweep != nil {
				sweep.Stop()
			}

			log.Info().Msg("Hookwave stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one retry sweep over retry-eligible webhook events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, log, cleanup, err := setupFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			svc, _ := buildPipeline(cfg, store, log)
			sweep := sweeper.New(cfg.Webhook.Sweep, svc, log)

			results, err := sweep.Sweep(context.Background())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}

			out, _ := json.MarshalIndent(results, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show webhook event statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, cleanup, err := setupFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.GetEventStats(context.Background(), storage.StatsFilter{})
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func channelCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage channel configs",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a channel config",
		RunE: func(cmd *cobra.Command, args []string) error {
			org, _ := cmd.Flags().GetString("org")
			gw, _ := cmd.Flags().GetString("gateway")
			phone, _ := cmd.Flags().GetString("phone")
			session, _ := cmd.Flags().GetString("session")
			reply, _ := cmd.Flags().GetBool("reply")
			if org == "" || gw == "" || phone == "" {
				return fmt.Errorf("--org, --gateway and --phone are required")
			}

			_, store, _, cleanup, err := setupFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			now := time.Now().UTC()
			ch := &models.ChannelConfig{
				ID:             models.NewID("ch"),
				OrganizationID: org,
				Gateway:        gw,
				PhoneNumber:    phone,
				Session:        session,
				ReplyEnabled:   reply,
				CreatedAt:      now,
				UpdatedAt:      now,
			}

			if err := store.CreateChannel(context.Background(), ch); err != nil {
				return fmt.Errorf("failed to create channel: %w", err)
			}

			out, _ := json.MarshalIndent(ch, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	createCmd.Flags().String("org", "", "organization id")
	createCmd.Flags().String("gateway", "waha", "gateway tag")
	createCmd.Flags().String("phone", "", "destination phone number")
	createCmd.Flags().String("session", "", "gateway session name")
	createCmd.Flags().Bool("reply", false, "enable automated replies")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List channel configs",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, cleanup, err := setupFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			channels, err := store.ListChannels(context.Background(), "")
			if err != nil {
				return fmt.Errorf("failed to list channels: %w", err)
			}

			if len(channels) == 0 {
				fmt.Println("No channels found.")
				return nil
			}

			for _, ch := range channels {
				fmt.Printf("  %s  %s  %s/%s  (org %s)\n", ch.ID, ch.PhoneNumber, ch.Gateway, ch.Session, ch.OrganizationID)
			}
			return nil
		},
	}

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func keyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key",
		Short: "Generate an admin API key",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(models.NewAPIKey())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Hookwave v%s\n", version)
		},
	}
}

// buildPipeline wires the normalizer, processor and lifecycle service, and
// registers the processor as the downstream handler for both gateways.
func buildPipeline(cfg *config.Config, store storage.Storage, log zerolog.Logger) (*webhook.Service, *normalize.Normalizer) {
	normalizer := normalize.New()
	resolver := normalize.NewResolver(store)

	var sender processor.Sender
	if cfg.WhatsApp.Outbound.Enabled {
		sender = gateway.NewWAHA(cfg.WhatsApp.Outbound)
	}

	proc := processor.New(normalizer, resolver, sender, cfg.WhatsApp.AutoReplyText, log)

	svc := webhook.NewService(store, log, cfg.Webhook.MaxRetries, cfg.Webhook.BulkWorkers)
	svc.Register(normalize.GatewayWAHA, "*", proc.HandleEvent)
	svc.Register(normalize.GatewayBusiness, "*", proc.HandleEvent)

	return svc, normalizer
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func setupFromConfig(configPath string) (*config.Config, storage.Storage, zerolog.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, zerolog.Logger{}, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return cfg, store, log, func() { store.Close() }, nil
}
