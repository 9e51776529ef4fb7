package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/cartridge/wizard-replay/internal/config"
	"github.com/cartridge/wizard-replay/internal/events"
	httpServer "github.com/cartridge/wizard-replay/internal/http"
	"github.com/cartridge/wizard-replay/internal/metrics"
	"github.com/cartridge/wizard-replay/internal/middleware"
	"github.com/cartridge/wizard-replay/internal/service"
	"github.com/cartridge/wizard-replay/internal/storage"
	replayv1 "github.com/cartridge/wizard-replay/pkg/api/replay/v1"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "replay-server",
	Short: "Prioritized replay buffer for the Wizard agents",
	Long: `Replay server that stores guessing and playing transitions in a
prioritized experience replay buffer backed by a sum tree.

Simulation workers append transitions over gRPC; the learner samples
minibatches with importance-sampling weights and feeds TD-errors back
as priorities.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	cfg = config.Default()

	// Listeners
	rootCmd.Flags().StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC listen address")
	rootCmd.Flags().StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "Admin HTTP listen address (empty disables)")

	// Buffer settings
	rootCmd.Flags().IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "Maximum number of transitions to store")
	rootCmd.Flags().Float64Var(&cfg.Alpha, "alpha", cfg.Alpha, "Priority exponent (0 = uniform sampling)")
	rootCmd.Flags().Float64Var(&cfg.Beta, "beta", cfg.Beta, "Initial importance-sampling exponent")
	rootCmd.Flags().Float64Var(&cfg.MinPriority, "min-priority", cfg.MinPriority, "Priority floor added to every raw priority")
	rootCmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "Sampling RNG seed (0 seeds from the clock)")

	// Events
	rootCmd.Flags().StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS server URL for buffer events (empty disables)")
	rootCmd.Flags().StringVar(&cfg.NATSSubject, "nats-subject", cfg.NATSSubject, "NATS subject for buffer events")

	// Shutdown
	rootCmd.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown timeout")

	// Logging
	rootCmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "Human-readable console logs")

	// Bind flags to viper for environment variable support, keyed by the
	// config's mapstructure names (REPLAY_GRPC_ADDR, REPLAY_CAPACITY, ...)
	rootCmd.Flags().VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	viper.SetEnvPrefix("REPLAY")
	viper.AutomaticEnv()
}

func runServer(cmd *cobra.Command, args []string) error {
	// flags override env, env overrides defaults
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg)
	collector := metrics.NewCollector(logger)

	backend, err := storage.NewMemoryBackend(cfg.Buffer())
	if err != nil {
		return fmt.Errorf("failed to create replay buffer: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing backend")
		}
	}()

	logger.Info().
		Int("capacity", cfg.Capacity).
		Float64("alpha", cfg.Alpha).
		Float64("beta", cfg.Beta).
		Float64("min_priority", cfg.MinPriority).
		Msg("Replay buffer ready")

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return err
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		logger.Info().Str("subject", cfg.NATSSubject).Msg("Publishing buffer events to NATS")
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.Recoverer(logger),
			middleware.RequestLogger(logger, collector),
		),
	)
	replayv1.RegisterReplayServer(server, service.NewReplayService(backend, publisher, collector, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", lis.Addr().String()).Msg("Replay gRPC server listening")
		if err := server.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server failed: %w", err)
		}
	}()

	var admin *http.Server
	if cfg.AdminAddr != "" {
		admin = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           httpServer.NewServer(backend, publisher, logger).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.AdminAddr).Msg("Admin HTTP server listening")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin server failed: %w", err)
			}
		}()
	}

	// Wait for interrupt signal or a listener failure
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sig:
		logger.Info().Msg("Shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Server failed, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if admin != nil {
		if err := admin.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Admin shutdown failed")
		}
	}

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		logger.Warn().Msg("Shutdown timeout exceeded, forcing stop")
		server.Stop()
	case <-stopped:
		logger.Info().Msg("Server stopped gracefully")
	}

	return runErr
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "replay").Logger()
}

func main() {
	// a missing .env is fine; real environment variables still apply
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
