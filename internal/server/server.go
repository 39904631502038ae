// Package server orchestrates all components: COMMS client, DB, command registry, the
// HTTP and event adapters.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/marketplace-gateway/internal/config"
	"github.com/morezero/marketplace-gateway/pkg/billing"
	"github.com/morezero/marketplace-gateway/pkg/commands"
	"github.com/morezero/marketplace-gateway/pkg/commsutil"
	"github.com/morezero/marketplace-gateway/pkg/db"
	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
	"github.com/morezero/marketplace-gateway/pkg/events"
	"github.com/morezero/marketplace-gateway/pkg/metrics"
	"github.com/morezero/marketplace-gateway/pkg/oauth"
	"github.com/morezero/marketplace-gateway/pkg/webhook"
)

const logPrefix = "server:server"

const shutdownTimeout = 10 * time.Second

// Server is the marketplace-gateway orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	repo       *db.Repository
	metrics    *metrics.Metrics
	dispatcher *dispatcher.Dispatcher
	events     *EventAdapter
	http       *HTTPAdapter
	httpServer *http.Server
}

// ParseLogLevel maps LOG_LEVEL to a slog level; unknown values are info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConfigureLogging installs the process-wide text logger on stdout.
func ConfigureLogging(level string) {
	ConfigureLoggingTo(os.Stdout, level)
}

// ConfigureLoggingTo installs the process-wide text logger on w.
func ConfigureLoggingTo(w io.Writer, level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLogLevel(level)})))
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	ConfigureLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		slog.Warn(fmt.Sprintf("%s - %s", logPrefix, w))
	}

	slog.Info(fmt.Sprintf("%s - Starting marketplace-gateway", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		s.Close()
		return err
	}

	slog.Info(fmt.Sprintf("%s - marketplace-gateway is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	s.Shutdown(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// Option adjusts how New wires dependencies.
type Option func(*options)

type options struct {
	optionalComms bool
}

// WithOptionalComms lets New continue without COMMS when the connection fails. Payment
// events are then dropped and no event adapter is created.
func WithOptionalComms() Option {
	return func(o *options) { o.optionalComms = true }
}

// New connects the configured dependencies and builds the command registry. It does not
// start serving; see Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{cfg: cfg, metrics: metrics.New()}

	// Step 1: Connect to COMMS
	if cfg.COMMSEnabled {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		switch {
		case err == nil:
			s.nc = nc
		case o.optionalComms:
			slog.Warn(fmt.Sprintf("%s - COMMS unavailable at %s, continuing without payment events: %v", logPrefix, cfg.COMMSURL, err))
		default:
			return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
		}
	}

	// Step 2: Connect to database (optional)
	if cfg.DatabaseURL != "" {
		if err := s.openDatabase(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	// Step 3: Build the command registry
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if s.nc != nil {
		publisher = events.NewCommsPublisher(s.nc, &events.CommsPublisherOpts{SubjectPrefix: cfg.PaymentEventSubject})
	}
	var store billing.SubscriptionStore
	if s.repo != nil {
		store = s.repo
	}
	processor := webhook.NewProcessor(webhook.Config{
		Secret:          cfg.StripeWebhookSecret,
		Tolerance:       cfg.WebhookTolerance,
		RecordUnhandled: cfg.WebhookRecordUnhandled,
	}, billing.NewEffects(store, publisher), s.metrics)

	reg, err := commands.NewRegistry(commands.Deps{
		AdminToken: cfg.AdminServiceToken,
		Webhook:    processor,
		OAuth:      oauth.NewValidator(oauth.WithTimeout(cfg.OAuthTimeout)),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%s - failed to build command registry: %w", logPrefix, err)
	}
	s.dispatcher = dispatcher.NewDispatcher(reg)
	slog.Info(fmt.Sprintf("%s - Registered %d commands", logPrefix, reg.Len()))

	health := &dependencyHealth{nc: s.nc}
	if s.repo != nil {
		health.db = s.repo
	}
	s.http = NewHTTPAdapter(s.dispatcher, s.metrics, HTTPOptions{
		MaxBodyBytes:       cfg.HTTPMaxBodyBytes,
		RateLimit:          cfg.HTTPRateLimit,
		RateBurst:          cfg.HTTPRateBurst,
		HealthCheckTimeout: cfg.HealthCheckTimeout,
		Health:             health,
	})
	if s.nc != nil {
		s.events = NewEventAdapter(s.nc, s.dispatcher, s.metrics, EventOptions{
			Subject:        cfg.InvokeSubject,
			RequestTimeout: cfg.RequestTimeout,
		})
	}
	return s, nil
}

func (s *Server) openDatabase(ctx context.Context) error {
	if s.cfg.DatabaseEnsure {
		if err := db.EnsureDatabase(ctx, s.cfg.DatabaseURL, db.DefaultExtensions...); err != nil {
			return fmt.Errorf("%s - failed to ensure database: %w", logPrefix, err)
		}
	}

	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrations(s.cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		applied, err := db.RunMigrations(ctx, pool, migrations)
		if err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
		slog.Info(fmt.Sprintf("%s - Applied %d migrations", logPrefix, len(applied)))
	}

	s.repo = db.NewRepository(pool)
	return nil
}

// Dispatcher returns the dispatcher shared by every adapter.
func (s *Server) Dispatcher() *dispatcher.Dispatcher {
	return s.dispatcher
}

// Metrics returns the metrics collectors.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Handler returns the HTTP adapter handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler()
}

// Start subscribes the event adapter and starts the HTTP listener.
func (s *Server) Start(ctx context.Context) error {
	if s.events != nil {
		if err := s.events.Start(ctx); err != nil {
			return err
		}
	}

	addr := s.cfg.ListenAddr()
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP adapter listening on %s", logPrefix, addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
	return nil
}

// Shutdown stops intake, lets in-flight activations finish, and releases connections.
func (s *Server) Shutdown(ctx context.Context) {
	if s.events != nil {
		if err := s.events.Stop(); err != nil {
			slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - COMMS drain: %v", logPrefix, err))
		}
		s.nc = nil
	}
	s.Close()
}

// Close releases connections without draining.
func (s *Server) Close() {
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}
