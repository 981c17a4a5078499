package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/tbeaudouin05/billing-reconciler/api/config"
	"github.com/tbeaudouin05/billing-reconciler/api/database"
	"github.com/tbeaudouin05/billing-reconciler/api/router"
	"github.com/tbeaudouin05/billing-reconciler/api/server"
	billingapp "github.com/tbeaudouin05/billing-reconciler/api/services/billing/app"
	billingdb "github.com/tbeaudouin05/billing-reconciler/api/services/billing/db"
	gw "github.com/tbeaudouin05/billing-reconciler/api/services/billing/gateway"
	stripegw "github.com/tbeaudouin05/billing-reconciler/api/services/billing/gateway/stripe"
	"github.com/tbeaudouin05/billing-reconciler/api/services/identity"
	"github.com/tbeaudouin05/billing-reconciler/api/services/notify"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// App holds the wired services of one process.
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Store    *billingdb.Store
	Billing  billingapp.Service
	Identity *identity.Service
	Notifier *notify.Async
	Health   *health.Server
	Registry *prometheus.Registry
	Handler  http.Handler

	logger zerolog.Logger
}

type options struct {
	gateway gw.ProviderGateway
	sender  notify.Sender
}

// Option overrides a collaborator. Tests inject fakes this way instead of
// reaching the provider or the email API.
type Option func(*options)

func WithGateway(g gw.ProviderGateway) Option { return func(o *options) { o.gateway = g } }

func WithSender(s notify.Sender) Option { return func(o *options) { o.sender = s } }

// New opens the database and wires config, store, provider gateway,
// notifier and services into an HTTP handler. It does not run migrations.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	db, dialect, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info().Str("dialect", string(dialect)).Msg("database connected")

	if o.gateway == nil {
		stripegw.SetKey(cfg.ProviderSecretKey)
		o.gateway = stripegw.New()
	}
	if o.sender == nil {
		if cfg.ResendAPIKey != "" {
			o.sender = notify.NewResend(cfg.ResendAPIKey, cfg.EmailFrom)
		} else {
			logger.Warn().Msg("RESEND_API_KEY not set; notifications are discarded")
			o.sender = notify.Discard{}
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store := billingdb.NewStore(db)
	notifier := notify.NewAsync(o.sender, cfg.NotifyTimeout, cfg.NotifyWorkers, logger, reg)
	billing := billingapp.NewService(billingConfig(cfg), store, o.gateway, notifier, billingapp.NewMetrics(reg))
	ident := identity.NewService(store, identity.NewTokens(cfg.JWTSecret, identity.DefaultTokenTTL), notifier)

	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	handler, err := router.NewRouter(router.Options{
		Billing:         billing,
		Identity:        ident,
		Logger:          logger,
		SignatureHeader: cfg.WebhookSignatureHeader,
		Registerer:      reg,
		Gatherer:        reg,
		Health:          server.LocalHealthClient(hs),
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		DB:       db,
		Store:    store,
		Billing:  billing,
		Identity: ident,
		Notifier: notifier,
		Health:   hs,
		Registry: reg,
		Handler:  handler,
		logger:   logger,
	}, nil
}

func billingConfig(cfg *config.Config) billingapp.Config {
	plans := make(map[billingdb.Plan]string)
	for name, id := range cfg.PlanIDs() {
		if plan, ok := billingdb.ParsePlan(name); ok {
			plans[plan] = id
		}
	}
	return billingapp.Config{
		PlanIDs:         plans,
		PublishableKey:  cfg.ProviderPublishableKey,
		WebhookSecret:   cfg.WebhookSecret,
		ProviderTimeout: cfg.ProviderTimeout,
	}
}

// Server returns the HTTP and gRPC servers for this app, draining the
// notifier and closing the database on shutdown.
func (a *App) Server() *server.Server {
	return server.New(server.Config{
		HTTPAddr:   ":" + a.Config.HTTPPort,
		GRPCAddr:   ":" + a.Config.GRPCPort,
		Handler:    a.Handler,
		Health:     a.Health,
		Logger:     a.logger,
		OnShutdown: a.Close,
	})
}

// Close waits for pending notifications, then closes the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Notifier.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain notifications: %w", err))
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
