package router

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tbeaudouin05/billing-reconciler/api/config"
	billingapp "github.com/tbeaudouin05/billing-reconciler/api/services/billing/app"
	billingdb "github.com/tbeaudouin05/billing-reconciler/api/services/billing/db"
	"github.com/tbeaudouin05/billing-reconciler/api/services/identity"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Identity is the slice of the identity service the router uses.
type Identity interface {
	Register(ctx context.Context, email, password string) (identity.Session, error)
	Login(ctx context.Context, email, password string) (identity.Session, error)
	Authenticate(ctx context.Context, token string) (billingdb.User, error)
	Me(ctx context.Context, userID string) (identity.Profile, error)
}

// Options carries the router's collaborators.
type Options struct {
	Billing  billingapp.Service
	Identity Identity
	Logger   zerolog.Logger
	// SignatureHeader names the webhook signature header.
	SignatureHeader string
	// Registerer and Gatherer back request metrics and /metrics. Both may be nil.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Health, when set, serves GET /healthz from the gRPC health service.
	Health grpc_health_v1.HealthClient
}

type router struct {
	billing         billingapp.Service
	identity        Identity
	signatureHeader string
	validate        *validator.Validate
	requests        *prometheus.CounterVec
}

type route struct {
	method  string
	pattern string
	handler http.HandlerFunc
}

// NewRouter returns the central HTTP router built on the grpc-gateway mux.
func NewRouter(opts Options) (http.Handler, error) {
	rt := &router{
		billing:         opts.Billing,
		identity:        opts.Identity,
		signatureHeader: strings.TrimSpace(opts.SignatureHeader),
		validate:        newValidator(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
	}
	if rt.signatureHeader == "" {
		rt.signatureHeader = config.DefaultSignatureHeader
	}
	if opts.Registerer != nil {
		if err := opts.Registerer.Register(rt.requests); err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
	}

	muxOpts := []runtime.ServeMuxOption{
		runtime.WithRoutingErrorHandler(func(_ context.Context, _ *runtime.ServeMux, _ runtime.Marshaler, w http.ResponseWriter, _ *http.Request, status int) {
			writeError(w, status, http.StatusText(status))
		}),
	}
	if opts.Health != nil {
		muxOpts = append(muxOpts, runtime.WithHealthzEndpoint(opts.Health))
	}
	mux := runtime.NewServeMux(muxOpts...)

	routes := []route{
		{http.MethodPost, "/api/webhooks/provider", rt.handleWebhook},

		{http.MethodPost, "/api/auth/register", rt.handleRegister},
		{http.MethodPost, "/api/auth/login", rt.handleLogin},
		{http.MethodGet, "/api/auth/me", rt.authenticated(rt.handleMe)},

		{http.MethodPost, "/api/billing/subscribe", rt.authenticated(rt.handleSubscribe)},
		{http.MethodPost, "/api/billing/cancel", rt.authenticated(rt.handleCancel)},
		{http.MethodGet, "/api/billing/subscription", rt.authenticated(rt.handleGetSubscription)},
		{http.MethodGet, "/api/billing/payments", rt.authenticated(rt.handlePayments)},

		{http.MethodGet, "/api/premium/content", rt.authenticated(rt.premium(rt.handlePremiumContent))},
	}
	if opts.Gatherer != nil {
		metrics := promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
		routes = append(routes, route{http.MethodGet, "/metrics", metrics.ServeHTTP})
	}

	for _, r := range routes {
		h := rt.instrument(r.pattern, r.handler)
		if err := mux.HandlePath(r.method, r.pattern, func(w http.ResponseWriter, req *http.Request, _ map[string]string) {
			h(w, req)
		}); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}
	return withRequestContext(opts.Logger, mux), nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
