package chi

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/heatmap-webhooks/endpoints"
	"github.com/marcelsud/heatmap-webhooks/ratelimit"
	"github.com/marcelsud/heatmap-webhooks/webhook"
	"github.com/rs/zerolog"
)

// Options carries the collaborators of the HTTP surface
type Options struct {
	Logger         zerolog.Logger
	Limiter        *ratelimit.Limiter // nil disables rate limiting
	Classes        *endpoints.Loader  // defaults to endpoints.Defaults()
	TrustedProxies []netip.Prefix     // peers whose X-Forwarded-For is honoured
	Metrics        http.Handler       // served on /metrics when set
	Timeout        time.Duration      // per-request timeout, 30s when zero
}

// Handlers sets up the webhook API routes
func Handlers(ctx context.Context, service webhook.UseCase, opts Options) *chi.Mux {
	if opts.Classes == nil {
		opts.Classes = endpoints.Defaults()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))
	if opts.Limiter != nil {
		r.Use(rateLimit(opts.Limiter, opts.Classes, opts.TrustedProxies))
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireOwner)

		r.Method(http.MethodPost, "/webhook-configs", postConfig(service))
		r.Method(http.MethodGet, "/webhook-configs", getConfigs(service))
		r.Method(http.MethodGet, "/webhook-configs/{id}", getConfig(service))
		r.Method(http.MethodPatch, "/webhook-configs/{id}", patchConfig(service))
		r.Method(http.MethodDelete, "/webhook-configs/{id}", deleteConfig(service))
		r.Method(http.MethodPost, "/webhook-configs/{id}/deactivate", deactivateConfig(service))
		r.Method(http.MethodPost, "/webhook-configs/{id}/regenerate-secret", regenerateSecret(service))
		r.Method(http.MethodPost, "/webhook-configs/{id}/test", testConfig(service))
		r.Method(http.MethodGet, "/webhook-configs/{id}/deliveries", getDeliveries(service))

		r.Method(http.MethodPost, "/dispatch", postDispatch(service))
	})

	return r
}
