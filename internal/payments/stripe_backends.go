package payments

import (
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v78"
)

// StripeBackendConfig configures the HTTP backends used by the Stripe client.
type StripeBackendConfig struct {
	Logger stripe.LeveledLoggerInterface
	// URL overrides the API base URL, mainly for tests against a local server.
	URL string
}

// NewStripeBackends builds backends with network retries disabled and an HTTP client without
// a timeout, so the request context alone bounds each Stripe call.
func NewStripeBackends(cfg StripeBackendConfig) *stripe.Backends {
	build := func(backend stripe.SupportedBackend) stripe.Backend {
		bc := &stripe.BackendConfig{
			HTTPClient:        &http.Client{},
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     cfg.Logger,
		}
		if url := strings.TrimSpace(cfg.URL); url != "" {
			bc.URL = stripe.String(url)
		}
		return stripe.GetBackendWithConfig(backend, bc)
	}
	return &stripe.Backends{
		API:     build(stripe.APIBackend),
		Connect: build(stripe.ConnectBackend),
		Uploads: build(stripe.UploadsBackend),
	}
}
