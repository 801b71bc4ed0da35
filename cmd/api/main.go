package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/Anthobetto/UNMI-sub001/internal/handlers"
	"github.com/Anthobetto/UNMI-sub001/internal/payments"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/auth"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/config"
	pfirestore "github.com/Anthobetto/UNMI-sub001/internal/platform/firestore"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/idempotency"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/jobs"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/observability"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/secrets"
	"github.com/Anthobetto/UNMI-sub001/internal/repositories"
	firestoreRepo "github.com/Anthobetto/UNMI-sub001/internal/repositories/firestore"
	"github.com/Anthobetto/UNMI-sub001/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	catalog, err := loadCatalog(cfg.Catalog)
	if err != nil {
		logger.Fatal("failed to load tier catalog", zap.Error(err), zap.String("file", cfg.Catalog.File))
	}
	logger.Info("tier catalog loaded", zap.String("version", catalog.Version()), zap.Int("tiers", len(catalog.ListTiers())))

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithDialTimeout(cfg.Firestore.DialTimeout))
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	templateRepo, err := firestoreRepo.NewTemplateRepository(firestoreProvider, cfg.Firestore.TemplatesCollection)
	if err != nil {
		logger.Fatal("failed to initialise template repository", zap.Error(err))
	}

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreClient,
		idempotency.WithCollection(cfg.Idempotency.Collection),
		idempotency.WithMaxAttempts(cfg.Idempotency.MaxAttempts),
	)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.EventLogger(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(cfg.Idempotency.CleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := idempotencyStore.Purge(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency purge error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency purge removed keys", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	stripeLogger := logger.Named("stripe")
	stripeBackends := payments.NewStripeBackends(payments.StripeBackendConfig{
		Logger: observability.NewLeveledAdapter(stripeLogger),
	})
	paymentProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:    cfg.PSP.StripeAPIKey,
		AccountID: cfg.PSP.StripeAccountID,
		Backends:  stripeBackends,
		Logger:    observability.EventLogger(stripeLogger),
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}

	var (
		checkoutTopic  *pubsub.Topic
		eventPublisher services.CheckoutEventPublisher
	)
	if topicName := strings.TrimSpace(cfg.PubSub.CheckoutTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		checkoutTopic = pubsubClient.Topic(topicName)
		publisher, err := jobs.NewPubSubCheckoutEventPublisher(checkoutTopic)
		if err != nil {
			logger.Fatal("failed to initialise checkout event publisher", zap.Error(err))
		}
		defer publisher.Stop()
		eventPublisher = publisher
	} else {
		logger.Info("checkout event publishing disabled")
	}

	calculator, err := services.NewPricingCalculator(catalog)
	if err != nil {
		logger.Fatal("failed to initialise pricing calculator", zap.Error(err))
	}
	pricingService, err := services.NewPricingService(catalog)
	if err != nil {
		logger.Fatal("failed to initialise pricing service", zap.Error(err))
	}
	checkoutDeps := services.CheckoutSessionBuilderDeps{
		Calculator:      calculator,
		Provider:        paymentProvider,
		PriceRefs:       cfg.Checkout.PriceRefs,
		FrontendBaseURL: cfg.Checkout.FrontendBaseURL,
		Logger:          observability.EventLogger(logger.Named("checkout")),
	}
	if eventPublisher != nil {
		checkoutDeps.Events = eventPublisher
	}
	checkoutService, err := services.NewCheckoutSessionBuilder(checkoutDeps)
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}
	templateService, err := services.NewTemplateService(services.TemplateServiceDeps{
		Repository: templateRepo,
		Logger:     observability.EventLogger(logger.Named("templates")),
	})
	if err != nil {
		logger.Fatal("failed to initialise template service", zap.Error(err))
	}

	readiness, err := newReadinessReporter(firestoreProvider, fetcher, checkoutTopic, buildInfo, cfg.Server.HealthCheckTimeout)
	if err != nil {
		logger.Fatal("failed to initialise readiness reporter", zap.Error(err))
	}

	verifier, err := auth.NewJWTVerifier(auth.JWTVerifierConfig{
		Secret:    cfg.Security.JWT.Secret,
		Issuer:    cfg.Security.JWT.Issuer,
		Audience:  cfg.Security.JWT.Audience,
		ClockSkew: cfg.Security.JWT.ClockSkew,
	})
	if err != nil {
		logger.Fatal("failed to initialise jwt verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier,
		auth.WithRoleClaim(cfg.Security.JWT.RoleClaim),
		auth.WithFallbackRole(cfg.Security.JWT.FallbackRole),
		auth.WithVerificationTimeout(cfg.Security.JWT.VerifyTimeout),
	)

	projectID := traceProjectID(cfg)
	authenticatedLimit := handlers.RateLimitPerClientIP(cfg.RateLimits.AuthenticatedPerMinute, nil)

	pricingHandlers := handlers.NewPricingHandlers(pricingService)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService,
		handlers.WithCheckoutIdempotency(idempotencyMiddleware, cfg.Idempotency.Header),
	)
	templateHandlers := handlers.NewTemplateHandlers(authenticator, templateService)
	adminHandlers := handlers.NewAdminPricingHandlers(authenticator, checkoutService,
		handlers.WithAdminRole(cfg.Security.JWT.AdminRole),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(projectID),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(projectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthReadiness(readiness),
			handlers.WithHealthBuildInfo(buildInfo),
		)),
		handlers.WithPricingMiddlewares(handlers.RateLimitPerClientIP(cfg.RateLimits.PublicPerMinute, nil)),
		handlers.WithPricingRoutes(pricingHandlers.Routes),
		handlers.WithCheckoutRoutes(withMiddleware(authenticatedLimit, checkoutHandlers.Routes)),
		handlers.WithTemplateRoutes(withMiddleware(authenticatedLimit, templateHandlers.Routes)),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("pricing api listening", zap.String("version", buildInfo.Version), zap.String("environment", buildInfo.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func withMiddleware(mw func(http.Handler) http.Handler, registrar handlers.RouteRegistrar) handlers.RouteRegistrar {
	return func(r chi.Router) {
		r.With(mw).Group(registrar)
	}
}

func loadCatalog(cfg config.CatalogConfig) (*services.TierCatalog, error) {
	path := strings.TrimSpace(cfg.File)
	if path == "" {
		return services.DefaultTierCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return services.LoadTierCatalog(f)
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// newReadinessReporter wires readiness checks. Firestore is critical; Secret Manager and Pub/Sub
// only degrade readiness because config is already resolved and events are best effort.
func newReadinessReporter(provider *pfirestore.Provider, fetcher *secrets.Fetcher, topic *pubsub.Topic, build services.BuildInfo, timeout time.Duration) (*services.ReadinessReporter, error) {
	checks := []repositories.DependencyCheck{
		{
			Name:     "firestore",
			Critical: true,
			Check:    provider.Ping,
		},
		{
			Name:  "secretManager",
			Check: fetcher.Ping,
		},
	}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name: "pubsub",
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}
	repo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return services.NewReadinessReporter(services.ReadinessReporterDeps{
		Checks: repo,
		Build:  build,
	})
}

func traceProjectID(cfg config.Config) string {
	if cfg.GCP.ProjectID != "" {
		return cfg.GCP.ProjectID
	}
	return cfg.Firestore.ProjectID
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_GCP_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS")); len(projectMap) > 0 {
		normalised := make(map[string]string, len(projectMap))
		for label, project := range projectMap {
			normalised[strings.ToLower(label)] = project
		}
		opts = append(opts, secrets.WithProjectMap(normalised))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPins(lookup("API_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("API_GCP_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames() []string {
	return []string{
		"PSP.StripeAPIKey",
		"Security.JWT.Secret",
	}
}

// secretVersionPins parses "ref=version" pairs. A leading "env:" label scopes a pin to one
// environment and bare names are treated as secret:// references.
func secretVersionPins(raw string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range parseKeyValueList(raw) {
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		switch {
		case strings.HasPrefix(ref, "sm://"):
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		case !strings.HasPrefix(ref, "secret://"):
			ref = "secret://" + ref
		}
		pins[prefix+ref] = version
	}
	return pins
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
