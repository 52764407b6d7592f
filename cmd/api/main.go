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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/handlers"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/config"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/idempotency"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/jobs"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/observability"
	ppostgres "github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/postgres"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/secrets"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/pricing"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories/cache"
	pgrepo "github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories/postgres"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/services"
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

	logger := baseLogger.Named("pricing")
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
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	provider := ppostgres.NewProvider(cfg.Database)
	if err := provider.Ping(ctx); err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	registry, err := pgrepo.NewRegistry(provider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("postgres close error", zap.Error(err))
		}
	}()

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:        addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	var discounts repositories.DiscountRepository = registry.Discounts()
	discountCache := false
	if cfg.Features.EnableDiscountCache && redisClient != nil {
		cached, err := cache.NewDiscountRepository(cache.DiscountRepositoryDeps{
			Next:   registry.Discounts(),
			Client: redisClient,
			TTL:    cfg.Pricing.DiscountCacheTTL,
			Logger: observability.NewEventHook(logger.Named("discount_cache")),
		})
		if err != nil {
			logger.Fatal("failed to initialise discount cache", zap.Error(err))
		}
		discounts = cached
		discountCache = true
	}

	var (
		pubsubClient *pubsub.Client
		topic        *pubsub.Topic
		publisher    services.OrderItemEventPublisher
	)
	if cfg.Features.EnableOrderEvents {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID, pubsubClientOptions(cfg.PubSub)...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic = pubsubClient.Topic(cfg.PubSub.OrderItemTopic)
		topic.EnableMessageOrdering = true
		defer topic.Stop()
		orderPublisher, err := jobs.NewPubSubOrderItemPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order item publisher", zap.Error(err))
		}
		publisher = orderPublisher
	}

	engine := pricing.NewEngine(pricing.EngineOptions{
		Precision: int32(cfg.Pricing.Precision),
		MaxDepth:  cfg.Pricing.MaxGroupDepth,
		Logger:    observability.NewEventHook(logger.Named("engine")),
	})

	pricingService, err := services.NewPricingService(services.PricingServiceDeps{
		Prices:        registry.Prices(),
		PriceTiers:    registry.PriceTiers(),
		Profiles:      registry.Profiles(),
		Catalog:       registry.Catalog(),
		Discounts:     discounts,
		Engine:        engine,
		DefaultTierID: cfg.Pricing.DefaultTierID,
		Metrics:       observability.NewPricingMetrics(nil, logger.Named("metrics")),
		Clock:         time.Now,
		Logger:        observability.NewEventHook(logger.Named("pricing_service")),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing service", zap.Error(err))
	}

	orderItemService, err := services.NewOrderItemService(services.OrderItemServiceDeps{
		Store:     registry,
		Pricing:   pricingService,
		Publisher: publisher,
		Precision: int32(cfg.Pricing.Precision),
		Clock:     time.Now,
		Logger:    observability.NewEventHook(logger.Named("order_items")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order item service", zap.Error(err))
	}

	systemService, err := newSystemService(provider, redisClient, topic, fetcher, buildInfo, engine, domain.PricingSettings{
		Currency:      cfg.Pricing.Currency,
		DefaultTierID: cfg.Pricing.DefaultTierID,
		DiscountCache: discountCache,
		OrderEvents:   publisher != nil,
	})
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	var idempotencyStore idempotency.Store = idempotency.NewMemoryStore()
	if redisClient != nil {
		idempotencyStore = idempotency.NewRedisStore(redisClient)
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.CallerMiddleware(cfg.Server.CallerHeader),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)
	pricingHandlers := handlers.NewPricingHandlers(pricingService)
	orderItemHandlers := handlers.NewOrderItemHandlers(orderItemService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPricingRoutes(pricingHandlers.Routes),
		handlers.WithOrderRoutes(orderItemHandlers.Routes),
		handlers.WithOrderMiddlewares(idempotencyMiddleware),
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
		serverLogger.Info("pricing api listening",
			zap.String("environment", cfg.Environment),
			zap.Bool("discountCache", discountCache),
			zap.Bool("orderEvents", publisher != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["PRICING_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["PRICING_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
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

func pubsubClientOptions(cfg config.PubSubConfig) []option.ClientOption {
	host := strings.TrimSpace(cfg.EmulatorHost)
	if host == "" {
		return nil
	}
	return []option.ClientOption{
		option.WithEndpoint(host),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}

func newSystemService(provider *ppostgres.Provider, redisClient *redis.Client, topic *pubsub.Topic, fetcher *secrets.Fetcher, build services.BuildInfo, engine *pricing.Engine, settings domain.PricingSettings) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 4)
	if provider != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "postgres",
			Timeout: 1500 * time.Millisecond,
			Check:   provider.Ping,
		})
	}
	if redisClient != nil {
		client := redisClient
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Timeout:  500 * time.Millisecond,
			Optional: true,
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:     "pubsub",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				ok, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", t.ID())
				}
				return nil
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:     "secretManager",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Engine:           engine,
		Pricing:          settings,
		Clock:            time.Now,
		Build:            build,
	})
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("PRICING_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("PRICING_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("PRICING_PUBSUB_PROJECT_ID")
	}
	fallbackPath := lookup("PRICING_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := parseKeyValueList(lookup("PRICING_SECRET_PROJECT_IDS")); len(projectMap) > 0 {
		lowered := make(map[string]string, len(projectMap))
		for k, v := range projectMap {
			lowered[strings.ToLower(k)] = v
		}
		opts = append(opts, secrets.WithProjectMap(lowered))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPins(lookup("PRICING_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("PRICING_GCP_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config fields that must resolve to a non-empty value when they
// are configured as secret references.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Database.URL"}
	if env != nil && strings.TrimSpace(env["PRICING_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	return required
}

func secretVersionPins(raw string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range parseKeyValueList(raw) {
		if strings.HasPrefix(ref, "sm://") {
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		pins[ref] = version
	}
	return pins
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
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
