package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"devblog/api/internal/ai"
	"devblog/api/internal/app"
	"devblog/api/internal/archive"
	"devblog/api/internal/config"
	"devblog/api/internal/digest"
	"devblog/api/internal/idempotency"
	"devblog/api/internal/ratelimit"
	"devblog/api/internal/search"
	"devblog/api/internal/store"
	"devblog/api/internal/telegram"
)

const (
	limiterEvictEvery = time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("Starting devblog",
		zap.String("addr", cfg.Addr),
		zap.String("environment", cfg.AppEnv),
		zap.String("version", app.Version),
	)

	dataStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer dataStore.Close()

	if strings.TrimSpace(cfg.RoutesFile) != "" {
		routes, err := store.LoadRoutesFile(cfg.RoutesFile)
		if err != nil {
			return err
		}
		n, err := store.ImportRoutes(ctx, dataStore, routes)
		if err != nil {
			return err
		}
		logger.Info("Imported routes", zap.String("file", cfg.RoutesFile), zap.Int("routes", n))
	}

	checks := map[string]app.Pinger{}
	var limiter ratelimit.Limiter
	var dedupe idempotency.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("Using Redis for rate limiting and delivery dedupe")
		redisStore, err := idempotency.NewRedisStore(cfg.RedisURL, cfg.DedupeTTL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		limiter = ratelimit.NewRedisLimiter(redisStore.Client(), cfg.TelegramRateLimitPerMin)
		dedupe = redisStore
		checks["redis"] = redisStore
	} else {
		logger.Info("Using in-process rate limiting and delivery dedupe")
		memoryLimiter := ratelimit.NewMemoryLimiter(cfg.TelegramRateLimitPerMin)
		memoryDedupe := idempotency.NewMemoryStore(cfg.DedupeTTL)
		go housekeeping(ctx, logger, memoryLimiter, memoryDedupe)
		limiter = memoryLimiter
		dedupe = memoryDedupe
	}

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		index = meiliClient
		checks["meilisearch"] = meiliClient
	}
	searchService := search.NewService(index, search.NewDatabaseSearcher(dataStore), logger)

	var archiver app.Archiver
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		minioArchive, err := archive.NewMinIO(ctx, archive.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			Region:    cfg.S3Region,
		})
		if err != nil {
			logger.Warn("Payload archive disabled", zap.Error(err))
		} else {
			archiver = minioArchive
			checks["s3"] = minioArchive
		}
	}

	composer := ai.NewClient(ai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		URL:     cfg.OpenAIURL,
		Timeout: cfg.OpenAITimeout,
	}, logger)
	sender := telegram.NewClient(telegram.Config{
		BotToken: cfg.TelegramBotToken,
		APIBase:  cfg.TelegramAPIBase,
		Timeout:  cfg.TelegramTimeout,
	}, limiter, logger)

	service := app.New(cfg, app.Dependencies{
		Store:     dataStore,
		Generator: digest.NewGenerator(composer, logger),
		Sender:    sender,
		Dedupe:    dedupe,
		Archive:   archiver,
		Search:    searchService,
		Checks:    checks,
	}, logger)

	httpServer := app.NewHTTPServer(service, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("devblog listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown error", zap.Error(err))
	}
	return nil
}

// housekeeping drops idle token buckets and expired delivery claims until
// ctx is done.
func housekeeping(ctx context.Context, logger *zap.Logger, limiter *ratelimit.MemoryLimiter, dedupe *idempotency.MemoryStore) {
	ticker := time.NewTicker(limiterEvictEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			buckets := limiter.Evict(limiterIdleAfter)
			claims := dedupe.Sweep()
			if buckets > 0 || claims > 0 {
				logger.Debug("Evicted idle state", zap.Int("buckets", buckets), zap.Int("claims", claims))
			}
		}
	}
}
