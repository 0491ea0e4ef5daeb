package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/reelworks/vod-pipeline/internal/api"
	"github.com/reelworks/vod-pipeline/internal/auth"
	"github.com/reelworks/vod-pipeline/internal/config"
	"github.com/reelworks/vod-pipeline/internal/health"
	"github.com/reelworks/vod-pipeline/internal/ingest"
	"github.com/reelworks/vod-pipeline/internal/managed"
	"github.com/reelworks/vod-pipeline/internal/observability"
	"github.com/reelworks/vod-pipeline/internal/plan"
	"github.com/reelworks/vod-pipeline/internal/provider"
	"github.com/reelworks/vod-pipeline/internal/queue"
	"github.com/reelworks/vod-pipeline/internal/storage"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

const (
	ShutdownTimeout       = 30 * time.Second
	TracerShutdownTimeout = 5 * time.Second
	AWSConfigTimeout      = 10 * time.Second
	QueueDepthInterval    = 30 * time.Second
)

func main() {
	// Initialize logger
	log := observability.NewLogger()
	slog.SetDefault(log)

	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize tracer
	shutdownTracer, err := observability.InitTracer(context.Background(), "vod-api", cfg)
	if err != nil {
		log.Error("Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), TracerShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("Failed to shutdown tracer", "error", err)
		}
	}()

	// Initialize AWS clients
	ctx, cancel := context.WithTimeout(context.Background(), AWSConfigTimeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		log.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	s3API := s3.NewFromConfig(awsCfg)
	sqsAPI := sqs.NewFromConfig(awsCfg)
	dynamoAPI := dynamodb.NewFromConfig(awsCfg)

	store := storage.NewS3Client(s3API, cfg.AWS.MediaBucket)
	repo := storage.NewRepository(dynamoAPI, cfg.AWS.DynamoDBTable)
	jobs := queue.New(sqsAPI, cfg.AWS.SQSQueueURL)

	// Initialize token services
	jwtSecret, err := cfg.GetJWTSecret()
	if err != nil {
		log.Error("Failed to get JWT secret", "error", err)
		os.Exit(1)
	}
	jwtService, err := auth.NewJWTService(jwtSecret)
	if err != nil {
		log.Error("Failed to create JWT service", "error", err)
		os.Exit(1)
	}

	tokenSecret, err := cfg.GetTokenSecret()
	if err != nil {
		log.Error("Failed to get playback token secret", "error", err)
		os.Exit(1)
	}
	playbackTokens, err := auth.NewPlaybackTokenService(tokenSecret, cfg.Upload.TokenTTL)
	if err != nil {
		log.Error("Failed to create playback token service", "error", err)
		os.Exit(1)
	}

	// Plan limits
	capacity := plan.NewChecker(plan.Limits{
		MaxStorageBytes:    cfg.Plan.MaxStorageBytes,
		MaxDurationMinutes: cfg.Plan.MaxDurationMinutes,
	})

	// Managed service client
	managedClient := managed.NewClient(managed.Config{
		APIURL: cfg.Managed.APIURL,
		Credentials: managed.Credentials{
			TokenID:     cfg.Managed.TokenID,
			TokenSecret: cfg.Managed.TokenSecret,
		},
		StreamDomain: cfg.Managed.StreamDomain,
		ImageDomain:  cfg.Managed.ImageDomain,
	})

	// Provider adapters
	corsOrigin := ""
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsOrigin = cfg.CORS.AllowedOrigins[0]
	}
	internalProvider := provider.NewInternal(provider.InternalConfig{
		Repository: repo,
		Store:      store,
		Jobs:       jobs,
		Tokens:     playbackTokens,
		Capacity:   capacity,
		UploadTTL:  cfg.Upload.URLTTL,
		PublicURL:  cfg.API.PublicURL,
		Logger:     log,
	})
	managedProvider := provider.NewManaged(provider.ManagedConfig{
		Repository: repo,
		API:        managedClient,
		Capacity:   capacity,
		UploadTTL:  cfg.Upload.URLTTL,
		CORSOrigin: corsOrigin,
		Logger:     log,
	})
	factory := provider.NewFactory(internalProvider, managedProvider, log)

	defaultProvider := models.ProviderInternal
	if cfg.Managed.Default {
		defaultProvider = models.ProviderManaged
	}
	settings := provider.OrganizationSettings{
		ManagedConfigured: cfg.ManagedConfigured(),
		DefaultProvider:   defaultProvider,
	}

	// Ingestion orchestrator
	service := ingest.NewService(ingest.Config{
		Repository: repo,
		Store:      store,
		Jobs:       jobs,
		Factory:    factory,
		Capacity:   capacity,
		URLs:       managedClient,
		Settings:   settings,
		PartURLTTL: cfg.Upload.PartURLTTL,
		Logger:     log,
	})

	// Sample the transcode queue backlog into its gauge until shutdown.
	gaugeCtx, stopGauge := context.WithCancel(context.Background())
	defer stopGauge()
	go func() {
		ticker := time.NewTicker(QueueDepthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gaugeCtx.Done():
				return
			case <-ticker.C:
				if err := service.RecordQueueDepth(gaugeCtx); err != nil {
					log.Warn("Failed to sample queue depth", "error", err)
				}
			}
		}
	}()

	// Initialize rate limiter
	rateLimiter := auth.NewRateLimiter(auth.DefaultRateLimiterConfig())

	// Initialize health checker
	healthConfig := health.DefaultConfig("vod-api", log)
	healthConfig.S3Client = s3API
	healthConfig.SQSClient = sqsAPI
	healthConfig.DynamoDBClient = dynamoAPI
	healthConfig.S3Bucket = cfg.AWS.MediaBucket
	healthConfig.SQSQueueURL = cfg.AWS.SQSQueueURL
	healthConfig.DynamoDBTable = cfg.AWS.DynamoDBTable
	healthChecker := health.NewChecker(healthConfig)

	handlers := api.NewHandlers(&api.HandlersConfig{
		Config:         cfg,
		Logger:         log,
		Service:        service,
		Store:          store,
		JWTService:     jwtService,
		PlaybackTokens: playbackTokens,
		RateLimiter:    rateLimiter,
		WebhookSecret:  []byte(cfg.Managed.WebhookSecret),
	})

	// Create and start server
	server, err := api.NewServer(&api.ServerConfig{
		Config:        cfg,
		Logger:        log,
		Handlers:      handlers,
		JWTService:    jwtService,
		RateLimiter:   rateLimiter,
		HealthChecker: healthChecker,
	})
	if err != nil {
		log.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	ctx, cancel = context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server shutdown complete")
}
