package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"retailapi/docs"
	"retailapi/internal/attachment"
	"retailapi/internal/config"
	"retailapi/internal/database"
	"retailapi/internal/database/migration"
	"retailapi/internal/fileshare"
	handlers "retailapi/internal/http/handler"
	"retailapi/internal/http/middleware"
	"retailapi/internal/logging"
	"retailapi/internal/metrics"
	"retailapi/internal/model"
	"retailapi/internal/otel"
	"retailapi/internal/queue"
	"retailapi/internal/repository"
	pebblerepo "retailapi/internal/repository/pebble"
	"retailapi/internal/repository/postgres"
	"retailapi/internal/service"
	"retailapi/internal/storage"
)

// @title Retail Ingestion API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.Location(), cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server_exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	shutdownTracing, err := otel.Init(ctx, logger, "retailapi")
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ingestMetrics, err := metrics.NewRegistry(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	repo, db, closeRepo, err := openEntityStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("initialize object storage: %w", err)
	}
	attachments := attachment.NewStore(objStore, cfg.Attachment.Prefix)

	ingest := service.NewIngestionService(attachments, repo, service.IngestionOptions{
		UploadTimeout:    cfg.Attachment.UploadTimeout,
		CleanupOnFailure: cfg.Attachment.CleanupOnFailure,
		Deduplicate:      cfg.Kafka.Deduplicate,
		Logger:           logger,
		Metrics:          ingestMetrics,
	})
	entities := service.NewEntityService(attachments, repo, service.EntityOptions{
		URLTTL:  cfg.Attachment.URLTTL,
		Logger:  logger,
		Metrics: ingestMetrics,
	})

	deps := handlers.Deps{
		Ingestion: ingest,
		Entities:  entities,
		Files:     fileshare.New(objStore, cfg.FileShare.Prefix),
	}
	// A nil *sql.DB must not become a non-nil Pinger.
	if db != nil {
		deps.DB = db
	}

	var consumers []*queue.Consumer
	if cfg.Kafka.Enabled() {
		topics := queue.TopicsFromConfig(cfg.Kafka)
		pub := queue.NewPublisher(cfg.Kafka.Brokers, topics)
		defer pub.Close()
		deps.Publisher = pub

		for _, k := range model.Kinds() {
			r := queue.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.GroupID, topics[k])
			consumers = append(consumers, queue.NewConsumer(k, r, ingest, logger, ingestMetrics))
		}
	} else {
		logger.Warn("queue_disabled", "reason", "KAFKA_BROKERS is empty")
	}

	app := fiber.New(handlers.ServerConfig(cfg.BodyLimit))

	// Register global middleware
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	app.Use(httpMetrics.Handler())
	app.Use(middleware.RequestLogger(logging.Component(logger, "http")))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		host := c.Get("Host")
		if host == "" {
			host = cfg.AppHost
		}
		docs.SwaggerInfo.Host = host
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server_starting", "addr", ":"+cfg.Port, "entity_store", cfg.EntityStore.Backend)
		if err := app.Listen(":" + cfg.Port); err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	})
	if len(consumers) > 0 {
		g.Go(func() error { return queue.RunAll(gctx, consumers...) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server_stopping")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openEntityStore opens the configured backend. db is nil for the embedded store.
func openEntityStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (repository.EntityRepository, *sql.DB, func(), error) {
	switch cfg.EntityStore.Backend {
	case "pebble":
		store, err := pebblerepo.NewEntityPebble(cfg.EntityStore.PebbleDir, nil)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open pebble entity store: %w", err)
		}
		return store, nil, closer(logger, "pebble", store), nil
	case "postgres", "":
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, logger, cfg.Database.Host); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		return postgres.NewEntityPostgres(db), db, closer(logger, "postgres", db), nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown ENTITY_STORE %q", cfg.EntityStore.Backend)
	}
}

func closer(logger *slog.Logger, name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Error("close_failed", "store", name, "error", err)
		}
	}
}
