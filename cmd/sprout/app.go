package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/zkinzler/dfw-openings/config"
	"github.com/zkinzler/dfw-openings/internal/repositories/ingestionrun"
	"github.com/zkinzler/dfw-openings/pkg/database"
	"github.com/zkinzler/dfw-openings/pkg/events"
	"github.com/zkinzler/dfw-openings/pkg/kafka"
	"github.com/zkinzler/dfw-openings/pkg/locking"
	"github.com/zkinzler/dfw-openings/pkg/matching"
	"github.com/zkinzler/dfw-openings/pkg/middleware"
	"github.com/zkinzler/dfw-openings/pkg/processor"
	"github.com/zkinzler/dfw-openings/pkg/quarantine"
	"github.com/zkinzler/dfw-openings/pkg/redis"
	"github.com/zkinzler/dfw-openings/pkg/registry"
	"github.com/zkinzler/dfw-openings/pkg/routes/health"
	quarantineroutes "github.com/zkinzler/dfw-openings/pkg/routes/quarantine"
	"github.com/zkinzler/dfw-openings/pkg/routes/records"
	"github.com/zkinzler/dfw-openings/pkg/routes/runs"
	"github.com/zkinzler/dfw-openings/pkg/routes/venues"
	"github.com/zkinzler/dfw-openings/pkg/rules"
	"github.com/zkinzler/dfw-openings/pkg/startup"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

type app struct {
	cfg    *config.Config
	logger ectologger.Logger
	health *health.Checker

	db       database.DB
	redis    *redis.Client
	store    registry.Store
	runs     *ingestionrun.Repository
	producer *kafka.Producer
	consumer *kafka.Consumer
	proc     *processor.Processor
	server   *http.Server

	stopTracing func(context.Context) error
	stopRescore context.CancelFunc
	rescoreDone chan struct{}
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{
		cfg:    cfg,
		logger: logger,
		health: health.NewChecker(cfg.Version),
	}
}

// Run starts every dependency, blocks until ctx is done, then shuts down in reverse
func (a *app) Run(ctx context.Context) error {
	s := startup.NewStartup(a.logger, a.cfg.StartupMaxAttempts)
	for _, dep := range a.dependencies() {
		s.AddDependency(dep)
	}

	if err := s.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
		defer cancel()
		_ = s.Stop(stopCtx)
		return err
	}
	a.health.SetReady(true)
	a.logger.WithField("port", a.cfg.Port).Infof("%s is ready", a.cfg.AppName)

	<-ctx.Done()
	a.health.SetReady(false)
	a.logger.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

func (a *app) dependencies() []startup.StartupDependency {
	deps := []startup.StartupDependency{
		&startup.Func{Name: "tracing", StartFunc: a.startTracing, StopFunc: a.stopTracingProvider},
	}

	processorRequires := []string{"tracing"}
	if a.cfg.RegistryDriver == "postgres" {
		deps = append(deps, &startup.Func{Name: "database", Requires: []string{"tracing"}, StartFunc: a.startDatabase, StopFunc: a.stopDatabase})
		processorRequires = append(processorRequires, "database")
	}
	if a.cfg.LockDriver == "redis" || a.cfg.QuarantineDriver == "redis" {
		deps = append(deps, &startup.Func{Name: "redis", Requires: []string{"tracing"}, StartFunc: a.startRedis, StopFunc: a.stopRedis})
		processorRequires = append(processorRequires, "redis")
	}
	if a.cfg.KafkaProducerEnabled {
		deps = append(deps, &startup.Func{Name: "kafka-producer", StartFunc: a.startProducer, StopFunc: a.stopProducer})
		processorRequires = append(processorRequires, "kafka-producer")
	}

	deps = append(deps,
		&startup.Func{Name: "processor", Requires: processorRequires, StartFunc: a.startProcessor},
		&startup.Func{Name: "http", Requires: []string{"processor"}, StartFunc: a.startHTTP, StopFunc: a.stopHTTP},
	)
	if a.cfg.KafkaConsumerEnabled {
		deps = append(deps, &startup.Func{Name: "kafka-consumer", Requires: []string{"processor"}, StartFunc: a.startConsumer, StopFunc: a.stopConsumer})
	}
	if a.cfg.RescoreInterval > 0 {
		deps = append(deps, &startup.Func{Name: "rescore", Requires: []string{"processor"}, StartFunc: a.startRescore, StopFunc: a.stopRescoreLoop})
	}
	return deps
}

func (a *app) startTracing(ctx context.Context) error {
	shutdown, err := tracing.Init(ctx, tracing.Config{
		ServiceName: a.cfg.AppName,
		Exporter:    a.cfg.TracingExporter,
		Endpoint:    a.cfg.TracingEndpoint,
		Insecure:    a.cfg.TracingInsecure,
		SampleRate:  a.cfg.TracingSampleRate,
		Timeout:     10 * time.Second,
	})
	if err != nil {
		return err
	}
	a.stopTracing = shutdown
	return nil
}

func (a *app) stopTracingProvider(ctx context.Context) error {
	if a.stopTracing == nil {
		return nil
	}
	return a.stopTracing(ctx)
}

func (a *app) startDatabase(ctx context.Context) error {
	conn, err := sqlx.ConnectContext(ctx, "postgres", a.cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	conn.SetMaxOpenConns(a.cfg.DatabaseMaxOpenConns)
	conn.SetMaxIdleConns(a.cfg.DatabaseMaxIdleConns)
	conn.SetConnMaxLifetime(a.cfg.DatabaseConnMaxLifetime)

	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.MigratePostgres(a.cfg.DatabaseName, conn.DB); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	a.db = database.NewDatabaseInstance(conn, a.logger)
	a.health.AddCheck("database", pingFunc(a.db.PingContext))
	return nil
}

func (a *app) stopDatabase(context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *app) startRedis(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.Config{
		Host:         a.cfg.RedisHost,
		Port:         a.cfg.RedisPort,
		Password:     a.cfg.RedisPassword,
		DB:           a.cfg.RedisDB,
		PoolSize:     a.cfg.RedisPoolSize,
		DialTimeout:  a.cfg.RedisDialTimeout,
		ReadTimeout:  a.cfg.RedisReadTimeout,
		WriteTimeout: a.cfg.RedisWriteTimeout,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.health.AddCheck("redis", client)
	return nil
}

func (a *app) stopRedis(context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *app) startProducer(context.Context) error {
	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaOutputTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)
	return nil
}

func (a *app) stopProducer(context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

func (a *app) startProcessor(context.Context) error {
	r := rules.Default()
	if a.cfg.RulesFile != "" {
		loaded, err := rules.Load(a.cfg.RulesFile)
		if err != nil {
			return err
		}
		r = loaded
	}

	opts := []processor.Option{
		processor.WithMatchingConfig(matching.Config{AllowAddressOnly: a.cfg.AllowAddressOnlyMatch}),
	}

	switch a.cfg.RegistryDriver {
	case "postgres":
		a.store = registry.NewPostgres(a.db, a.logger)
		a.runs = ingestionrun.NewRepository(a.db, a.logger)
		opts = append(opts, processor.WithRunStore(a.runs))
	default:
		a.store = registry.NewMemory()
	}
	a.health.AddCheck("registry", a.store)

	if a.cfg.LockDriver == "redis" {
		opts = append(opts, processor.WithLocker(redis.NewLocker(a.redis, "sprout:lock:", a.cfg.LockTTL, a.cfg.LockWait)))
	} else {
		opts = append(opts, processor.WithLocker(locking.NewLocal()))
	}

	if a.cfg.QuarantineDriver == "redis" {
		opts = append(opts, processor.WithQuarantine(redis.NewQuarantine(a.redis, a.cfg.QuarantineStream, int64(a.cfg.QuarantineMaxLen), a.logger)))
	} else {
		opts = append(opts, processor.WithQuarantine(quarantine.NewMemory(a.cfg.QuarantineMaxLen)))
	}

	if a.producer != nil {
		opts = append(opts, processor.WithEmitter(events.NewKafkaEmitter(a.producer, a.logger)))
	}

	proc, err := processor.New(a.logger, a.store, r, opts...)
	if err != nil {
		return err
	}
	a.proc = proc
	a.logger.WithField("rules_version", proc.RulesVersion()).Info("Processor ready")
	return nil
}

func (a *app) startHTTP(context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	records.NewHandler(a.proc, a.cfg.MaxBatchSize).Register(api.Group("/records"))
	venues.NewHandler(a.proc).Register(api.Group("/venues"))
	quarantineroutes.NewHandler(a.proc.Quarantine()).Register(api.Group("/quarantine"))
	if a.runs != nil {
		runs.NewHandler(a.runs).Register(api.Group("/runs"))
	}

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server stopped")
		}
	}()
	return nil
}

func (a *app) stopHTTP(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *app) startConsumer(ctx context.Context) error {
	a.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       a.cfg.KafkaBrokers,
		Topic:         a.cfg.KafkaInputTopic,
		ConsumerGroup: a.cfg.KafkaConsumerGroup,
	}, a.logger, a.handleMessage, a.proc.Quarantine())
	a.health.AddCheck("kafka-consumer", pingFunc(func(context.Context) error {
		if !a.consumer.Health() {
			return errors.New("consumer is not running")
		}
		return nil
	}))
	// the consumer outlives the startup context
	return a.consumer.Start(context.WithoutCancel(ctx))
}

func (a *app) stopConsumer(context.Context) error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Stop()
}

// handleMessage merges every record in a message as one batch. Only cancellation
// fails the batch, which leaves the message uncommitted for redelivery.
func (a *app) handleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	summary, err := a.proc.ProcessBatch(ctx, processor.TriggerKafka, msg.Records)
	if err != nil {
		return err
	}
	a.logger.WithContext(ctx).WithFields(map[string]any{
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"total":     summary.Total,
		"created":   summary.Created,
		"updated":   summary.Updated,
		"rejected":  summary.Rejected,
		"failed":    summary.Failed,
	}).Info("Processed source record message")
	return nil
}

func (a *app) startRescore(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stopRescore = cancel
	a.rescoreDone = make(chan struct{})

	go func() {
		defer close(a.rescoreDone)
		ticker := time.NewTicker(a.cfg.RescoreInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				changed, err := a.proc.Rescore(loopCtx, time.Now().UTC())
				if err != nil {
					a.logger.WithContext(loopCtx).WithError(err).Error("Scheduled rescore failed")
					continue
				}
				a.logger.WithContext(loopCtx).WithField("changed", changed).Info("Scheduled rescore finished")
			}
		}
	}()
	return nil
}

func (a *app) stopRescoreLoop(ctx context.Context) error {
	if a.stopRescore == nil {
		return nil
	}
	a.stopRescore()
	select {
	case <-a.rescoreDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
