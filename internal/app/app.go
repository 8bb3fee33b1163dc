// Package app wires configuration, infrastructure and HTTP routes into the clover server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/db"
	"github.com/Ramsey-B/clover/internal/repositories/contact"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/identity"
	"github.com/Ramsey-B/clover/pkg/inject"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/redis"
	contactroutes "github.com/Ramsey-B/clover/pkg/routes/contact"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/identify"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	depPostgres   = "postgres"
	depMigrations = "migrations"
	depRedis      = "redis"
	depProducer   = "kafka-producer"
	depGraph      = "graph"
	depConsumer   = "kafka-consumer"
)

// App is the assembled clover server.
type App struct {
	cfg    config.Config
	logger ectologger.Logger

	infra   *startup.Startup
	workers *startup.Startup
	echo    *echo.Echo
	checker *health.Checker

	db       *database.DatabaseInstance
	redis    *redis.Client
	producer *kafka.Producer
	graph    *graph.Client
	consumer *kafka.Consumer
	identity *identity.Service

	containerID string
}

// New creates an App. Nothing connects until Run.
func New(cfg config.Config, logger ectologger.Logger) *App {
	a := &App{
		cfg:     cfg,
		logger:  logger,
		infra:   startup.NewStartup(logger, cfg.StartupMaxAttempts),
		workers: startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}
	a.registerInfra()
	return a
}

// Run starts every dependency, serves HTTP until ctx is cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	log := a.logger.WithContext(ctx)

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:    a.cfg.AppName,
		ServiceVersion: a.cfg.Version,
		Exporter:       a.cfg.TracingExporter,
		Endpoint:       a.cfg.OTLPEndpoint,
		Protocol:       a.cfg.OTLPProtocol,
		Insecure:       a.cfg.OTLPInsecure,
		Timeout:        a.cfg.OTLPTimeout,
	})
	if err != nil {
		return err
	}

	if err := a.infra.Start(ctx); err != nil {
		a.shutdown(ctx, shutdownTracing)
		return err
	}

	if err := a.assemble(); err != nil {
		a.shutdown(ctx, shutdownTracing)
		return err
	}

	if err := a.workers.Start(ctx); err != nil {
		a.shutdown(ctx, shutdownTracing)
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           a.echo,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("port", a.cfg.Port).Info("HTTP server listening")
		if err := a.echo.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	a.checker.SetReady(true)

	select {
	case <-ctx.Done():
		log.Info("Shutdown requested")
	case err = <-serveErr:
		log.WithError(err).Error("HTTP server failed")
	}

	a.checker.SetReady(false)
	a.shutdown(ctx, shutdownTracing)
	return err
}

func (a *App) shutdown(ctx context.Context, shutdownTracing func(context.Context) error) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(a.cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	log := a.logger.WithContext(stopCtx)

	if err := a.workers.Stop(stopCtx); err != nil {
		log.WithError(err).Error("Failed to stop workers")
	}
	if a.echo != nil {
		if err := a.echo.Shutdown(stopCtx); err != nil {
			log.WithError(err).Error("Failed to stop HTTP server")
		}
	}
	if err := a.infra.Stop(stopCtx); err != nil {
		log.WithError(err).Error("Failed to stop dependencies")
	}
	if err := shutdownTracing(stopCtx); err != nil {
		log.WithError(err).Error("Failed to flush traces")
	}
}

func (a *App) registerInfra() {
	cfg := a.cfg

	if cfg.StoreDriver == config.StoreDriverPostgres {
		a.infra.AddDependency(&startup.Func{
			Name: depPostgres,
			OnStart: func(ctx context.Context) error {
				conn, err := database.Connect(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN(), database.PoolConfig{
					MaxOpenConns:    cfg.DatabaseMaxOpenConns,
					MaxIdleConns:    cfg.DatabaseMaxIdleConns,
					ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
				}, a.logger)
				if err != nil {
					return err
				}
				a.db = conn
				return nil
			},
			OnStop: func(context.Context) error {
				if a.db == nil {
					return nil
				}
				return a.db.Close()
			},
		})

		if cfg.DatabaseMigrationsEnabled {
			a.infra.AddDependency(&startup.Func{
				Name:     depMigrations,
				Requires: []string{depPostgres},
				OnStart: func(context.Context) error {
					migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
						Files:        db.Migrations,
						Path:         db.MigrationsPath,
						Version:      uint(cfg.DatabaseMigrationVersion),
						Force:        cfg.DatabaseMigrationForce,
						AutoRollback: cfg.DatabaseMigrationAutoRollback,
					})
					return migrations.MigratePostgres(a.db.DB.DB, cfg.DatabaseName)
				},
			})
		}
	}

	if cfg.RedisEnabled() {
		a.infra.AddDependency(&startup.Func{
			Name: depRedis,
			OnStart: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, a.logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			OnStop: func(context.Context) error {
				if a.redis == nil {
					return nil
				}
				return a.redis.Close()
			},
		})
	}

	if cfg.KafkaProducerEnabled {
		a.infra.AddDependency(&startup.Func{
			Name: depProducer,
			OnStart: func(context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, a.logger)
				return nil
			},
			OnStop: func(context.Context) error {
				if a.producer == nil {
					return nil
				}
				return a.producer.Close()
			},
		})
	}

	if cfg.GraphEnabled {
		a.infra.AddDependency(&startup.Func{
			Name: depGraph,
			OnStart: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, a.logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return fmt.Errorf("graph database unreachable: %w", err)
				}
				if err := graph.NewProjector(client, a.logger).EnsureSchema(ctx, client); err != nil {
					_ = client.Close(ctx)
					return err
				}
				a.graph = client
				return nil
			},
			OnStop: func(ctx context.Context) error {
				if a.graph == nil {
					return nil
				}
				return a.graph.Close(ctx)
			},
		})
	}
}

// assemble builds the identity service and HTTP server on top of the started infrastructure.
func (a *App) assemble() error {
	cfg := a.cfg

	emailNormalizer, err := normalizers.Chain(cfg.EmailNormalizers...)
	if err != nil {
		return fmt.Errorf("invalid EMAIL_NORMALIZERS: %w", err)
	}
	phoneNormalizer, err := normalizers.Chain(cfg.PhoneNormalizers...)
	if err != nil {
		return fmt.Errorf("invalid PHONE_NORMALIZERS: %w", err)
	}

	var store identity.Store
	var transactor identity.Transactor
	var dbCheck health.Check

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		memory := contact.NewMemoryStore()
		store, transactor = memory, memory
		a.logger.Warn("Contacts are kept in memory and will be lost on restart")
	default:
		repo := contact.NewRepository(a.db, a.logger, contact.Options{
			LockTimeout:   cfg.IdentifyLockTimeout,
			AdvisoryLocks: cfg.LockStrategy == config.LockStrategyAdvisory,
		})
		store, transactor = repo, repo
		dbCheck = a.db.PingContext
	}

	if cfg.LockStrategy == config.LockStrategyRedis {
		locker := redis.NewLocker(a.redis, "", cfg.RedisLockTTL, cfg.IdentifyLockTimeout)
		transactor = identity.WithKeyLocks(locker, transactor)
	}

	var observers []identity.Observer
	if a.producer != nil {
		observers = append(observers, events.NewEmitter(a.producer, a.logger))
	}
	if a.graph != nil {
		observers = append(observers, graph.NewProjector(a.graph, a.logger))
	}

	a.identity = identity.NewService(a.logger, store, transactor, identity.Config{
		EmailNormalizer: emailNormalizer,
		PhoneNormalizer: phoneNormalizer,
	}, observers...)

	container, err := inject.NewContainer(a.logger)
	if err != nil {
		return fmt.Errorf("failed to create dependency container: %w", err)
	}
	if err := ectoinject.RegisterInstance[*identity.Service](container, a.identity); err != nil {
		return fmt.Errorf("failed to register identity service: %w", err)
	}
	a.containerID = container.GetContainerID()

	a.checker = health.NewChecker(dbCheck, cfg.Version)
	if a.redis != nil {
		a.checker.AddCheck("redis", a.redis.Ping)
	}
	if a.graph != nil {
		a.checker.AddCheck("graph", a.graph.VerifyConnectivity)
	}

	a.echo = a.newEcho()

	if cfg.KafkaConsumerEnabled {
		handler := processor.NewProcessor(a.logger, a.identity)
		a.workers.AddDependency(&startup.Func{
			Name: depConsumer,
			OnStart: func(ctx context.Context) error {
				a.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
					Brokers:       cfg.KafkaBrokers,
					Topic:         cfg.KafkaInputTopic,
					ConsumerGroup: cfg.KafkaConsumerGroup,
				}, a.logger, handler.ProcessMessage)
				return a.consumer.Start(context.WithoutCancel(ctx))
			},
			OnStop: func(context.Context) error {
				if a.consumer == nil {
					return nil
				}
				return a.consumer.Stop()
			},
		})
		a.checker.AddCheck("kafka-consumer", func(context.Context) error {
			if a.consumer == nil || !a.consumer.Health() {
				return errors.New("consumer not running")
			}
			return nil
		})
	}

	return nil
}

func (a *App) newEcho() *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger, health.QuietRoutes()...))
	e.Use(middleware.Container(a.containerID))

	a.checker.RegisterRoutes(e)
	if cfg.MetricsEnabled {
		metrics.RegisterRoutes(e)
	}
	identify.RegisterRoutes(e)
	contactroutes.Register(e.Group("/api/v1/contacts"))

	return e
}
