// @title           SendIT Parcel Service API
// @version         1.0
// @description     Parcel delivery workflow: creation, tracking, courier dispatch and notifications.
// @BasePath        /
//
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Type "Bearer" followed by a space and the JWT.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	_ "github.com/sendit/parcel-service/docs"
	"github.com/sendit/parcel-service/internal/api"
	"github.com/sendit/parcel-service/internal/api/handler"
	"github.com/sendit/parcel-service/internal/core/ports"
	"github.com/sendit/parcel-service/internal/core/service"
	"github.com/sendit/parcel-service/internal/infrastructure/broker/kafka"
	"github.com/sendit/parcel-service/internal/infrastructure/broker/rabbitmq"
	"github.com/sendit/parcel-service/internal/infrastructure/db/memory"
	"github.com/sendit/parcel-service/internal/infrastructure/db/mongo"
	"github.com/sendit/parcel-service/internal/infrastructure/db/postgres"
	"github.com/sendit/parcel-service/internal/infrastructure/db/redis"
	"github.com/sendit/parcel-service/internal/infrastructure/mail"
	"github.com/sendit/parcel-service/internal/infrastructure/queue"
	"github.com/sendit/parcel-service/internal/infrastructure/storage"
	"github.com/sendit/parcel-service/internal/pkg/config"
	"github.com/sendit/parcel-service/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// repositories groups the storage ports of the selected driver.
type repositories struct {
	parcels       ports.ParcelRepository
	tracking      ports.TrackingRepository
	assignments   ports.AssignmentRepository
	users         ports.UserRepository
	notifications ports.NotificationRepository
	health        handler.HealthCheck
	close         func(context.Context) error
}

func main() {
	cfg := config.Load()
	logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "sendit-parcel-service",
		Env:     cfg.Env,
	})
	log := logger.Get()

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Workflow.Location()
	if err != nil {
		return err
	}

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := repos.close(closeCtx); err != nil {
			log.Error().Err(err).Msg("storage close failed")
		}
	}()
	log.Info().Str("driver", cfg.StorageDriver).Msg("storage ready")

	checks := map[string]handler.HealthCheck{"storage": repos.health}

	// Redis backs the tracking cache and notification dedup. Both are
	// optional, so a failed connection only degrades the service.
	var (
		cache ports.TrackingCache
		dedup ports.NotificationDedup
	)
	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running without tracking cache and dedup")
	} else {
		defer rdb.Close()
		cache = redis.NewTrackingCache(rdb, cfg.Redis.TrackTTL)
		dedup = redis.NewNotificationDedup(rdb, cfg.Redis.DedupTTL)
		checks["redis"] = redis.Ping(rdb)
	}

	var publisher ports.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.For("kafka"))
		if err != nil {
			return err
		}
		defer pub.Close()
		publisher = pub
	}

	var mailer ports.Mailer
	if cfg.SMTP.Host != "" {
		m, err := mail.NewSMTPMailer(mail.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		})
		if err != nil {
			return err
		}
		mailer = m
	}

	var photos ports.PhotoStore
	if cfg.MinIO.Endpoint != "" {
		ps, err := storage.NewPhotoStore(ctx, storage.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
			PublicURL: cfg.MinIO.PublicURL,
		})
		if err != nil {
			return err
		}
		photos = ps
	}

	// Notifications are fanned out by a sharded worker pool so jobs for one
	// parcel are handled in order.
	notifier := service.NewNotificationService(repos.users, repos.notifications, mailer, publisher, dedup, logger.For("notifications"))
	dispatcher := queue.NewDispatcher(cfg.Notifications.Workers, cfg.Notifications.Buffer, notifier, logger.For("dispatcher"))
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	dispatcher.Start(workerCtx)

	workflow := service.NewWorkflow(repos.parcels, repos.tracking, repos.assignments, cache, dispatcher, logger.For("workflow"))
	accounts := service.NewAccountService(repos.users, logger.For("accounts"))
	parcels := service.NewParcelService(repos.parcels, repos.tracking, repos.assignments, repos.users,
		accounts, workflow, cache, dispatcher,
		service.ParcelServiceConfig{Currency: cfg.Workflow.Currency, Location: loc},
		logger.For("parcels"))
	couriers := service.NewCourierService(repos.parcels, repos.tracking, repos.assignments, workflow,
		photos, service.StaticRatings{Value: cfg.Workflow.CourierRating},
		service.CourierServiceConfig{PhotoRequired: cfg.Workflow.PhotoRequired, Location: loc},
		logger.For("couriers"))
	payments := service.NewPaymentService(repos.parcels, workflow, logger.For("payments"))

	consumerDone := make(chan struct{})
	if cfg.RabbitMQ.URL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			stopWorkers()
			return fmt.Errorf("rabbitmq dial: %w", err)
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			stopWorkers()
			return fmt.Errorf("rabbitmq channel: %w", err)
		}
		consumer := rabbitmq.NewPaymentConsumer(ch, rabbitmq.Config{
			Exchange: cfg.RabbitMQ.Exchange,
			Queue:    cfg.RabbitMQ.Queue,
		}, payments, logger.For("payments-consumer"))
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("payment consumer stopped")
			}
		}()
	} else {
		close(consumerDone)
	}

	e := api.NewRouter(api.Services{
		Parcels:  parcels,
		Couriers: couriers,
		Dispatch: service.NewDispatchService(repos.parcels, repos.assignments, repos.users, logger.For("dispatch")),
		Payments: payments,
		Users:    accounts,
		Inbox:    notifier,
	}, api.RouterConfig{
		JWTSecret:    cfg.JWTSecret,
		Currency:     cfg.Workflow.Currency,
		HealthChecks: checks,
		Logger:       logger.For("http"),
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	stop()
	<-consumerDone

	// Workers handle the jobs already queued before they exit.
	stopWorkers()
	dispatcher.Wait()
	log.Info().Msg("shutdown complete")
	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	switch cfg.StorageDriver {
	case "mongo":
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		parcels := mongo.NewParcelRepository(client, db)
		return &repositories{
			parcels:       parcels,
			tracking:      parcels,
			assignments:   mongo.NewAssignmentRepository(db),
			users:         mongo.NewUserRepository(db),
			notifications: mongo.NewNotificationRepository(db),
			health:        mongoHealth(client),
			close:         client.Disconnect,
		}, nil

	case "postgres":
		db, err := postgres.Open(ctx, postgres.Config{DSN: cfg.Postgres.DSN, MaxOpenConns: cfg.Postgres.MaxOpenConns})
		if err != nil {
			return nil, err
		}
		parcels := postgres.NewParcelRepository(db)
		return &repositories{
			parcels:       parcels,
			tracking:      parcels,
			assignments:   postgres.NewAssignmentRepository(db),
			users:         postgres.NewUserRepository(db),
			notifications: postgres.NewNotificationRepository(db),
			health:        db.PingContext,
			close:         closeSQL(db),
		}, nil

	case "memory":
		store := memory.NewStore()
		return &repositories{
			parcels:       store.Parcels(),
			tracking:      store.Tracking(),
			assignments:   store.Assignments(),
			users:         store.Users(),
			notifications: store.Notifications(),
			health:        func(context.Context) error { return nil },
			close:         func(context.Context) error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

func mongoHealth(client *mongodrv.Client) handler.HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
}

func closeSQL(db *sql.DB) func(context.Context) error {
	return func(context.Context) error { return db.Close() }
}
