/**
 * @description
 * This is the main entry point for the camp-portal. It loads configuration, builds the
 * camp backend client and the workflow service, picks how participant-count tasks are
 * delivered (database outbox, broker, or direct call) from what is configured, and serves
 * the HTTP API until it receives a shutdown signal.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL pool for the task outbox.
 * - github.com/redis/go-redis/v9: Submission lock.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/campclient, pkg/rabbitmq: Camp backend and broker clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/medicamp/camp-portal/internal/api"
	"github.com/medicamp/camp-portal/internal/app"
	"github.com/medicamp/camp-portal/internal/config"
	"github.com/medicamp/camp-portal/internal/metrics"
	"github.com/medicamp/camp-portal/internal/session"
	"github.com/medicamp/camp-portal/internal/store"
	"github.com/medicamp/camp-portal/pkg/campclient"
	rmrabbit "github.com/medicamp/camp-portal/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
)

const serviceIdentityEmail = "camp-portal@service.local"

type taskDelivery int

const (
	deliveryDirect taskDelivery = iota
	deliveryBroker
	deliveryOutbox
)

// chooseTaskDelivery picks how participant-count tasks leave a registration. The outbox
// dispatcher dials its own producer, so only deliveryBroker opens one at startup.
func chooseTaskDelivery(hasDatabase, hasBroker bool) taskDelivery {
	switch {
	case hasDatabase && hasBroker:
		return deliveryOutbox
	case hasBroker:
		return deliveryBroker
	default:
		return deliveryDirect
	}
}

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if cfg.CampAPIBaseURL == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"camp api base url must be configured\" env=CAMP_API_BASE_URL")
	}
	if cfg.JWKSURL == "" {
		log.Println("level=warn component=bootstrap msg=\"jwks url missing; every authenticated request will be rejected\" env=JWKS_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting camp-portal\" port=%s camp_api=%s", cfg.ServerPort, cfg.CampAPIBaseURL)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	campClient := campclient.NewClient(cfg.CampAPIBaseURL, cfg.CampAPITimeout())

	if cfg.ServiceAPIToken == "" {
		log.Println("level=warn component=bootstrap msg=\"service api token missing; background participant-count increments run unauthenticated\" env=SERVICE_API_TOKEN")
	}
	serviceSession := session.New(session.Identity{Email: serviceIdentityEmail, DisplayName: "camp-portal"}, cfg.ServiceAPIToken)

	var dbpool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		dbpool, err = pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
		}
		defer dbpool.Close()

		migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), time.Minute)
		err = store.RunMigrations(migrateCtx, dbpool)
		cancelMigrate()
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database migration failed\" err=%v", err)
		}
		log.Println("level=info component=bootstrap msg=\"database connected\"")
	}

	var (
		tasks     app.ParticipantTaskQueue
		scheduler *app.Scheduler
	)
	delivery := chooseTaskDelivery(dbpool != nil, cfg.RabbitMQURL != "")
	if delivery == deliveryBroker {
		rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using direct calls\" err=%v", err)
			delivery = deliveryDirect
		} else {
			defer rabbitProducer.Close()
			tasks = app.NewPublisherTaskQueue(rabbitProducer)
			log.Println("level=info component=bootstrap msg=\"participant tasks publish directly to rabbitmq\"")
		}
	}

	switch delivery {
	case deliveryOutbox:
		outboxRepo := store.NewPostgresOutboxRepository(dbpool)
		tasks = app.NewOutboxTaskQueue(outboxRepo)

		dispatcher := app.NewOutboxDispatcher(outboxRepo, func() (app.ClosablePublisher, error) {
			return rmrabbit.NewEventProducer(cfg.RabbitMQURL)
		})
		defer dispatcher.Close()

		scheduler = app.NewScheduler(dispatcher, cfg.OutboxFlushSchedule, logger)
		if err := scheduler.Start(); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"outbox scheduler start failed\" err=%v", err)
		}
		log.Println("level=info component=bootstrap msg=\"participant tasks use the database outbox\"")
	case deliveryDirect:
		tasks = app.NewDirectTaskQueue(campClient, serviceSession)
		log.Println("level=warn component=bootstrap msg=\"no database or broker in use; participant counts are updated inline without retry\"")
	}

	var submissionLock app.SubmissionLock
	if cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; submission lock disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; submission lock disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				submissionLock = app.NewRedisSubmissionLock(redisClient, cfg.RedisLockPrefix)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	portalService := app.NewService(campClient, tasks, submissionLock)
	portalService.SetSubmissionLockTTL(cfg.SubmissionLockTTL())

	if cfg.RabbitMQURL != "" {
		rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; queued participant tasks wait for another replica\" err=%v", err)
		} else {
			defer rabbitConsumer.Close()
			participantConsumer := app.NewParticipantCountConsumer(campClient, serviceSession)
			bindings := map[string]rmrabbit.Handler{
				app.ParticipantCountRoutingKey: participantConsumer.HandleDelivery,
			}
			if err := rabbitConsumer.ConsumeWithBindings(app.CampEventsExchange, cfg.ParticipantCountQueue, bindings); err != nil {
				log.Fatalf("level=fatal component=bootstrap msg=\"participant consumer start failed\" err=%v", err)
			}
		}
	}

	handlers := api.NewHandlers(portalService)
	verifier := api.NewTokenVerifier(cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTAudience)
	router := api.NewRouter(handlers, verifier, cfg.Origins(), metrics.Handler())

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
