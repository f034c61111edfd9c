/**
 * @description
 * This is the main entry point for the member device-security service. It
 * wires the device stores, the authentication core and the local HTTP bridge
 * that the app shell talks to, then runs until it receives a shutdown signal.
 *
 * @dependencies
 * - github.com/joho/godotenv: local .env loading.
 * - github.com/rs/zerolog: structured logging.
 * - github.com/jackc/pgx/v5/pgxpool, github.com/redis/go-redis/v9: optional general stores.
 */
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Egie02/Client-sub000/internal/api"
	"github.com/Egie02/Client-sub000/internal/app"
	"github.com/Egie02/Client-sub000/internal/config"
	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/Egie02/Client-sub000/internal/store"
	"github.com/Egie02/Client-sub000/pkg/memberclient"
	"github.com/Egie02/Client-sub000/pkg/rabbitmq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// headlessSensor is used when no host biometric API is attached; it reports
// no hardware so every biometric path falls back to PIN entry.
type headlessSensor struct{}

func (headlessSensor) HasHardware(ctx context.Context) (bool, error) { return false, nil }
func (headlessSensor) IsEnrolled(ctx context.Context) (bool, error)  { return false, nil }
func (headlessSensor) SupportedModalities(ctx context.Context) ([]domain.Modality, error) {
	return nil, nil
}
func (headlessSensor) Authenticate(ctx context.Context, opts domain.PromptOptions) (app.SensorResult, error) {
	return app.SensorResult{Error: domain.BiometricErrNotAvailable}, nil
}

func main() {
	// Load .env for local development; ignore if missing.
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "member-device-security").Logger()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		logger = logger.Level(level)
	}

	ctx := context.Background()

	general, secureInner, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open device stores")
	}
	defer closeStores()

	var sealed store.SecureBackend
	if key := cfg.SecureStoreMasterKey(); key != nil {
		backend, err := store.NewSealedBackend(secureInner, key)
		if err != nil {
			logger.Warn().Err(err).Msg("secure store disabled")
		} else {
			sealed = backend
		}
	}
	router := store.NewRouter(general, store.SelectSecureBackend(sealed), logger, store.WithOperationTimeout(cfg.StorageTimeout()))

	// Security events go to RabbitMQ when it is reachable; otherwise they are logged.
	var producer rabbitmq.Publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("RabbitMQ unavailable; security events will be logged only")
		} else {
			producer = p
			logger.Info().Msg("RabbitMQ producer connected")
		}
	}
	defer producer.Close()
	events := app.NewSecurityEvents(producer, cfg.SecurityEventsExchange, logger)

	loginAttempts := app.NewLockoutTracker(router, app.LoginScope(cfg.LoginMaxAttempts, cfg.LoginLockout()), nil, logger)
	firstTimeAttempts := app.NewLockoutTracker(router, app.FirstTimePinScope(cfg.FirstTimePinMaxAttempts, cfg.FirstTimePinLockout()), nil, logger)

	vault, err := app.NewCredentialVault(router, cfg.CredentialMaxAge(), nil, events, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create credential vault")
	}
	firstTimePin := app.NewFirstTimePinWorkflow(router, firstTimeAttempts, cfg.DefaultPIN, events, logger)

	bus := app.NewInvalidationBus(logger)
	otcpin := app.NewOTCPINCache(router, cfg.OTCPINCacheTTL(), nil, logger)
	unsubscribe := otcpin.Subscribe(bus)
	defer unsubscribe()

	biometric := app.NewBiometricAuthenticator(headlessSensor{}, cfg.BiometricMaxRetries, logger)
	retries := app.NewRetryRunner(biometric, nil, cfg.BiometricAutoRetries, logger)
	preferences := app.NewBiometricPreferences(router)

	coordinator := app.NewLoginCoordinator(app.LoginDeps{
		Client:        memberclient.NewClient(cfg.APIBaseURL, cfg.APITimeout()),
		Store:         router,
		Vault:         vault,
		LoginAttempts: loginAttempts,
		FirstTimePin:  firstTimePin,
		OTCPIN:        otcpin,
		Bus:           bus,
		Biometric:     biometric,
		Retries:       retries,
		Preferences:   preferences,
		Events:        events,
	}, logger)

	// Housekeeping runs once at startup and then on the configured schedule.
	jobs := app.NewJobs(vault, []*app.LockoutTracker{loginAttempts, firstTimeAttempts}, logger)
	jobs.PurgeStaleCredentials()
	jobs.SweepLockouts()
	scheduler := app.NewScheduler(jobs, cfg.HousekeepingSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.HousekeepingSchedule).Msg("failed to start housekeeping scheduler")
	}

	handlers := api.NewHandlers(coordinator, firstTimePin, biometric, preferences, bus, logger)
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.BridgeRoutes(handlers, cfg.CORSOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("device bridge listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("could not start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	<-scheduler.Stop().Done()
	logger.Info().Msg("service stopped gracefully")
}

// openStores opens the general store and the inner store that backs sealed
// secure values for the configured driver.
func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.KV, store.KV, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn().Msg("using in-memory device store; state is lost on restart")
		return store.NewMemoryKV(), store.NewMemoryKV(), func() {}, nil

	case config.StoreDriverRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, err
		}
		logger.Info().Msg("redis device store connected")
		return store.NewRedisKV(client, cfg.RedisKeyPrefix),
			store.NewRedisKV(client, cfg.RedisKeyPrefix+":secure"),
			func() { client.Close() }, nil

	case config.StoreDriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		general := store.NewPostgresKV(pool, cfg.DeviceNamespace)
		if err := general.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		logger.Info().Msg("postgres device store connected")
		return general, store.NewPostgresKV(pool, cfg.DeviceNamespace+":secure"), pool.Close, nil

	default:
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		general, err := store.NewSQLiteKV(ctx, db, "general_store")
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		secure, err := store.NewSQLiteKV(ctx, db, "secure_store")
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("sqlite device store opened")
		return general, secure, func() { db.Close() }, nil
	}
}
