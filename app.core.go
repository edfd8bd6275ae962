package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/boltdb/bolt"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger         *zap.Logger
	config         *Config
	server         *http.Server
	cleanups       []func() error
	queueConsumers []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp(configFile, envFile string) (AppProvider, error) {
	config, err := LoadAndInitConfigs(configFile, envFile, GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %w", err)
	}

	clock := NewClock(config.IsProduction)
	logWriter, err := NewRSyncWriter(config, clock)
	if err != nil {
		return nil, err
	}
	logger, flusher := SetupLogging(config, logWriter, clock)
	app := &App{
		logger:   logger,
		config:   config,
		cleanups: []func() error{logWriter.Close, flusher},
	}

	// Setup the connection to redis and boltDB only when some component relies on them.
	var redisClient *redis.Client
	if config.NeedsRedis() {
		redisClient, err = GetRedisClient(config)
		if err != nil {
			app.Clean()
			return nil, fmt.Errorf("failed to connect to redis server: %w", err)
		}
		app.cleanups = append(app.cleanups, redisClient.Close)
	}

	var boltDBClient *bolt.DB
	if config.NeedsBoltDB() {
		boltDBClient, err = GetBoltDBClient(config)
		if err != nil {
			app.Clean()
			return nil, fmt.Errorf("failed to open boltDB database: %w", err)
		}
		app.cleanups = append(app.cleanups, boltDBClient.Close)
	}

	storage, err := NewLibraryStorage(context.Background(), logger, config, redisClient, boltDBClient)
	if err != nil {
		app.Clean()
		return nil, fmt.Errorf("failed to setup %s storage: %w", config.Storage.Backend, err)
	}
	app.cleanups = append(app.cleanups, storage.Close)

	// Setup the lending journal with its queue and consumer.
	var queue Queuer
	var journal Journal
	if config.Journal.Enable {
		journal, err = NewBoltJournal(boltDBClient, config.Journal.BucketName)
		if err != nil {
			app.Clean()
			return nil, fmt.Errorf("failed to setup lending journal: %w", err)
		}
		if config.Journal.Queue == RedisBackend {
			queue = NewRedisQueue(redisClient, config.Redis.KeyPrefix)
		} else {
			queue = NewMemoryQueue(config.Journal.BufferSize)
		}
		consumer := NewJournalConsumer(logger, queue, journal)
		app.queueConsumers = append(app.queueConsumers, func(ctx context.Context) error {
			return consumer.Consume(ctx, EventQueues...)
		})
	}

	hasher, err := NewPasswordHasher(config.Auth)
	if err != nil {
		app.Clean()
		return nil, err
	}

	idsHandler := NewIDsHandler()
	libraryService := NewLibraryService(
		logger,
		config,
		clock,
		idsHandler,
		hasher,
		NewRandomTokenGenerator(config.Auth.TokenBytes),
		storage,
		queue,
	)
	apiService := NewAPIHandler(
		logger,
		config,
		&Statistics{
			version:   config.GitTag,
			container: IsAppRunningInDocker(),
			started:   clock.Now(),
			runtime:   runtime.Version(),
			platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		clock,
		idsHandler,
		libraryService,
		journal,
	)

	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		apiService.stats.version = config.GitCommit
	}

	// Build the map of middlewares stacks.
	middlewaresPublic, middlewaresOps := apiService.MiddlewaresStacks()

	// Configure the endpoints with their handlers and middlewares.
	router := apiService.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public: middlewaresPublic.Chain,
			ops:    middlewaresOps.Chain,
		},
	)
	// Wrap the router with the default http timeout handler.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")

	// Build the api server definition.
	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        routerWithTimeout,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
	}

	logger.Info("app initialized",
		zap.String("app.storage", config.Storage.Backend),
		zap.Bool("app.journal", config.Journal.Enable),
		zap.String("app.hasher", config.Auth.PasswordHasher),
	)
	return app, nil
}

// NewLibraryStorage builds the configured storage backend.
func NewLibraryStorage(ctx context.Context, logger *zap.Logger, config *Config, redisClient *redis.Client, boltDBClient *bolt.DB) (LibraryStorage, error) {
	switch config.Storage.Backend {
	case RedisBackend:
		return NewRedisLibraryStorage(logger, redisClient, config.Redis.KeyPrefix), nil
	case BoltBackend:
		return NewBoltLibraryStorage(logger, boltDBClient)
	case SQLBackend:
		db, err := GetSQLDB(config)
		if err != nil {
			return nil, err
		}
		storage, err := NewSQLLibraryStorage(ctx, logger, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return storage, nil
	case MemoryBackend:
		return NewMemoryLibraryStorage(), nil
	}
	return nil, fmt.Errorf("unsupported storage backend %q", config.Storage.Backend)
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.ConsumeQueues(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions in reverse order.
func (app *App) Clean() {
	for i := len(app.cleanups) - 1; i >= 0; i-- {
		if err := app.cleanups[i](); err != nil {
			app.logger.Warn("cleanup failed", zap.Error(err))
		}
	}
	app.cleanups = nil
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
		)
		err := app.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// It states the reason of its call. We proceed with a brutal shutdown if the
// the graceful did not complete successfully. We explicitly return `nil` to
// allow the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			app.logger.Info("api server graceful shutdown succeeded")
		case errors.Is(err, context.DeadlineExceeded):
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		return nil
	}
}

// ConsumeQueues runs all queue consumers into separate controlled goroutines.
func (app *App) ConsumeQueues(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, consume := range app.queueConsumers {
			consume := consume
			g.Go(func() error {
				return consume(gCtx)
			})
		}
		return nil
	}
}
