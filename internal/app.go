package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/config"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/kafka"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/live"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/metrics"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/rest"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/services"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/session"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/store"
)

const bootTimeout = 15 * time.Second

// App centralizes dependency wiring for the tracker service.
type App struct {
	cfg    config.Config
	logger zerolog.Logger

	metrics   *metrics.Metrics
	redis     *redis.Client
	mongo     *mongo.Client
	bridge    *live.BridgeClient
	publisher *kafka.DeadLetterPublisher
	consumer  *kafka.DeadLetterConsumer

	merger   *services.HistoryMerger
	tracker  *services.Tracker
	recovery *services.RecoveryService

	httpServer *http.Server
}

// NewApp connects the stores, loads the tracked streamers and builds every service.
func NewApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger, metrics: metrics.New()}

	bootCtx, cancel := context.WithTimeout(ctx, bootTimeout)
	defer cancel()

	mongoClient, err := store.ConnectMongo(bootCtx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	a.mongo = mongoClient
	histStore := store.NewMongoHistoryStore(mongoClient.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))

	streamers, err := a.loadStreamers(bootCtx)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	if len(streamers) == 0 {
		logger.Warn().Msg("no streamers to track")
	}

	a.merger = services.NewHistoryMerger(histStore, services.MergeConfig{
		MaxAttempts:    cfg.MergeMaxAttempts,
		InitialBackoff: cfg.MergeInitialBackoff,
	}, a.metrics, logger)

	// Pumps outlive ctx so live sessions can still be flushed on shutdown;
	// cleanup stops them.
	a.bridge = live.NewBridgeClient(context.Background(), cfg.LiveBridgeURL, cfg.LiveSessionID, logger)

	opts := []services.TrackerOption{}
	if cfg.KafkaEnabled() {
		a.publisher = kafka.NewDeadLetterPublisher(cfg)
		a.consumer = kafka.NewDeadLetterConsumer(cfg, logger)
		a.recovery = services.NewRecoveryService(a.consumer, a.merger, cfg.RecoveryRetryDelay, logger)
		opts = append(opts, services.WithDeadLetters(a.publisher))
	}

	a.tracker = services.NewTracker(streamers, a.bridge, session.NewRegistry(), a.merger, services.TrackerConfig{
		PollInterval:    cfg.PollInterval,
		ConnectPacing:   cfg.ConnectPacing,
		NotLiveCooldown: cfg.NotLiveCooldown,
		ConnectTimeout:  cfg.ConnectTimeout,
		StateTimeout:    cfg.StateTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, a.metrics, logger, opts...)

	return a, nil
}

func (a *App) loadStreamers(ctx context.Context) ([]string, error) {
	var src store.StreamerSource
	if a.cfg.StreamerSetKey != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		src = store.NewRedisStreamerSource(a.redis, a.cfg.StreamerSetKey)
	} else {
		src = store.NewFileStreamerSource(a.cfg.StreamersFile)
	}
	streamers, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load streamers: %w", err)
	}
	a.logger.Info().Strs("streamers", streamers).Msg("tracked streamers loaded")
	return streamers, nil
}

// Run starts background services and blocks until ctx cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.tracker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("run tracker: %w", err)
		}
		return nil
	})

	if a.recovery != nil {
		g.Go(func() error {
			if err := a.recovery.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run recovery: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.runHTTPServer(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

func (a *App) runHTTPServer(ctx context.Context) error {
	r, srv := rest.NewServer(a.cfg, a.metrics.Handler())
	a.httpServer = srv
	streamers := rest.NewStreamerController(a.tracker, a.merger)
	streamers.RegisterStreamerRoutes(r.Group(""))

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", srv.Addr).Msg("HTTP server started")
		serverErr <- srv.ListenAndServe()
	}()

	select {
	// App context shutdown:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		err := <-serverErr
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	// HTTP server error:
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (a *App) cleanup() {
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			a.logger.Error().Err(err).Msg("error closing live bridge")
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error().Err(err).Msg("error closing Kafka consumer")
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error().Err(err).Msg("error closing Kafka publisher")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("error closing Redis client")
		}
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.logger.Error().Err(err).Msg("error disconnecting Mongo client")
		}
	}
}
