package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jaevor/go-nanoid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/numbers-window/internal/events"
	eventstore "github.com/serroba/numbers-window/internal/events/store"
	"github.com/serroba/numbers-window/internal/handlers"
	"github.com/serroba/numbers-window/internal/health"
	"github.com/serroba/numbers-window/internal/logging"
	"github.com/serroba/numbers-window/internal/messaging"
	"github.com/serroba/numbers-window/internal/metrics"
	"github.com/serroba/numbers-window/internal/middleware"
	"github.com/serroba/numbers-window/internal/ratelimit"
	"github.com/serroba/numbers-window/internal/store"
	"github.com/serroba/numbers-window/internal/upstream"
	"github.com/serroba/numbers-window/internal/window"
	"go.uber.org/zap"
)

const (
	metricsNamespace  = "numbers_window"
	consumerGroupName = "numbers-window-audit"
	requestIDLength   = 21
)

var errNoEventSource = errors.New("no event source: configure redis or register the publisher package")

// LoggerPackage provides the zap logger.
func LoggerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		return logging.NewLogger(opts.LogFormat, opts.LogLevel)
	})
}

// RedisPackage provides the optional Redis connection.
func RedisPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*RedisConn, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.RedisAddr == "" {
			return &RedisConn{}, nil
		}

		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()

			return nil, fmt.Errorf("connect to redis at %s: %w", opts.RedisAddr, err)
		}

		return &RedisConn{Client: client}, nil
	})
}

// PostgresPackage provides the optional PostgreSQL pool.
func PostgresPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*PostgresConn, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.DatabaseURL == "" {
			return &PostgresConn{}, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, fmt.Errorf("connect to postgres: %w", err)
		}

		return &PostgresConn{Pool: pool}, nil
	})
}

// MetricsPackage provides the Prometheus registry and the metrics recorder.
func MetricsPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*prometheus.Registry, error) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		return reg, nil
	})

	do.Provide(injector, func(i *do.Injector) (metrics.Recorder, error) {
		reg := do.MustInvoke[*prometheus.Registry](i)

		return metrics.NewProm(metricsNamespace, reg), nil
	})
}

// WindowPackage provides the per-category window store.
func WindowPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*window.Store, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.WindowSize < 1 {
			return nil, fmt.Errorf("window size must be positive, got %d", opts.WindowSize)
		}

		recorder := do.MustInvoke[metrics.Recorder](i)

		return window.NewStore(opts.WindowSize, window.WithRecorder(recorder)), nil
	})
}

// UpstreamPackage provides the numbers provider client.
func UpstreamPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (upstream.Fetcher, error) {
		opts := do.MustInvoke[*Options](i)

		var clientOpts []upstream.Option
		if opts.UpstreamToken != "" {
			clientOpts = append(clientOpts, upstream.WithToken(opts.UpstreamToken))
		}

		return upstream.NewClient(opts.UpstreamURL, opts.FetchTimeout(), clientOpts...), nil
	})
}

// RateLimitPackage provides the per-client limiter. Counters live in Redis
// when it is configured so that limits hold across instances.
func RateLimitPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (ratelimit.Limiter, error) {
		opts := do.MustInvoke[*Options](i)
		conn := do.MustInvoke[*RedisConn](i)

		var s ratelimit.Store = store.NewRateLimitMemoryStore()
		if conn.Enabled() {
			s = store.NewRateLimitRedisStore(conn.Client)
		}

		return ratelimit.NewSlidingWindowLimiter(s, int64(opts.RateLimit), time.Minute), nil
	})
}

// PublisherPackage provides the window event publisher: Redis streams when
// Redis is configured, an in-process channel otherwise.
func PublisherPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		conn := do.MustInvoke[*RedisConn](i)
		logger := do.MustInvoke[*zap.Logger](i)
		adapter := logging.NewWatermillAdapter(logger)

		if !conn.Enabled() {
			return messaging.NewPublisherGroup(gochannel.NewGoChannel(gochannel.Config{}, adapter)), nil
		}

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: conn.Client}, adapter)
		if err != nil {
			return nil, fmt.Errorf("create redis stream publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(injector, func(i *do.Injector) (messaging.Publish[events.WindowEvent], error) {
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return messaging.NewPublishFunc[events.WindowEvent](group.Publisher(), events.TopicWindowUpdated), nil
	})
}

// HTTPPackage provides the router and the huma API with every route registered.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	// Shutting the handler down drains its in-flight event publishes.
	do.Provide(injector, func(i *do.Injector) (*handlers.NumbersHandler, error) {
		opts := do.MustInvoke[*Options](i)

		return handlers.NewNumbersHandler(
			do.MustInvoke[*window.Store](i),
			do.MustInvoke[upstream.Fetcher](i),
			do.MustInvoke[messaging.Publish[events.WindowEvent]](i),
			do.MustInvoke[*zap.Logger](i),
			handlers.WithTimeout(opts.FetchTimeout()),
			handlers.WithWindowSize(opts.WindowSize),
			handlers.WithRecorder(do.MustInvoke[metrics.Recorder](i)),
		), nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)
		registry := do.MustInvoke[*prometheus.Registry](i)

		newID, err := nanoid.Standard(requestIDLength)
		if err != nil {
			return nil, fmt.Errorf("create request id generator: %w", err)
		}

		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		cfg := huma.DefaultConfig("Numbers Window", "1.0.0")
		// Responses keep the plain {windowPrevState, ...} shape without a $schema link.
		cfg.CreateHooks = nil

		api := humachi.New(router, cfg)
		api.UseMiddleware(
			middleware.RequestMeta(api, newID),
			middleware.AccessLog(logger),
		)

		if opts.RateLimit > 0 {
			limiter := do.MustInvoke[ratelimit.Limiter](i)
			api.UseMiddleware(middleware.RateLimiter(api, limiter, logger))
		}

		numbersHandler := do.MustInvoke[*handlers.NumbersHandler](i)
		handlers.RegisterRoutes(api, numbersHandler)

		var healthOpts []health.Option
		if conn := do.MustInvoke[*RedisConn](i); conn.Enabled() {
			healthOpts = append(healthOpts, health.WithRedis(health.NewRedisChecker(conn.Client)))
		}

		health.RegisterRoutes(api, health.NewHandler(healthOpts...))

		return api, nil
	})
}

// ConsumerGroupPackage provides the consumers that persist window events.
// They read Redis streams when Redis is configured and the in-process
// publisher channel otherwise. Events go to PostgreSQL when configured and
// to the log otherwise.
func ConsumerGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (events.Store, error) {
		conn := do.MustInvoke[*PostgresConn](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if conn.Pool == nil {
			logger.Warn("no database configured, window events are only logged")

			return eventstore.NewNoop(logger), nil
		}

		pg := eventstore.NewPostgres(conn.Pool)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}

		return pg, nil
	})

	do.Provide(injector, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		logger := do.MustInvoke[*zap.Logger](i)
		eventStore := do.MustInvoke[events.Store](i)

		subscriber, err := newEventSubscriber(i, logger)
		if err != nil {
			return nil, err
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(events.NewConsumer(subscriber, eventStore, logger))

		return group, nil
	})
}

func newEventSubscriber(i *do.Injector, logger *zap.Logger) (message.Subscriber, error) {
	if conn := do.MustInvoke[*RedisConn](i); conn.Enabled() {
		return newStreamSubscriber(conn.Client, logging.NewWatermillAdapter(logger))
	}

	publishers, err := do.Invoke[*messaging.PublisherGroup](i)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errNoEventSource, err)
	}

	subscriber, ok := publishers.Publisher().(message.Subscriber)
	if !ok {
		return nil, errNoEventSource
	}

	logger.Info("consuming window events in-process")

	return subscriber, nil
}

func newStreamSubscriber(client *redis.Client, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		ConsumerGroup: consumerGroupName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create redis stream subscriber: %w", err)
	}

	return subscriber, nil
}
