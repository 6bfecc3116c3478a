package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tgwarden/warden/automod/cachestore"
	"github.com/tgwarden/warden/automod/command"
	"github.com/tgwarden/warden/automod/consumer"
	"github.com/tgwarden/warden/automod/countstore"
	"github.com/tgwarden/warden/automod/dispatch"
	"github.com/tgwarden/warden/automod/engine"
	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/automod/recordstore"
	"github.com/tgwarden/warden/automod/telegram"
	"github.com/tgwarden/warden/botapi"
	"github.com/tgwarden/warden/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Server struct {
	logger     *slog.Logger
	client     *botapi.Client
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	consumer   *consumer.UpdateConsumer
	records    recordstore.RecordStore
	rdb        *redis.Client
	httpd      *http.Server
}

type Config struct {
	Logger              *slog.Logger
	TelegramHost        string
	TelegramToken       string
	TelegramRateLimit   float64
	OperatorID          event.SenderID
	RecordStoreURL      string
	RedisURL            string
	MaxDBConnections    int
	DBTracing           bool
	ModerateGroups      bool
	ReplyUnauthorized   bool
	DeleteBanned        bool
	ForwardFirstContact bool
	CommandPrefixes     []string
	MaxWarnings         int
	SlackWebhookURL     string
	Bind                string
	Workers             int
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("a Bot API token is required")
	}
	if config.OperatorID <= 0 {
		return nil, fmt.Errorf("an operator id is required")
	}

	records, err := openRecordStore(config.RecordStoreURL, config.MaxDBConnections, config.DBTracing)
	if err != nil {
		return nil, err
	}
	logger.Info("opened record store", "store", storeScheme(config.RecordStoreURL))

	var counters countstore.CountStore
	var cache cachestore.CacheStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		// shared by the cursor, counters and handle cache
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		_, err = rdb.Ping(context.TODO()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}

		counters = countstore.NewRedisCountStore(rdb)
		cache = cachestore.NewRedisCacheStore(rdb, 24*time.Hour)
	} else {
		counters = countstore.NewMemCountStore()
		cache = cachestore.NewMemCacheStore(5_000, 24*time.Hour)
	}

	client := botapi.NewClient(config.TelegramHost, config.TelegramToken, config.TelegramRateLimit)
	transport := telegram.NewTransport(client, logger)

	var notifiers []engine.Notifier
	if config.SlackWebhookURL != "" {
		notifiers = append(notifiers, &engine.SlackNotifier{SlackWebhookURL: config.SlackWebhookURL})
	}

	eng := engine.Engine{
		Logger:    logger,
		Records:   records,
		Counters:  counters,
		Cache:     cache,
		Notifiers: notifiers,
		Config: engine.EngineConfig{
			OperatorID:     config.OperatorID,
			ModerateGroups: config.ModerateGroups,
			DeleteBanned:   config.DeleteBanned,
			MaxWarnings:    config.MaxWarnings,
		},
	}
	cmds := &command.Commands{
		Records:   records,
		Counters:  counters,
		Cache:     cache,
		Transport: transport,
		Config: command.Config{
			Operator:    config.OperatorID,
			MaxWarnings: config.MaxWarnings,
		},
		Logger: logger,
	}
	disp := dispatch.NewDispatcher(&eng, cmds, transport, dispatch.Config{
		Operator:            config.OperatorID,
		Prefixes:            config.CommandPrefixes,
		ReplyUnauthorized:   config.ReplyUnauthorized,
		ForwardFirstContact: config.ForwardFirstContact,
	}, logger)

	s := &Server{
		logger:     logger,
		client:     client,
		engine:     &eng,
		dispatcher: disp,
		records:    records,
		rdb:        rdb,
		consumer: &consumer.UpdateConsumer{
			Parallelism: config.Workers,
			Logger:      logger,
			RedisClient: rdb,
			Source:      client,
			Handler:     disp,
		},
	}
	s.httpd = &http.Server{
		Handler:        otelhttp.NewHandler(s.newEcho(), "warden"),
		Addr:           config.Bind,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1024 * 1024,
	}
	return s, nil
}

// Selects a record store backend by URL scheme.
func openRecordStore(storeURL string, maxConns int, dbtracing bool) (recordstore.RecordStore, error) {
	switch {
	case storeURL == "" || storeURL == "memory://":
		return recordstore.NewMemRecordStore(), nil
	case strings.HasPrefix(storeURL, "pebble://"):
		path := strings.TrimPrefix(storeURL, "pebble://")
		if path == "" {
			return nil, fmt.Errorf("pebble record store needs a directory")
		}
		return recordstore.NewPebbleRecordStore(path)
	case strings.HasPrefix(storeURL, "redis://"), strings.HasPrefix(storeURL, "rediss://"):
		return recordstore.NewRedisRecordStore(storeURL)
	case strings.HasPrefix(storeURL, "sqlite"), strings.HasPrefix(storeURL, "postgres"):
		db, err := cliutil.SetupDatabase(storeURL, maxConns)
		if err != nil {
			return nil, fmt.Errorf("opening record database: %w", err)
		}
		if dbtracing {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return nil, err
			}
		}
		return recordstore.NewGormRecordStore(db)
	default:
		return nil, fmt.Errorf("unsupported record store: %s", storeScheme(storeURL))
	}
}

// Scheme part of a store URL, safe to log.
func storeScheme(storeURL string) string {
	for _, sep := range []string{"://", "="} {
		if i := strings.Index(storeURL, sep); i > 0 {
			return storeURL[:i]
		}
	}
	return "memory"
}

func (s *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(echoprometheus.NewMiddleware("warden"))

	e.GET("/", s.HandleKeepAlive)
	e.GET("/_health", s.HandleHealthCheck)
	return e
}

func (s *Server) HandleKeepAlive(c echo.Context) error {
	return c.String(http.StatusOK, "warden is alive")
}

type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Message string `json:"msg,omitempty"`
}

func (s *Server) HandleHealthCheck(c echo.Context) error {
	if _, err := s.records.Get(c.Request().Context(), s.engine.Config.OperatorID); err != nil {
		s.logger.Error("health check failed", "err", err)
		return c.JSON(http.StatusInternalServerError, HealthStatus{
			Status:  "error",
			Version: versioninfo.Short(),
			Message: "record store unavailable",
		})
	}
	return c.JSON(http.StatusOK, HealthStatus{
		Status:  "ok",
		Version: versioninfo.Short(),
	})
}

// Checks the token, then runs the update consumer and the HTTP server until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	me, err := s.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("checking Bot API token: %w", err)
	}
	s.logger.Info("connected to Bot API", "bot", me.Username, "botID", me.ID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.consumer.Run(ctx)
	})
	g.Go(func() error {
		return s.consumer.RunPersistCursor(ctx)
	})
	g.Go(func() error {
		s.logger.Info("starting HTTP server", "bind", s.httpd.Addr)
		if err := s.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpd.Shutdown(sctx)
	})
	err = g.Wait()
	s.logger.Info("graceful shutdown complete")
	return err
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (s *Server) Close() error {
	var errs []error
	if err := s.records.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
