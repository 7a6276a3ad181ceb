package server

import (
	"errors"
	"fmt"
	"os"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/alert"
	"github.com/pwnchaurasia/WayFind-backend/internal/attendance"
	"github.com/pwnchaurasia/WayFind-backend/internal/auth"
	"github.com/pwnchaurasia/WayFind-backend/internal/config"
	"github.com/pwnchaurasia/WayFind-backend/internal/live"
	"github.com/pwnchaurasia/WayFind-backend/internal/location"
	"github.com/pwnchaurasia/WayFind-backend/internal/observability"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"
	"github.com/pwnchaurasia/WayFind-backend/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var ErrNoDatabase = errors.New("postgres storage selected but no pool was provided")

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Log    *zap.Logger

	Directory  ride.Directory
	Feed       *activity.Feed
	Tracker    *attendance.Tracker
	Locations  *location.Service
	Alerts     *alert.Dispatcher
	Aggregator *live.Aggregator

	publisher *activity.KafkaPublisher
}

// stores groups the persistence backends picked by StorageDriver.
type stores struct {
	directory  ride.Directory
	activities activity.Store
	attendance attendance.Store
	locations  location.Store
}

// NewServer builds every service and registers routes for cfg. db may be nil when
// cfg selects the memory driver; redisClient may be nil to disable the
// location cache and cross-instance fan-out.
func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	st, err := newStores(cfg, db)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		st.locations = location.NewCachedStore(st.locations, location.NewRedisCache(redisClient, cfg.LocationCacheTTL), log)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error { return apperr.Write(c, err) },
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(observability.Middleware())

	s := &Server{
		App:       app,
		Cfg:       cfg,
		DB:        db,
		Redis:     redisClient,
		Stream:    stream.NewHub(redisClient, log),
		Log:       log,
		Directory: st.directory,
	}

	feedOpts := activity.FeedOptions{
		Hub:          s.Stream,
		Logger:       log,
		DefaultLimit: cfg.FeedDefaultLimit,
		MaxLimit:     cfg.FeedMaxLimit,
	}
	if len(cfg.KafkaBrokers) > 0 {
		s.publisher = activity.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaActivityTopic)
		feedOpts.Publisher = s.publisher
	}

	s.Feed = activity.NewFeed(st.activities, feedOpts)
	s.Tracker = attendance.NewTracker(st.directory, st.attendance, s.Feed, cfg.DefaultRadiusM, log)
	s.Locations = location.NewService(st.directory, st.locations, s.Tracker, location.Options{
		Hub:            s.Stream,
		StaleThreshold: cfg.StaleThreshold,
		DefaultRadiusM: cfg.DefaultRadiusM,
		Logger:         log,
	})
	s.Alerts = alert.NewDispatcher(st.directory, s.Feed, log)
	s.Aggregator = live.NewAggregator(st.directory, s.Feed, s.Locations, s.Tracker, cfg.SnapshotActivityLimit)

	registerRoutes(s)
	return s, nil
}

func newStores(cfg config.Config, pool *pgxpool.Pool) (stores, error) {
	switch cfg.StorageDriver {
	case DriverMemory:
		dir := ride.NewMemoryDirectory()
		if cfg.DirectoryFixture != "" {
			f, err := os.Open(cfg.DirectoryFixture)
			if err != nil {
				return stores{}, fmt.Errorf("open directory fixture: %w", err)
			}
			defer f.Close()
			if err := dir.LoadFixture(f); err != nil {
				return stores{}, fmt.Errorf("load directory fixture: %w", err)
			}
		}
		events := activity.NewMemoryStore()
		return stores{
			directory:  dir,
			activities: events,
			attendance: attendance.NewMemoryStore(events),
			locations:  location.NewMemoryStore(),
		}, nil
	case DriverPostgres, "":
		if pool == nil {
			return stores{}, ErrNoDatabase
		}
		return stores{
			directory:  ride.NewPostgresDirectory(pool),
			activities: activity.NewPostgresStore(pool),
			attendance: attendance.NewPostgresStore(pool),
			locations:  location.NewPostgresStore(pool),
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", observability.Handler())

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	serviceMiddleware := auth.ServiceKeyMiddleware(s.Cfg.InternalAPIKey)

	api := s.App.Group("/api/v1")
	activity.RegisterRoutes(api, s.Feed, s.Directory, jwtMiddleware)
	attendance.RegisterRoutes(api, s.Tracker, s.Directory, jwtMiddleware)
	location.RegisterRoutes(api, s.Locations, jwtMiddleware)
	alert.RegisterRoutes(api, s.Alerts, s.Directory, jwtMiddleware)
	live.RegisterRoutes(api, s.Aggregator, jwtMiddleware)
	stream.RegisterRoutes(api, s.Stream, s.Directory, jwtMiddleware)

	activity.RegisterInternalRoutes(s.App.Group("/internal"), s.Feed, s.Directory, serviceMiddleware)
}

// Close releases the hub subscription and the kafka writer. The pool and
// redis client belong to the caller.
func (s *Server) Close() error {
	var errs []error
	if err := s.Stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
