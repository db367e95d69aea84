// Command dispatch is the Ride Dispatch Core's single HTTP/websocket
// entrypoint: it wires config, logging, persistence, the optional
// Redis-backed driver index, the optional NATS event bus, and every
// domain service (rides, drivers, dispatcher, telemetry, earnings,
// shareaccess, realtime) behind one gin router, following the same
// service-wiring shape as the reference fleet's per-service main.go
// files.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/richxcame/ride-hailing/internal/dispatcher"
	"github.com/richxcame/ride-hailing/internal/driverstore"
	"github.com/richxcame/ride-hailing/internal/drivers"
	"github.com/richxcame/ride-hailing/internal/earnings"
	"github.com/richxcame/ride-hailing/internal/eventbus"
	"github.com/richxcame/ride-hailing/internal/h3index"
	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/config"
	"github.com/richxcame/ride-hailing/internal/platform/database"
	"github.com/richxcame/ride-hailing/internal/platform/logger"
	"github.com/richxcame/ride-hailing/internal/platform/middleware"
	platformredis "github.com/richxcame/ride-hailing/internal/platform/redis"
	"github.com/richxcame/ride-hailing/internal/platform/resilience"
	"github.com/richxcame/ride-hailing/internal/platform/tracing"
	"github.com/richxcame/ride-hailing/internal/pricing"
	"github.com/richxcame/ride-hailing/internal/realtime"
	"github.com/richxcame/ride-hailing/internal/rides"
	"github.com/richxcame/ride-hailing/internal/shareaccess"
	"github.com/richxcame/ride-hailing/internal/telemetry"
)

const (
	serviceName = "dispatch-core"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting dispatch core",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	if err := middleware.InitSentry(middleware.SentryConfig{
		DSN:              os.Getenv("SENTRY_DSN"),
		Environment:      cfg.Server.Environment,
		Release:          version,
		TracesSampleRate: 0.1,
	}); err != nil {
		logger.Warn("failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	}

	tracerEnabled := os.Getenv("OTEL_ENABLED") == "true"
	tracingShutdown, err := tracing.Init(context.Background(), tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Server.Environment,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Enabled:        tracerEnabled,
	})
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracingShutdown(shutdownCtx); err != nil {
				logger.Warn("failed to shutdown tracer", zap.Error(err))
			}
		}()
	}

	if err := database.Migrate("file://migrations", cfg.Database.MigrationURL()); err != nil {
		logger.Warn("database migration failed, continuing against existing schema", zap.Error(err))
	}

	db, err := database.NewPostgresPool(&cfg.Database, 5)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("connected to database")

	h3index.SetMatchingResolution(cfg.Geo.MatchingResolution)

	driversRepo := drivers.NewRepository(db)

	store, closeStore := buildDriverStore(cfg, driversRepo)
	defer closeStore()

	// Hydration failures block readiness: a dispatch tier that boots
	// with an empty driver index silently matches nobody.
	if err := hydrateDriverStore(context.Background(), store, driversRepo); err != nil {
		logger.Fatal("failed to hydrate driver state store", zap.Error(err))
	}

	bus, closeBus := buildEventBus(cfg)
	defer closeBus()

	pricingCfg := pricing.Config{
		Rates:          map[models.VehicleType]pricing.VehicleRate{},
		ServiceFee:     cfg.Pricing.ServiceFee,
		InsuranceFee:   cfg.Pricing.InsuranceFee,
		PlatformFee:    cfg.Pricing.PlatformFee,
		CommissionRate: cfg.Pricing.DefaultCommissionRate,
	}
	for vt, rate := range cfg.Pricing.Rates {
		pricingCfg.Rates[models.VehicleType(vt)] = pricing.VehicleRate{Base: rate.Base, PerKm: rate.PerKm, PerMinute: rate.PerMin}
	}
	pricingEngine := pricing.NewEngine(pricingCfg)

	driversService := drivers.NewService(driversRepo, store, bus, drivers.DefaultStopRidingPenalty)
	driversHandler := drivers.NewHandler(driversService)

	ridesRepo := rides.NewRepository(db)
	ridesService := rides.NewService(ridesRepo, pricingEngine, bus, driversRepo)
	ridesHandler := rides.NewHandler(ridesService)

	earningsRepo := earnings.NewRepository(db)
	earningsService := earnings.NewService(earningsRepo)
	earningsHandler := earnings.NewHandler(earningsService)

	shareRepo := shareaccess.NewRepository(db)
	shareService := shareaccess.NewService(shareRepo, ridesService, driversService, store)
	shareHandler := shareaccess.NewHandler(shareService)

	telemetrySink := telemetry.NewSink(store, bus)
	telemetryHandler := telemetry.NewHandler(telemetrySink)

	disp := dispatcher.New(store, bus)

	hub := realtime.NewHub()
	go hub.Run()
	realtimeService := realtime.NewService(hub, telemetrySink)
	realtimeHandler := realtime.NewHandler(hub)
	driversService.SetPresenceReader(hub)
	disp.SetSubscriberCounter(hub)

	wireEventConsumers(bus, disp, realtimeService)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoverWithSentry())
	router.Use(middleware.Sentry())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestTimeout(time.Duration(cfg.Server.ReadTimeout) * time.Second))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.Metrics())
	if tracerEnabled {
		router.Use(middleware.Tracing(serviceName))
	}
	router.Use(middleware.ReportErrors())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "status": "ok"})
	})
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "status": "alive"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"service": serviceName, "status": "not ready", "reason": "database"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "status": "ready"})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "version": version})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	public := router.Group("/public")
	api.Use(middleware.Auth(cfg.JWT.Secret))

	ridesHandler.Register(api)
	driversHandler.Register(api)
	earningsHandler.Register(api)
	shareHandler.Register(api, public)
	telemetryHandler.Register(api)
	realtimeHandler.Register(api)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// buildDriverStore picks the Redis-backed Driver State Store when
// Redis is enabled and reachable, falling back to the in-process
// store otherwise — a Redis outage at startup degrades to
// single-instance operation rather than refusing to boot. sink is
// wired into either backend as the deferred Postgres write-through.
func buildDriverStore(cfg *config.Config, sink driverstore.PersistenceSink) (driverstore.Store, func()) {
	if !cfg.Redis.Enabled {
		logger.Info("driver state store running in-process (Redis disabled)")
		s := driverstore.NewMemoryStoreTuned(cfg.Geo.HeartbeatStaleness, cfg.Telemetry.LocationFlushPeriod, sink)
		s.SetMaxRing(cfg.Geo.KMax)
		return s, func() {}
	}

	client, err := platformredis.NewClient(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unreachable, falling back to in-process driver store", zap.Error(err))
		s := driverstore.NewMemoryStoreTuned(cfg.Geo.HeartbeatStaleness, cfg.Telemetry.LocationFlushPeriod, sink)
		s.SetMaxRing(cfg.Geo.KMax)
		return s, func() {}
	}

	var breaker *resilience.CircuitBreaker
	if cfg.Redis.Breaker.Enabled {
		breaker = resilience.NewCircuitBreaker(resilience.Settings{
			Name:             "redis-driverstore",
			Interval:         time.Duration(cfg.Redis.Breaker.IntervalSeconds) * time.Second,
			Timeout:          time.Duration(cfg.Redis.Breaker.TimeoutSeconds) * time.Second,
			FailureThreshold: uint32(cfg.Redis.Breaker.FailureThreshold),
			SuccessThreshold: uint32(cfg.Redis.Breaker.SuccessThreshold),
		}, nil)
	}

	logger.Info("driver state store running against shared Redis backend")
	s := driverstore.NewRedisStore(client, breaker, sink, cfg.Telemetry.LocationFlushPeriod)
	s.SetMaxRing(cfg.Geo.KMax)
	return s, func() { _ = client.Close() }
}

// hydrateDriverStore bulk-loads every known driver's location and
// status into the Driver State Store before the server starts taking
// traffic.
func hydrateDriverStore(ctx context.Context, store driverstore.Store, repo *drivers.Repository) error {
	all, err := repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list drivers: %w", err)
	}

	records := make([]driverstore.DriverInfo, 0, len(all))
	for _, d := range all {
		rec := driverstore.DriverInfo{
			DriverID:    d.ID,
			UserID:      d.UserID,
			VehicleType: d.VehicleType,
			Online:      d.IsOnline,
			Available:   d.IsOnline && d.IsActive,
			UpdatedAt:   d.LastActiveAt,
		}
		if d.HasCoordinates() {
			rec.Lat, rec.Lng = *d.CurrentLat, *d.CurrentLng
			rec.H3Cell = d.H3Index
		}
		records = append(records, rec)
	}

	if err := store.Hydrate(ctx, records); err != nil {
		return fmt.Errorf("hydrate store: %w", err)
	}
	logger.Info("driver state store hydrated", zap.Int("drivers", len(records)))
	return nil
}

// buildEventBus picks NATS JetStream when configured, falling back to
// the in-process fan-out for a single dispatch-core instance.
func buildEventBus(cfg *config.Config) (eventbus.Bus, func()) {
	if !cfg.EventBus.Enabled {
		logger.Info("event bus running in-process (NATS disabled)")
		bus := eventbus.NewLocal()
		return bus, bus.Close
	}

	bus, err := eventbus.New(eventbus.Config{
		URL:        cfg.EventBus.NATSURL,
		Name:       "dispatch-core",
		StreamName: cfg.EventBus.StreamName,
	})
	if err != nil {
		logger.Warn("NATS unreachable, falling back to in-process event bus", zap.Error(err))
		local := eventbus.NewLocal()
		return local, local.Close
	}
	return bus, bus.Close
}

// wireEventConsumers subscribes the dispatcher to newly created rides
// and bridges dispatch/ride events onto connected websocket channels,
// so a client attached directly to this instance's hub sees the same
// activity a bus subscriber elsewhere would.
func wireEventConsumers(bus eventbus.Bus, disp *dispatcher.Dispatcher, rt *realtime.Service) {
	ctx := context.Background()

	_ = bus.Subscribe(ctx, eventbus.SubjectRideCreated, "dispatcher", func(ctx context.Context, event *eventbus.Event) error {
		var ride models.Ride
		if err := json.Unmarshal(event.Data, &ride); err != nil {
			return err
		}
		disp.Broadcast(ctx, &ride)
		return nil
	})

	_ = bus.Subscribe(ctx, eventbus.SubjectDispatchOffer, "realtime-offers", func(ctx context.Context, event *eventbus.Event) error {
		var offer map[string]interface{}
		if err := json.Unmarshal(event.Data, &offer); err != nil {
			return err
		}
		driverID, _ := offer["driver_id"].(string)
		if driverID != "" {
			rt.PushOffer(driverID, offer)
		}
		return nil
	})

	for _, subject := range []string{
		eventbus.SubjectRideDriverAssigned,
		eventbus.SubjectRideStatusChanged,
		eventbus.SubjectRideStarted,
		eventbus.SubjectRideCompleted,
		eventbus.SubjectRideCancelled,
	} {
		subject := subject
		consumerName := "realtime-ride-updates-" + strings.ReplaceAll(subject, ".", "-")
		_ = bus.Subscribe(ctx, subject, consumerName, func(ctx context.Context, event *eventbus.Event) error {
			var payload map[string]interface{}
			if err := json.Unmarshal(event.Data, &payload); err != nil {
				return err
			}
			rideID, _ := payload["ride_id"].(string)
			if rideID == "" {
				return nil
			}
			status, _ := payload["status"].(string)
			if status == "" {
				status = subject
			}
			rt.PushRideUpdate(rideID, status)
			return nil
		})
	}
}
