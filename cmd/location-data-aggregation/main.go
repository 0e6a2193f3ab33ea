package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	httpapi "github.com/i474232898/location-data-aggregation/internal/api/http"
	"github.com/i474232898/location-data-aggregation/internal/broadcast"
	"github.com/i474232898/location-data-aggregation/internal/config"
	"github.com/i474232898/location-data-aggregation/internal/location"
	"github.com/i474232898/location-data-aggregation/internal/location/providers"
	"github.com/i474232898/location-data-aggregation/internal/logging"
	"github.com/i474232898/location-data-aggregation/internal/observability"
	"github.com/i474232898/location-data-aggregation/internal/position"
	"github.com/i474232898/location-data-aggregation/internal/publish"
	"github.com/i474232898/location-data-aggregation/internal/sensor"
	"github.com/i474232898/location-data-aggregation/internal/store"
)

const serviceName = "location-data-aggregation"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Config{}).Error(context.Background(), "failed to load config", logging.Err(err))
		os.Exit(1)
	}

	log := logging.New(cfg.Log).With(logging.String("service", serviceName))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Error(ctx, "failed to register metrics", logging.Err(err))
		os.Exit(1)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.Upstream.HTTPTimeout,
	}

	memStore := store.NewMemoryStore()

	engine := location.NewEngine(memStore, location.Sources{
		Positions: position.NewObserver(newGPSReader(cfg.GPS), log),
		Pressure:  sensor.NewPressureObserver(newPressureSource(ctx, cfg.Pressure, log), cfg.Pressure.Interval, log),
		Elevation: providers.NewGSIElevationProvider(httpClient, cfg.Upstream.GSIBaseURL, log).WithUserAgent(cfg.Upstream.UserAgent),
		Address:   newAddressProvider(cfg.Upstream, httpClient, log),
		Stations:  providers.NewHeartRailsStationProvider(httpClient, cfg.Upstream.HeartRailsExpressBaseURL, log).WithUserAgent(cfg.Upstream.UserAgent),
	},
		location.WithInterval(cfg.Location.Interval),
		location.WithStationLimit(cfg.Location.StationLimit),
		location.WithLogger(log),
		location.WithMetrics(metrics),
	)

	var background sync.WaitGroup

	// Live snapshot stream for dashboards.
	hub := broadcast.NewHub(memStore, log)
	wsServer := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	background.Add(1)
	go func() {
		defer background.Done()
		hub.Run(ctx)
	}()
	if cfg.WSAddr != "" {
		go func() {
			if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "websocket server stopped", logging.Err(err))
			}
		}()
	}

	if cfg.Kafka.Enabled() {
		pub := publish.NewPublisher(publish.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), memStore, log)
		background.Add(1)
		go func() {
			defer background.Done()
			pub.Run(ctx)
		}()
	}

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  serviceName,
			"updating": engine.Running(),
		})
	})

	httpapi.RegisterMetrics(app, metrics.Handler())
	httpapi.RegisterRoutes(app, engine, memStore)

	// Updates run from start-up, as they did when the screen opened.
	engine.Start()

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error(ctx, "fiber server stopped", logging.Err(err))
		}
	}()
	log.Info(ctx, "service started",
		logging.String("port", cfg.Port),
		logging.String("ws_addr", cfg.WSAddr),
		logging.String("gps", cfg.GPS.Type),
		logging.String("pressure", cfg.Pressure.Type),
	)

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	engine.Stop()
	engine.Wait()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "error during shutdown", logging.Err(err))
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "error during websocket shutdown", logging.Err(err))
	}
	background.Wait()
	log.Info(shutdownCtx, "service stopped")
}

func newGPSReader(cfg config.GPSConfig) position.Reader {
	switch cfg.Type {
	case "nmea":
		return position.NewNMEAReader(position.NMEAConfig{Port: cfg.Port, BaudRate: cfg.BaudRate})
	case "fixed":
		return position.NewFixedReader(cfg.FixedLat, cfg.FixedLon)
	case "disabled":
		return position.Disabled{}
	default:
		return position.NewDemoReader()
	}
}

// newPressureSource returns nil when the device has no barometer.
func newPressureSource(ctx context.Context, cfg config.PressureConfig, log logging.Logger) sensor.Source {
	switch cfg.Type {
	case "iio":
		src, err := sensor.FindIIOSource(sensor.DefaultIIORoot, cfg.Device)
		if err != nil {
			log.Warn(ctx, "pressure sensor unavailable", logging.Err(err))
			return nil
		}
		return src
	case "demo":
		return sensor.NewDemoSource()
	default:
		return nil
	}
}

func newAddressProvider(cfg config.UpstreamConfig, client *http.Client, log logging.Logger) location.AddressProvider {
	if cfg.AddressBackend == "google" {
		return providers.NewGoogleAddressProvider(cfg.GoogleAPIKey, cfg.HTTPTimeout, log)
	}
	return providers.NewHeartRailsAddressProvider(client, cfg.HeartRailsGeoBaseURL, log).WithUserAgent(cfg.UserAgent)
}
