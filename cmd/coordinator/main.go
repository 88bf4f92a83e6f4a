package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/coordinator/api"
	"github.com/absmach/fedcoord/coordinator/middleware"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/absmach/fedcoord/pkg/prometheus"
	"github.com/absmach/fedcoord/pkg/registry"
	"github.com/absmach/fedcoord/pkg/server"
	httpserver "github.com/absmach/fedcoord/pkg/server/http"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/absmach/fedcoord/pkg/tracing"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "fl-coordinator"
	defHTTPPort   = "7070"
	envPrefix     = "FL_COORDINATOR_"
	envPrefixHTTP = "FL_COORDINATOR_HTTP_"
	envPrefixMQTT = "FL_COORDINATOR_MQTT_"
	envPrefixDB   = "FL_COORDINATOR_DB_"
	pathEnv       = ".env"
)

type envConfig struct {
	LogLevel   string  `env:"FL_COORDINATOR_LOG_LEVEL"   envDefault:"info"`
	InstanceID string  `env:"FL_COORDINATOR_INSTANCE_ID"`
	ConfigFile string  `env:"FL_COORDINATOR_CONFIG_FILE" envDefault:"config.toml"`
	OTELURL    url.URL `env:"FL_COORDINATOR_OTEL_URL"`
	TraceRatio float64 `env:"FL_COORDINATOR_TRACE_RATIO" envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	var svcCfg coordinator.Config
	if err := env.ParseWithOptions(&svcCfg, env.Options{Prefix: envPrefix}); err != nil {
		logger.Error("failed to load coordinator configuration", slog.String("error", err.Error()))

		return
	}

	var runnerCfg coordinator.RunnerConfig
	if err := env.ParseWithOptions(&runnerCfg, env.Options{Prefix: envPrefix}); err != nil {
		logger.Error("failed to load runner configuration", slog.String("error", err.Error()))

		return
	}

	population, err := fedcoord.LoadConfig(cfg.ConfigFile)
	if err != nil {
		logger.Error("failed to load population configuration", slog.String("file", cfg.ConfigFile), slog.String("error", err.Error()))

		return
	}

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := tracing.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	var dbCfg storage.Config
	if err := env.ParseWithOptions(&dbCfg, env.Options{Prefix: envPrefixDB}); err != nil {
		logger.Error("failed to load storage configuration", slog.String("error", err.Error()))

		return
	}
	repo, err := storage.NewRepository(dbCfg)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("type", dbCfg.Type), slog.String("error", err.Error()))

		return
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	reg, err := registry.New(population.Clients, population.UnreachableThreshold)
	if err != nil {
		logger.Error("failed to build client registry", slog.String("error", err.Error()))

		return
	}

	var mqttCfg mqtt.Config
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefixMQTT}); err != nil {
		logger.Error("failed to load mqtt configuration", slog.String("error", err.Error()))

		return
	}
	pubsub, err := mqtt.NewPubSub(mqttCfg, fmt.Sprintf("%s-%s", svcName, cfg.InstanceID), logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

		return
	}
	defer func() {
		if err := pubsub.Disconnect(context.Background()); err != nil {
			logger.Warn("failed to disconnect from mqtt broker", slog.Any("error", err))
		}
	}()

	svc, err := coordinator.NewService(
		ctx,
		svcCfg,
		reg,
		repo,
		coordinator.NewMQTTTransport(pubsub, svcCfg.ExperimentID),
		fl.NewFedAvgAggregator(),
		fl.NewGlobalModel(population.Shape()),
		logger,
	)
	if err != nil {
		logger.Error("failed to create coordinator", slog.String("error", err.Error()))

		return
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	rounds, updates, version := prometheus.MakeRoundMetrics(svcName, "training")
	svc = middleware.Metrics(counter, latency, rounds, updates, version, svc)

	if err := coordinator.Subscribe(ctx, svcCfg.ExperimentID, pubsub, svc, logger); err != nil {
		logger.Error("failed to subscribe to update topics", slog.String("error", err.Error()))

		return
	}

	runner, err := coordinator.NewRunner(svc, runnerCfg, logger)
	if err != nil {
		logger.Error("failed to create runner", slog.String("error", err.Error()))

		return
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	g.Go(func() error {
		report, err := runner.Run(ctx)
		logger.Info("training run finished",
			slog.Int("completed", report.Completed),
			slog.Int("failed", report.Failed),
			slog.Uint64("final_version", report.FinalVersion),
			slog.Bool("aborted", report.Aborted),
			slog.String("halted", report.Halted),
		)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		cancel()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}
