package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/fedcoord/client"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/absmach/fedcoord/pkg/server"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "fl-client"
	envPrefix     = "FL_CLIENT_"
	envPrefixMQTT = "FL_CLIENT_MQTT_"
	pathEnv       = ".env"
)

type envConfig struct {
	LogLevel string `env:"FL_CLIENT_LOG_LEVEL" envDefault:"info"`
	Samples  int64  `env:"FL_CLIENT_SAMPLES"   envDefault:"100"`
	Seed     uint64 `env:"FL_CLIENT_SEED"      envDefault:"0"`
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

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var agentCfg client.Config
	if err := env.ParseWithOptions(&agentCfg, env.Options{Prefix: envPrefix}); err != nil {
		logger.Error("failed to load agent configuration", slog.String("error", err.Error()))

		return
	}
	if agentCfg.ClientID == "" {
		agentCfg.ClientID = namegenerator.NewGenerator().Generate()
	}
	logger = logger.With(slog.String("client_id", agentCfg.ClientID))

	var mqttCfg mqtt.Config
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefixMQTT}); err != nil {
		logger.Error("failed to load mqtt configuration", slog.String("error", err.Error()))

		return
	}
	if mqttCfg.WillTopic == "" {
		mqttCfg.WillTopic = mqtt.StatusTopic(agentCfg.ExperimentID, agentCfg.ClientID)
	}
	pubsub, err := mqtt.NewPubSub(mqttCfg, agentCfg.ClientID, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

		return
	}
	defer func() {
		if err := pubsub.Disconnect(context.Background()); err != nil {
			logger.Warn("failed to disconnect from mqtt broker", slog.Any("error", err))
		}
	}()

	trainer := &client.SimTrainer{
		ClientID: agentCfg.ClientID,
		Samples:  cfg.Samples,
		Seed:     cfg.Seed,
	}
	agent := client.NewAgent(agentCfg, pubsub, trainer, logger)

	g.Go(func() error {
		return agent.Run(ctx)
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}
