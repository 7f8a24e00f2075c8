// worker consumes access events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, ACCESS_EVENT_TOPIC, KAFKA_GROUP_ID and LOKI_URL.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backoffice/authcore/internal/config"
	"backoffice/authcore/internal/logging"
	"backoffice/authcore/internal/telemetry/loki"
	"backoffice/authcore/internal/telemetry/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New(os.Stderr, "info", false)
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := logging.Service(logging.New(os.Stderr, cfg.LogLevel, !cfg.IsProduction()), "worker")

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal().Msg("KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		log.Fatal().Err(err).Msg("loki")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := producer.NewConsumer(brokers, cfg.AccessEventTopic, cfg.KafkaGroupID, log)
	defer consumer.Close()

	log.Info().Str("topic", cfg.AccessEventTopic).Str("group", cfg.KafkaGroupID).Str("loki", cfg.LokiURL).Msg("consuming access events")
	if err := consumer.Run(ctx, client.PushEventJSON); err != nil {
		log.Error().Err(err).Msg("consumer stopped")
		return
	}
	log.Info().Msg("worker stopped")
}
