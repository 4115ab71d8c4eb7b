package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"relay-service/internal/config"
	"relay-service/internal/websocket"

	kafkago "github.com/segmentio/kafka-go"
)

// Consumer feeds broadcast commands from a Kafka topic into the relay. It is
// the second ingestion surface next to POST /broadcast: producers that
// already speak Kafka push envelopes here instead of calling HTTP.
type Consumer struct {
	reader *kafkago.Reader
	hub    *websocket.Hub
}

func NewConsumer(cfg *config.KafkaConfig, hub *websocket.Hub) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return &Consumer{reader: reader, hub: hub}
}

// Run consumes until ctx is cancelled. Malformed or invalid envelopes are
// logged and skipped; the relay offers no delivery guarantee, so there is
// nothing to retry.
func (c *Consumer) Run(ctx context.Context) {
	slog.Info("kafka consumer started", "topic", c.reader.Config().Topic)

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				slog.Info("kafka consumer stopping")
				return
			}
			slog.Error("kafka read failed", "error", err)
			continue
		}

		var env websocket.IngestEnvelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			slog.Warn("skipping undecodable kafka message",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}

		if err := c.hub.Dispatch(env); err != nil {
			slog.Warn("skipping rejected kafka envelope",
				"channel", env.ChannelName, "type", env.Type, "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
