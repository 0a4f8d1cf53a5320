// Package broker fans alert events and rejected history entries out to Kafka and MQTT.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lucaslui/minermonitor/internal/config"
	"github.com/lucaslui/minermonitor/internal/model"
)

// DLQStage marks where a dead-lettered history entry was rejected.
const DLQStage = "history-sync"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaClient struct {
	AlertProducer messageWriter
	DLQProducer   messageWriter
	logger        *log.Logger
}

func NewKafkaClient(cfg *config.Config, logger *log.Logger) *KafkaClient {
	return &KafkaClient{
		AlertProducer: NewKafkaProducer(cfg, cfg.KafkaAlertTopic),
		DLQProducer:   NewKafkaProducer(cfg, cfg.KafkaDLQTopic),
		logger:        logger,
	}
}

func NewKafkaProducer(cfg *config.Config, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,

		RequiredAcks: parseAcks(cfg.KafkaRequiredAcks),
		MaxAttempts:  5,
		Compression:  parseCompression(cfg.KafkaCompression),
	}
}

// Notify publishes an alert event keyed by helmet, so one helmet's alerts stay ordered.
func (k *KafkaClient) Notify(ctx context.Context, ev model.AlertEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", ev.EventID, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.HelmetID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}
	if err := k.AlertProducer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka alert %s: %w", ev.EventID, err)
	}
	return nil
}

type dlqEnvelope struct {
	Error      string          `json:"error"`
	Original   json.RawMessage `json:"original"`
	HelmetID   model.HelmetID  `json:"helmetId"`
	Key        string          `json:"key"`
	Stage      string          `json:"stage"`
	ReceivedAt string          `json:"receivedAt"`
}

func buildDLQEnvelope(id model.HelmetID, key string, raw any, reason error, at time.Time) ([]byte, error) {
	original, err := json.Marshal(raw)
	if err != nil {
		original, _ = json.Marshal(fmt.Sprintf("%v", raw))
	}
	msg := "unknown"
	if reason != nil {
		msg = reason.Error()
	}
	return json.Marshal(dlqEnvelope{
		Error:      msg,
		Original:   original,
		HelmetID:   id,
		Key:        key,
		Stage:      DLQStage,
		ReceivedAt: at.UTC().Format(time.RFC3339Nano),
	})
}

// Reject dead-letters a history entry the sync job could not archive.
func (k *KafkaClient) Reject(ctx context.Context, id model.HelmetID, key string, raw any, reason error) error {
	value, err := buildDLQEnvelope(id, key, raw, reason, time.Now())
	if err != nil {
		return err
	}
	if err := k.DLQProducer.WriteMessages(ctx, kafka.Message{Key: []byte(id), Value: value}); err != nil {
		k.logger.Printf("[kafka] dlq write failed for %s/%s: %v", id, key, err)
		return err
	}
	k.logger.Printf("[kafka] dlq %s/%s: %s", id, key, config.Truncate(value, 200))
	return nil
}

func parseAcks(s string) kafka.RequiredAcks {
	switch strings.ToLower(s) {
	case "none":
		return kafka.RequireNone
	case "all":
		return kafka.RequireAll
	default:
		return kafka.RequireOne
	}
}

func parseCompression(s string) kafka.Compression {
	switch strings.ToLower(s) {
	case "", "none", "no", "off", "0":
		return kafka.Compression(0)
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Snappy
	}
}

func (k *KafkaClient) Close() {
	_ = k.AlertProducer.Close()
	_ = k.DLQProducer.Close()
}
