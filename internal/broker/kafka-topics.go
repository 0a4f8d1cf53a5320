package broker

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lucaslui/minermonitor/internal/config"
)

func dialAnyBroker(ctx context.Context, brokers []string, perAttempt time.Duration, logger *log.Logger) (*kafka.Conn, string, error) {
	var lastErr error
	for _, b := range brokers {
		dctx, cancel := context.WithTimeout(ctx, perAttempt)
		conn, err := kafka.DialContext(dctx, "tcp", b)
		cancel()
		if err == nil {
			logger.Printf("[kafka] connected to bootstrap %s", b)
			return conn, b, nil
		}
		lastErr = err
		logger.Printf("[kafka] cannot connect to %s: %v (trying next)", b, err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no brokers provided")
	}
	return nil, "", lastErr
}

func dialController(ctx context.Context, ctrl kafka.Broker, perAttempt time.Duration) (*kafka.Conn, error) {
	addr := net.JoinHostPort(ctrl.Host, strconv.Itoa(ctrl.Port))
	dctx, cancel := context.WithTimeout(ctx, perAttempt)
	defer cancel()
	return kafka.DialContext(dctx, "tcp", addr)
}

func topicSpecs(cfg *config.Config) []kafka.TopicConfig {
	entries := []kafka.ConfigEntry{
		{ConfigName: "compression.type", ConfigValue: compressionType(cfg.KafkaCompression)},
		{ConfigName: "retention.ms", ConfigValue: strconv.FormatInt(cfg.KafkaRetentionMs, 10)},
	}
	out := make([]kafka.TopicConfig, 0, 2)
	for _, topic := range []string{cfg.KafkaAlertTopic, cfg.KafkaDLQTopic} {
		out = append(out, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     cfg.KafkaTopicPartitions,
			ReplicationFactor: cfg.KafkaReplicationFactor,
			ConfigEntries:     entries,
		})
	}
	return out
}

// compressionType maps the producer codec to the broker's topic setting.
func compressionType(codec string) string {
	if codec == "" || codec == "none" {
		return "producer"
	}
	return codec
}

// EnsureKafkaTopics creates the alert and DLQ topics through the controller when missing.
func EnsureKafkaTopics(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	const perAttempt = 5 * time.Second
	conn, bootstrap, err := dialAnyBroker(ctx, cfg.KafkaBrokers, perAttempt, logger)
	if err != nil {
		return fmt.Errorf("bootstrap connect failed (tried %v): %w", cfg.KafkaBrokers, err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("read controller from %s failed: %w", bootstrap, err)
	}
	ctrlConn, err := dialController(ctx, controller, perAttempt)
	if err != nil {
		return fmt.Errorf("controller %s:%d connect failed: %w", controller.Host, controller.Port, err)
	}
	defer ctrlConn.Close()

	for _, spec := range topicSpecs(cfg) {
		if parts, err := conn.ReadPartitions(spec.Topic); err == nil && len(parts) > 0 {
			logger.Printf("[kafka] topic %s already exists, skipping", spec.Topic)
			continue
		}
		logger.Printf("[kafka] creating topic %s (partitions=%d rf=%d)", spec.Topic, spec.NumPartitions, spec.ReplicationFactor)
		if err := ctrlConn.CreateTopics(spec); err != nil {
			return fmt.Errorf("create topic %s: %w", spec.Topic, err)
		}
	}
	return nil
}
