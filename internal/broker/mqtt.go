package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lucaslui/minermonitor/internal/config"
	"github.com/lucaslui/minermonitor/internal/model"
)

func BuildMQTTClient(cfg *config.Config, logger *log.Logger) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID).
		SetOrderMatters(false).
		SetCleanSession(true).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.OnConnect = func(mqtt.Client) { logger.Printf("[mqtt] connected to %s", cfg.MQTTBrokerURL) }
	opts.OnConnectionLost = func(_ mqtt.Client, err error) { logger.Printf("[mqtt] connection lost: %v", err) }

	return mqtt.NewClient(opts)
}

func ConnectWithBackoff(ctx context.Context, client mqtt.Client, logger *log.Logger, start, max time.Duration) error {
	backoff := start
	for {
		token := client.Connect()
		if token.Wait() && token.Error() == nil {
			return nil
		}
		logger.Printf("[mqtt] connect error: %v; retrying in %s", token.Error(), backoff)
		select {
		case <-time.After(backoff):
			if backoff < max {
				backoff *= 2
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher sends alert events to {prefix}/{helmetId}.
type MQTTPublisher struct {
	client  publisher
	prefix  string
	qos     byte
	timeout time.Duration
}

func NewMQTTPublisher(client mqtt.Client, prefix string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, qos: qos, timeout: 5 * time.Second}
}

func AlertTopic(prefix string, id model.HelmetID) string {
	return prefix + "/" + string(id)
}

func (p *MQTTPublisher) Notify(ctx context.Context, ev model.AlertEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", ev.EventID, err)
	}
	topic := AlertTopic(p.prefix, ev.HelmetID)
	token := p.client.Publish(topic, p.qos, false, payload)

	timeout := p.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish %s: timed out after %s", topic, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}
