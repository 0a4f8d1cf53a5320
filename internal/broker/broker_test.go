package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaslui/minermonitor/internal/config"
	"github.com/lucaslui/minermonitor/internal/model"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func event() model.AlertEvent {
	return model.AlertEvent{
		EventID:   "e1",
		Kind:      model.AlertOffline,
		HelmetID:  "h7",
		RaisedAt:  time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC),
		EmittedAt: time.Date(2025, 3, 10, 7, 0, 1, 0, time.UTC),
	}
}

func TestParseAcks(t *testing.T) {
	assert.Equal(t, kafka.RequireNone, parseAcks("none"))
	assert.Equal(t, kafka.RequireAll, parseAcks("ALL"))
	assert.Equal(t, kafka.RequireOne, parseAcks("one"))
	assert.Equal(t, kafka.RequireOne, parseAcks(""))
}

func TestParseCompression(t *testing.T) {
	cases := map[string]kafka.Compression{
		"":       kafka.Compression(0),
		"none":   kafka.Compression(0),
		"gzip":   kafka.Gzip,
		"snappy": kafka.Snappy,
		"LZ4":    kafka.Lz4,
		"zstd":   kafka.Zstd,
		"brotli": kafka.Snappy,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseCompression(in), in)
	}
}

func TestTopicSpecs(t *testing.T) {
	cfg := &config.Config{
		KafkaAlertTopic:        "helmet.alerts",
		KafkaDLQTopic:          "helmet.history.dlq",
		KafkaTopicPartitions:   3,
		KafkaReplicationFactor: 1,
		KafkaRetentionMs:       604800000,
		KafkaCompression:       "none",
	}
	specs := topicSpecs(cfg)
	require.Len(t, specs, 2)
	assert.Equal(t, "helmet.alerts", specs[0].Topic)
	assert.Equal(t, "helmet.history.dlq", specs[1].Topic)
	assert.Equal(t, 3, specs[1].NumPartitions)
	assert.Contains(t, specs[0].ConfigEntries, kafka.ConfigEntry{ConfigName: "compression.type", ConfigValue: "producer"})
	assert.Contains(t, specs[0].ConfigEntries, kafka.ConfigEntry{ConfigName: "retention.ms", ConfigValue: "604800000"})
}

func TestKafkaNotify(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaClient{AlertProducer: w, DLQProducer: &fakeWriter{}, logger: config.DiscardLogger()}

	require.NoError(t, k.Notify(context.Background(), event()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "h7", string(w.msgs[0].Key))
	assert.Equal(t, []kafka.Header{{Key: "kind", Value: []byte("offline")}}, w.msgs[0].Headers)

	var got model.AlertEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "e1", got.EventID)
	assert.Equal(t, model.HelmetID("h7"), got.HelmetID)

	w.err = errors.New("leader not available")
	assert.ErrorContains(t, k.Notify(context.Background(), event()), "leader not available")
}

func TestKafkaReject(t *testing.T) {
	dlq := &fakeWriter{}
	k := &KafkaClient{AlertProducer: &fakeWriter{}, DLQProducer: dlq, logger: config.DiscardLogger()}

	raw := map[string]any{"temperature": 21.0}
	reason := &model.MalformedRecordError{Key: "-N1", Reason: "missing timestamp"}
	require.NoError(t, k.Reject(context.Background(), "h7", "-N1", raw, reason))
	require.Len(t, dlq.msgs, 1)

	var env map[string]any
	require.NoError(t, json.Unmarshal(dlq.msgs[0].Value, &env))
	assert.Equal(t, "h7", env["helmetId"])
	assert.Equal(t, "-N1", env["key"])
	assert.Equal(t, DLQStage, env["stage"])
	assert.Equal(t, reason.Error(), env["error"])
	assert.Equal(t, raw, env["original"])
	assert.NotEmpty(t, env["receivedAt"])
}

func TestBuildDLQEnvelope_UnencodableOriginal(t *testing.T) {
	at := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	b, err := buildDLQEnvelope("h1", "k", func() {}, nil, at)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(b, &env))
	assert.Equal(t, "unknown", env["error"])
	assert.IsType(t, "", env["original"])
	assert.Equal(t, "2025-03-10T07:00:00Z", env["receivedAt"])
}

type fakeToken struct {
	err  error
	done bool
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (t *fakeToken) Error() error                   { return t.err }

type fakePublisher struct {
	topic   string
	qos     byte
	payload []byte
	token   *fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	p.topic, p.qos, p.payload = topic, qos, payload.([]byte)
	return p.token
}

func TestMQTTNotify(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{done: true}}
	p := &MQTTPublisher{client: pub, prefix: "mine/alerts", qos: 1, timeout: time.Second}

	require.NoError(t, p.Notify(context.Background(), event()))
	assert.Equal(t, "mine/alerts/h7", pub.topic)
	assert.Equal(t, byte(1), pub.qos)
	assert.Contains(t, string(pub.payload), `"eventId":"e1"`)

	pub.token = &fakeToken{done: false}
	assert.ErrorContains(t, p.Notify(context.Background(), event()), "timed out")

	pub.token = &fakeToken{done: true, err: errors.New("not connected")}
	assert.ErrorContains(t, p.Notify(context.Background(), event()), "not connected")
}
