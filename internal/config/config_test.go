package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setMemoryBackends(t *testing.T) {
	t.Setenv("LIVE_STORE", "memory")
	t.Setenv("ARCHIVE_BACKEND", "memory")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setMemoryBackends(t)

	cfg, err := LoadConfig(DiscardLogger())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Minute, cfg.OfflineAfter)
	assert.Equal(t, 15*time.Second, cfg.OfflinePollInterval)
	assert.Equal(t, 50.0, cfg.TempHigh)
	assert.Equal(t, 15.0, cfg.TempLow)
	assert.Equal(t, "SNAPPY", cfg.ParquetCompression)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.MQTTEnabled())
	assert.Equal(t, time.Duration(0), cfg.SyncInterval)
}

func TestLoadConfig_KafkaAndMQTT(t *testing.T) {
	setMemoryBackends(t)
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_REPLICATION_FACTOR", "2")
	t.Setenv("MQTT_BROKER_URL", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "2")
	t.Setenv("MQTT_TOPIC_PREFIX", "mine/alerts/")

	cfg, err := LoadConfig(DiscardLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.True(t, cfg.MQTTEnabled())
	assert.Equal(t, byte(2), cfg.MQTTQoS)
	assert.Equal(t, "mine/alerts", cfg.MQTTTopicPrefix)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"minio without endpoint", map[string]string{"LIVE_STORE": "memory", "ARCHIVE_BACKEND": "minio"}},
		{"influx without url", map[string]string{"LIVE_STORE": "memory", "ARCHIVE_BACKEND": "influx"}},
		{"unknown live store", map[string]string{"LIVE_STORE": "firebase", "ARCHIVE_BACKEND": "memory"}},
		{"bad duration", map[string]string{"LIVE_STORE": "memory", "ARCHIVE_BACKEND": "memory", "OFFLINE_AFTER": "two minutes"}},
		{"inverted temperature band", map[string]string{"LIVE_STORE": "memory", "ARCHIVE_BACKEND": "memory", "TEMP_LOW": "60"}},
		{"replication above brokers", map[string]string{"LIVE_STORE": "memory", "ARCHIVE_BACKEND": "memory", "KAFKA_BROKERS": "k1:9092", "KAFKA_REPLICATION_FACTOR": "3"}},
		{"bad qos", map[string]string{"LIVE_STORE": "memory", "ARCHIVE_BACKEND": "memory", "MQTT_QOS": "5"}},
		{"bad bool", map[string]string{"LIVE_STORE": "memory", "ARCHIVE_BACKEND": "memory", "S3_USE_TLS": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadConfig(DiscardLogger())
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestConfigString_MasksSecrets(t *testing.T) {
	cfg := &Config{S3SecretKey: "s3cr3t", InfluxToken: "tok", RedisPassword: "pw", MQTTPassword: "mq"}
	out := cfg.String()

	assert.NotContains(t, out, "s3cr3t")
	assert.Contains(t, out, "******")
	assert.NotContains(t, out, "tok\n")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate([]byte("abc"), 5))
	assert.Equal(t, "ab...", Truncate([]byte("abcdef"), 2))
}
