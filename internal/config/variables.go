package config

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr string

	LiveStore      string // "redis" ou "memory"
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisNamespace string
	RedisTimeout   time.Duration

	ArchiveBackend string // "minio", "influx" ou "memory"

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseTLS    bool
	S3Bucket    string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	KafkaBrokers           []string
	KafkaAlertTopic        string
	KafkaDLQTopic          string
	KafkaTopicPartitions   int
	KafkaReplicationFactor int
	KafkaRetentionMs       int64
	KafkaCompression       string
	KafkaRequiredAcks      string

	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	MQTTQoS         byte

	OfflineAfter        time.Duration
	OfflinePollInterval time.Duration
	TempHigh            float64
	TempLow             float64
	NotifyQueue         int
	SyncInterval        time.Duration

	ParquetCompression string
	ExportBasePath     string
}

func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }
func (c *Config) MQTTEnabled() bool  { return c.MQTTBrokerURL != "" }

func (c *Config) String() string {
	return fmt.Sprintf(`
HTTP:
  Addr:               %s

Live store:
  Backend:            %s
  RedisAddr:          %s
  RedisPassword:      %s
  RedisDB:            %d
  RedisNamespace:     %s
  RedisTimeout:       %s

Archive:
  Backend:            %s
  S3Endpoint:         %s
  S3AccessKey:        %s
  S3SecretKey:        %s
  S3UseTLS:           %t
  S3Bucket:           %s
  InfluxURL:          %s
  InfluxToken:        %s
  InfluxOrg:          %s
  InfluxBucket:       %s

Kafka:
  Brokers:            %v
  AlertTopic:         %s
  DLQTopic:           %s
  TopicPartitions:    %d
  ReplicationFactor:  %d
  RetentionMs:        %d
  Compression:        %s
  RequiredAcks:       %s

MQTT:
  BrokerURL:          %s
  ClientID:           %s
  Username:           %s
  Password:           %s
  TopicPrefix:        %s
  QoS:                %d

Monitor:
  OfflineAfter:       %s
  PollInterval:       %s
  TempHigh:           %.1f
  TempLow:            %.1f
  NotifyQueue:        %d
  SyncInterval:       %s

Export:
  Compression:        %s
  BasePath:           %s
`,
		c.HTTPAddr,

		c.LiveStore,
		c.RedisAddr,
		strings.Repeat("*", len(c.RedisPassword)),
		c.RedisDB,
		c.RedisNamespace,
		c.RedisTimeout,

		c.ArchiveBackend,
		c.S3Endpoint,
		c.S3AccessKey,
		strings.Repeat("*", len(c.S3SecretKey)),
		c.S3UseTLS,
		c.S3Bucket,
		c.InfluxURL,
		strings.Repeat("*", len(c.InfluxToken)),
		c.InfluxOrg,
		c.InfluxBucket,

		c.KafkaBrokers,
		c.KafkaAlertTopic,
		c.KafkaDLQTopic,
		c.KafkaTopicPartitions,
		c.KafkaReplicationFactor,
		c.KafkaRetentionMs,
		c.KafkaCompression,
		c.KafkaRequiredAcks,

		c.MQTTBrokerURL,
		c.MQTTClientID,
		c.MQTTUsername,
		strings.Repeat("*", len(c.MQTTPassword)),
		c.MQTTTopicPrefix,
		c.MQTTQoS,

		c.OfflineAfter,
		c.OfflinePollInterval,
		c.TempHigh,
		c.TempLow,
		c.NotifyQueue,
		c.SyncInterval,

		c.ParquetCompression,
		c.ExportBasePath,
	)
}

type errList []string

func (e *errList) addf(format string, a ...any) { *e = append(*e, fmt.Sprintf(format, a...)) }
func (e *errList) add(msg string)               { *e = append(*e, msg) }
func (e *errList) has() bool                    { return len(*e) > 0 }

var defaults = map[string]any{
	"http_addr": ":8080",

	"live_store":      "redis",
	"redis_addr":      "localhost:6379",
	"redis_password":  "",
	"redis_db":        "0",
	"redis_namespace": "minermonitor",
	"redis_timeout":   "5s",

	"archive_backend": "minio",
	"s3_use_tls":      "false",
	"s3_bucket":       "helmets",

	"kafka_brokers":            "",
	"kafka_alert_topic":        "helmet-alerts",
	"kafka_dlq_topic":          "helmet-history-dlq",
	"kafka_topic_partitions":   "3",
	"kafka_replication_factor": "1",
	"kafka_retention_ms":       "604800000",
	"kafka_compression":        "snappy",
	"kafka_required_acks":      "one",

	"mqtt_broker_url":   "",
	"mqtt_client_id":    "minermonitor",
	"mqtt_topic_prefix": "helmets/alerts",
	"mqtt_qos":          "1",

	"offline_after":         "2m",
	"offline_poll_interval": "15s",
	"temp_high":             "50",
	"temp_low":              "15",
	"notify_queue":          "256",
	"sync_interval":         "0s",

	"parquet_compression": "SNAPPY",
	"export_base_path":    "exports",
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("monitor_config")); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("monitor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/minermonitor")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func getRequired(v *viper.Viper, key string, errs *errList) string {
	s := getString(v, key)
	if s == "" {
		errs.addf("missing %s", strings.ToUpper(key))
	}
	return s
}

func getInt(v *viper.Viper, key string, errs *errList) int {
	s := getString(v, key)
	n, err := strconv.Atoi(s)
	if err != nil {
		errs.addf("%s invalid (expected int): %q", strings.ToUpper(key), s)
		return 0
	}
	return n
}

func getInt64(v *viper.Viper, key string, errs *errList) int64 {
	s := getString(v, key)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		errs.addf("%s invalid (expected int64): %q", strings.ToUpper(key), s)
		return 0
	}
	return n
}

func getFloat(v *viper.Viper, key string, errs *errList) float64 {
	s := getString(v, key)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		errs.addf("%s invalid (expected number): %q", strings.ToUpper(key), s)
		return 0
	}
	return f
}

func getBool(v *viper.Viper, key string, errs *errList) bool {
	s := strings.ToLower(getString(v, key))
	switch s {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n", "":
		return false
	default:
		errs.addf("%s invalid (use true/false or 1/0): %q", strings.ToUpper(key), s)
		return false
	}
}

func getDuration(v *viper.Viper, key string, errs *errList) time.Duration {
	s := getString(v, key)
	d, err := time.ParseDuration(s)
	if err != nil {
		errs.addf("%s invalid (expected duration like 15s): %q", strings.ToUpper(key), s)
		return 0
	}
	return d
}

func ensureOneOf(key, val string, allowed []string, errs *errList) {
	for _, a := range allowed {
		if val == a {
			return
		}
	}
	errs.addf("%s invalid (allowed: %s): %q", key, strings.Join(allowed, ", "), val)
}

func parseBrokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if s := strings.TrimSpace(b); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func LoadConfig(logger *log.Logger) (*Config, error) {
	v, err := newViper()
	if err != nil {
		logger.Printf("[config] config file: %v", err)
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var errs errList
	cfg := &Config{
		HTTPAddr: getRequired(v, "http_addr", &errs),

		LiveStore:      getString(v, "live_store"),
		RedisAddr:      getString(v, "redis_addr"),
		RedisPassword:  getString(v, "redis_password"),
		RedisDB:        getInt(v, "redis_db", &errs),
		RedisNamespace: getString(v, "redis_namespace"),
		RedisTimeout:   getDuration(v, "redis_timeout", &errs),

		ArchiveBackend: getString(v, "archive_backend"),

		S3Endpoint:  getString(v, "s3_endpoint"),
		S3AccessKey: getString(v, "s3_access_key"),
		S3SecretKey: getString(v, "s3_secret_key"),
		S3UseTLS:    getBool(v, "s3_use_tls", &errs),
		S3Bucket:    getString(v, "s3_bucket"),

		InfluxURL:    getString(v, "influx_url"),
		InfluxToken:  getString(v, "influx_token"),
		InfluxOrg:    getString(v, "influx_org"),
		InfluxBucket: getString(v, "influx_bucket"),

		KafkaBrokers:           parseBrokers(getString(v, "kafka_brokers")),
		KafkaAlertTopic:        getString(v, "kafka_alert_topic"),
		KafkaDLQTopic:          getString(v, "kafka_dlq_topic"),
		KafkaTopicPartitions:   getInt(v, "kafka_topic_partitions", &errs),
		KafkaReplicationFactor: getInt(v, "kafka_replication_factor", &errs),
		KafkaRetentionMs:       getInt64(v, "kafka_retention_ms", &errs),
		KafkaCompression:       strings.ToLower(getString(v, "kafka_compression")),
		KafkaRequiredAcks:      strings.ToLower(getString(v, "kafka_required_acks")),

		MQTTBrokerURL:   getString(v, "mqtt_broker_url"),
		MQTTClientID:    getString(v, "mqtt_client_id"),
		MQTTUsername:    getString(v, "mqtt_username"),
		MQTTPassword:    getString(v, "mqtt_password"),
		MQTTTopicPrefix: strings.TrimSuffix(getString(v, "mqtt_topic_prefix"), "/"),

		OfflineAfter:        getDuration(v, "offline_after", &errs),
		OfflinePollInterval: getDuration(v, "offline_poll_interval", &errs),
		TempHigh:            getFloat(v, "temp_high", &errs),
		TempLow:             getFloat(v, "temp_low", &errs),
		NotifyQueue:         getInt(v, "notify_queue", &errs),
		SyncInterval:        getDuration(v, "sync_interval", &errs),

		ParquetCompression: strings.ToUpper(getString(v, "parquet_compression")),
		ExportBasePath:     strings.Trim(getString(v, "export_base_path"), "/"),
	}
	qos := getInt(v, "mqtt_qos", &errs)

	ensureOneOf("LIVE_STORE", cfg.LiveStore, []string{"redis", "memory"}, &errs)
	ensureOneOf("ARCHIVE_BACKEND", cfg.ArchiveBackend, []string{"minio", "influx", "memory"}, &errs)
	ensureOneOf("PARQUET_COMPRESSION", cfg.ParquetCompression, []string{"SNAPPY", "ZSTD", "GZIP"}, &errs)

	if cfg.LiveStore == "redis" && cfg.RedisAddr == "" {
		errs.add("REDIS_ADDR cannot be empty when LIVE_STORE=redis")
	}
	if cfg.RedisTimeout <= 0 {
		errs.add("REDIS_TIMEOUT must be > 0")
	}

	switch cfg.ArchiveBackend {
	case "minio":
		if cfg.S3Endpoint == "" {
			errs.add("S3_ENDPOINT cannot be empty when ARCHIVE_BACKEND=minio")
		}
		if cfg.S3AccessKey == "" {
			errs.add("S3_ACCESS_KEY cannot be empty when ARCHIVE_BACKEND=minio")
		}
		if cfg.S3SecretKey == "" {
			errs.add("S3_SECRET_KEY cannot be empty when ARCHIVE_BACKEND=minio")
		}
		if cfg.S3Bucket == "" {
			errs.add("S3_BUCKET cannot be empty when ARCHIVE_BACKEND=minio")
		}
	case "influx":
		if cfg.InfluxURL == "" {
			errs.add("INFLUX_URL cannot be empty when ARCHIVE_BACKEND=influx")
		}
		if cfg.InfluxToken == "" {
			errs.add("INFLUX_TOKEN cannot be empty when ARCHIVE_BACKEND=influx")
		}
		if cfg.InfluxOrg == "" {
			errs.add("INFLUX_ORG cannot be empty when ARCHIVE_BACKEND=influx")
		}
		if cfg.InfluxBucket == "" {
			errs.add("INFLUX_BUCKET cannot be empty when ARCHIVE_BACKEND=influx")
		}
	}

	if cfg.KafkaEnabled() {
		ensureOneOf("KAFKA_COMPRESSION", cfg.KafkaCompression, []string{"none", "gzip", "snappy", "lz4", "zstd"}, &errs)
		ensureOneOf("KAFKA_REQUIRED_ACKS", cfg.KafkaRequiredAcks, []string{"none", "one", "all"}, &errs)
		if cfg.KafkaAlertTopic == "" {
			errs.add("KAFKA_ALERT_TOPIC cannot be empty")
		}
		if cfg.KafkaDLQTopic == "" {
			errs.add("KAFKA_DLQ_TOPIC cannot be empty")
		}
		if cfg.KafkaTopicPartitions <= 0 {
			errs.add("KAFKA_TOPIC_PARTITIONS must be > 0")
		}
		if cfg.KafkaReplicationFactor <= 0 {
			errs.add("KAFKA_REPLICATION_FACTOR must be > 0")
		}
		if cfg.KafkaReplicationFactor > len(cfg.KafkaBrokers) {
			errs.add("KAFKA_REPLICATION_FACTOR cannot exceed the number of brokers in KAFKA_BROKERS")
		}
		if cfg.KafkaRetentionMs < -1 {
			errs.add("KAFKA_RETENTION_MS must be >= -1")
		}
	}

	if cfg.MQTTEnabled() {
		if cfg.MQTTClientID == "" {
			errs.add("MQTT_CLIENT_ID cannot be empty when MQTT_BROKER_URL is set")
		}
		if cfg.MQTTTopicPrefix == "" {
			errs.add("MQTT_TOPIC_PREFIX cannot be empty when MQTT_BROKER_URL is set")
		}
	}
	if qos < 0 || qos > 2 {
		errs.addf("MQTT_QOS invalid (0, 1 or 2): %d", qos)
	} else {
		cfg.MQTTQoS = byte(qos)
	}

	if cfg.OfflineAfter <= 0 {
		errs.add("OFFLINE_AFTER must be > 0")
	}
	if cfg.OfflinePollInterval <= 0 {
		errs.add("OFFLINE_POLL_INTERVAL must be > 0")
	}
	if cfg.TempLow >= cfg.TempHigh {
		errs.add("TEMP_LOW must be lower than TEMP_HIGH")
	}
	if cfg.NotifyQueue <= 0 {
		errs.add("NOTIFY_QUEUE must be > 0")
	}
	if cfg.SyncInterval < 0 {
		errs.add("SYNC_INTERVAL must be >= 0")
	}
	if cfg.ExportBasePath == "" {
		errs.add("EXPORT_BASE_PATH cannot be empty")
	}

	if errs.has() {
		for _, e := range errs {
			logger.Printf("[config] %s", e)
		}
		return nil, errors.New("missing/invalid configuration, see logs above")
	}
	return cfg, nil
}
