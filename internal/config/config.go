package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidInterval    = errors.New("polling interval must be positive")
	ErrInvalidTimeout     = errors.New("timeouts must be positive")
	ErrInvalidAttempts    = errors.New("merge attempts must be positive")
	ErrMissingBridgeURL   = errors.New("live bridge url is required")
	ErrMissingMongoURI    = errors.New("mongo uri is required")
	ErrMissingStreamerSrc = errors.New("a streamers file or redis set key is required")
)

// Config holds runtime configuration for the tracker service.
type Config struct {
	PollInterval    time.Duration
	ConnectPacing   time.Duration
	NotLiveCooldown time.Duration
	ConnectTimeout  time.Duration
	StateTimeout    time.Duration
	ShutdownTimeout time.Duration

	StreamersFile  string
	StreamerSetKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	MergeMaxAttempts    uint
	MergeInitialBackoff time.Duration
	RecoveryRetryDelay  time.Duration

	KafkaBrokers         []string
	KafkaTopicDeadLetter string
	KafkaGroupIDRecovery string

	LiveBridgeURL string
	LiveSessionID string

	HTTPAddr string
	LogLevel string
}

// KafkaEnabled reports whether dead-lettering to Kafka is configured.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("POLLING_INTERVAL_MINUTES", 5)
	v.SetDefault("CONNECT_PACING", time.Second)
	v.SetDefault("NOT_LIVE_COOLDOWN", 60*time.Second)
	v.SetDefault("CONNECT_TIMEOUT", 30*time.Second)
	v.SetDefault("STATE_TIMEOUT", 10*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 30*time.Second)

	v.SetDefault("STREAMERS_FILE", "streamers.txt")
	v.SetDefault("STREAMER_SET_KEY", "")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "tiktok")
	v.SetDefault("MONGO_COLLECTION", "streamers")

	v.SetDefault("MERGE_MAX_ATTEMPTS", 5)
	v.SetDefault("MERGE_INITIAL_BACKOFF", 500*time.Millisecond)
	v.SetDefault("RECOVERY_RETRY_DELAY", 30*time.Second)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC_DEAD_LETTER", "stream_records_dead_letter")
	v.SetDefault("KAFKA_GROUP_ID_RECOVERY", "tracker-recovery")

	v.SetDefault("LIVE_BRIDGE_URL", "ws://localhost:8765/live")
	v.SetDefault("LIVE_SESSION_ID", "")

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
}

// splitCSV trims every item and drops empty ones.
func splitCSV(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	minutes := v.GetInt("POLLING_INTERVAL_MINUTES")
	attempts := v.GetInt("MERGE_MAX_ATTEMPTS")
	if attempts < 0 {
		attempts = 0
	}

	cfg := Config{
		PollInterval:    time.Duration(minutes) * time.Minute,
		ConnectPacing:   v.GetDuration("CONNECT_PACING"),
		NotLiveCooldown: v.GetDuration("NOT_LIVE_COOLDOWN"),
		ConnectTimeout:  v.GetDuration("CONNECT_TIMEOUT"),
		StateTimeout:    v.GetDuration("STATE_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),

		StreamersFile:  strings.TrimSpace(v.GetString("STREAMERS_FILE")),
		StreamerSetKey: strings.TrimSpace(v.GetString("STREAMER_SET_KEY")),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		MongoURI:        v.GetString("MONGO_URI"),
		MongoDatabase:   v.GetString("MONGO_DATABASE"),
		MongoCollection: v.GetString("MONGO_COLLECTION"),

		MergeMaxAttempts:    uint(attempts),
		MergeInitialBackoff: v.GetDuration("MERGE_INITIAL_BACKOFF"),
		RecoveryRetryDelay:  v.GetDuration("RECOVERY_RETRY_DELAY"),

		KafkaBrokers:         splitCSV(v.GetString("KAFKA_BROKERS")),
		KafkaTopicDeadLetter: v.GetString("KAFKA_TOPIC_DEAD_LETTER"),
		KafkaGroupIDRecovery: v.GetString("KAFKA_GROUP_ID_RECOVERY"),

		LiveBridgeURL: strings.TrimSpace(v.GetString("LIVE_BRIDGE_URL")),
		LiveSessionID: v.GetString("LIVE_SESSION_ID"),

		HTTPAddr: v.GetString("HTTP_ADDR"),
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.PollInterval <= 0:
		return ErrInvalidInterval
	case cfg.ConnectTimeout <= 0 || cfg.StateTimeout <= 0 || cfg.ShutdownTimeout <= 0:
		return ErrInvalidTimeout
	case cfg.MergeMaxAttempts == 0:
		return ErrInvalidAttempts
	case cfg.LiveBridgeURL == "":
		return ErrMissingBridgeURL
	case cfg.MongoURI == "":
		return ErrMissingMongoURI
	case cfg.StreamersFile == "" && cfg.StreamerSetKey == "":
		return ErrMissingStreamerSrc
	}
	return nil
}
