package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.ConnectPacing)
	assert.Equal(t, 60*time.Second, cfg.NotLiveCooldown)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.StateTimeout)
	assert.Equal(t, "streamers.txt", cfg.StreamersFile)
	assert.Equal(t, "tiktok", cfg.MongoDatabase)
	assert.Equal(t, "streamers", cfg.MongoCollection)
	assert.Equal(t, uint(5), cfg.MergeMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.MergeInitialBackoff)
	assert.Equal(t, "stream_records_dead_letter", cfg.KafkaTopicDeadLetter)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("POLLING_INTERVAL_MINUTES", "1")
	t.Setenv("NOT_LIVE_COOLDOWN", "90s")
	t.Setenv("CONNECT_PACING", "250ms")
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	t.Setenv("MERGE_MAX_ATTEMPTS", "3")
	t.Setenv("STREAMER_SET_KEY", "tracker:streamers")
	t.Setenv("LIVE_SESSION_ID", "abc123")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, 90*time.Second, cfg.NotLiveCooldown)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectPacing)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, uint(3), cfg.MergeMaxAttempts)
	assert.Equal(t, "tracker:streamers", cfg.StreamerSetKey)
	assert.Equal(t, "abc123", cfg.LiveSessionID)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		key, value string
		want       error
	}{
		{"POLLING_INTERVAL_MINUTES", "0", config.ErrInvalidInterval},
		{"CONNECT_TIMEOUT", "-1s", config.ErrInvalidTimeout},
		{"MERGE_MAX_ATTEMPTS", "0", config.ErrInvalidAttempts},
		{"STREAMERS_FILE", "   ", config.ErrMissingStreamerSrc},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := config.LoadConfig()
			require.ErrorIs(t, err, tc.want)
		})
	}
}
