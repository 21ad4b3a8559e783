package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	var cfg Config
	require.NoError(t, LoadEnv(&cfg))

	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.Equal(t, "order.created", cfg.OrderCreatedTopic)
	assert.Equal(t, "reservation.compensation_failed", cfg.CompensationFailedTopic)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "success: disabled ignores empty brokers", cfg: Config{}},
		{name: "success: enabled with defaults", cfg: func() Config { c := DefaultConfig(); c.Enabled = true; return c }()},
		{name: "error: enabled without brokers", cfg: Config{Enabled: true, OrderCreatedTopic: "a", CompensationFailedTopic: "b"}, wantErr: true},
		{name: "error: enabled with blank broker", cfg: Config{Enabled: true, Brokers: []string{" "}, OrderCreatedTopic: "a", CompensationFailedTopic: "b"}, wantErr: true},
		{name: "error: missing topic", cfg: Config{Enabled: true, Brokers: []string{"k:9092"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
