package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "pharma.db", cfg.DBPath)
	assert.Equal(t, 120, cfg.WriteRateLimit)
	assert.Equal(t, time.Hour, cfg.MonitorInterval)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.CORSOrigins)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_PATH", "/var/lib/pharma/ledger.db")
	t.Setenv("CORS_ORIGINS", "https://pharma.example")
	t.Setenv("MONITOR_INTERVAL", "15m")
	t.Setenv("DEFAULT_ACTOR", "comptoir@pharma.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "/var/lib/pharma/ledger.db", cfg.DBPath)
	assert.Equal(t, []string{"https://pharma.example"}, cfg.CORSOrigins)
	assert.Equal(t, 15*time.Minute, cfg.MonitorInterval)
	assert.Equal(t, "comptoir@pharma.example", cfg.Actor)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero rate limit", "WRITE_RATE_LIMIT", "0"},
		{"negative monitor interval", "MONITOR_INTERVAL", "-1m"},
		{"unparsable duration", "APP_READ_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
