package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-pipeline/internal/weather"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENWEATHER_API_KEY", "ow-key")
	t.Setenv("CITIES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openweathermap", cfg.SourceProvider)
	assert.Equal(t, "ow-key", cfg.SourceAPIKey())
	assert.Equal(t, weather.DefaultCities, cfg.Cities)
	assert.Equal(t, 72*time.Hour, cfg.BackfillWindow)
	assert.Equal(t, 10*time.Second, cfg.BackfillDelay)
	assert.Equal(t, 1000, cfg.BackfillBatchSize)
	assert.Equal(t, time.Hour, cfg.UpdateInterval)
	assert.Equal(t, 30*time.Second, cfg.FirstUpdateDelay)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 1.0, cfg.SourceRateLimitRPS)
	assert.Equal(t, 5, cfg.SourceRateLimitBurst)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "weather_data", cfg.WarehouseDataset)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SOURCE_PROVIDER", "WeatherAPI")
	t.Setenv("WEATHERAPI_API_KEY", "wa-key")
	t.Setenv("CITIES", " London , Paris,,Tokyo ")
	t.Setenv("BACKFILL_WINDOW", "24h")
	t.Setenv("UPDATE_INTERVAL", "15m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://localhost/weather")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "weatherapi", cfg.SourceProvider)
	assert.Equal(t, "wa-key", cfg.SourceAPIKey())
	assert.Equal(t, []string{"London", "Paris", "Tokyo"}, cfg.Cities)
	assert.Equal(t, 24*time.Hour, cfg.BackfillWindow)
	assert.Equal(t, 15*time.Minute, cfg.UpdateInterval)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/weather", cfg.DatabaseURL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing provider key": {"OPENWEATHER_API_KEY": ""},
		"unknown provider":     {"SOURCE_PROVIDER": "darksky", "OPENWEATHER_API_KEY": "k"},
		"bad duration":         {"OPENWEATHER_API_KEY": "k", "UPDATE_INTERVAL": "hourly"},
		"window too short":     {"OPENWEATHER_API_KEY": "k", "BACKFILL_WINDOW": "30m"},
		"bad log level":        {"OPENWEATHER_API_KEY": "k", "LOG_LEVEL": "loud"},
		"bad port":             {"OPENWEATHER_API_KEY": "k", "PORT": "http"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
