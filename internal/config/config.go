package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/weather-pipeline/internal/weather"
)

var validate = validator.New()

type AppConfig struct {
	SourceProvider    string `validate:"oneof=openweathermap weatherapi"`
	OpenWeatherAPIKey string `validate:"required_if=SourceProvider openweathermap"`
	WeatherAPIKey     string `validate:"required_if=SourceProvider weatherapi"`

	OpenAIAPIKey  string
	OpenAIModel   string `validate:"required"`
	OpenAIBaseURL string `validate:"omitempty,url"`

	// DatabaseURL selects the Postgres warehouse; empty means in-memory storage.
	DatabaseURL      string
	WarehouseDataset string `validate:"required"`
	WarehouseTable   string `validate:"required"`

	Cities []string `validate:"min=1,dive,required"`

	BackfillWindow    time.Duration `validate:"min=1h"`
	BackfillDelay     time.Duration `validate:"gt=0"`
	BackfillBatchSize int           `validate:"min=1"`
	UpdateInterval    time.Duration `validate:"min=1m"`
	FirstUpdateDelay  time.Duration `validate:"gte=0"`
	ShutdownTimeout   time.Duration `validate:"gt=0"`

	HTTPTimeout time.Duration `validate:"gt=0"`

	SourceRateLimitRPS   float64 `validate:"gte=0"`
	SourceRateLimitBurst int     `validate:"min=1"`
	FetchConcurrency     int     `validate:"min=1"`

	LogLevel slog.Level
	Port     string `validate:"required,numeric"`
}

// Load reads configuration from the environment (and .env when present)
// with sensible defaults, then validates it.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("config: no .env file loaded", "err", err)
	}
	cfg := &AppConfig{}

	cfg.SourceProvider = strings.ToLower(getenvDefault("SOURCE_PROVIDER", "openweathermap"))
	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = getenvDefault("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.WarehouseDataset = getenvDefault("WAREHOUSE_DATASET", "weather_data")
	cfg.WarehouseTable = getenvDefault("WAREHOUSE_TABLE", "observations")

	cfg.Cities = loadCities()

	var err error
	if cfg.BackfillWindow, err = getenvDuration("BACKFILL_WINDOW", 72*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BackfillDelay, err = getenvDuration("BACKFILL_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	cfg.BackfillBatchSize = getenvInt("BACKFILL_BATCH_SIZE", 1000)
	if cfg.UpdateInterval, err = getenvDuration("UPDATE_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.FirstUpdateDelay, err = getenvDuration("FIRST_UPDATE_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getenvDuration("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.SourceRateLimitRPS, err = getenvFloat("SOURCE_RATE_LIMIT_RPS", 1); err != nil {
		return nil, err
	}
	cfg.SourceRateLimitBurst = getenvInt("SOURCE_RATE_LIMIT_BURST", 5)
	cfg.FetchConcurrency = getenvInt("FETCH_CONCURRENCY", 4)

	if err := cfg.LogLevel.UnmarshalText([]byte(getenvDefault("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.Port = getenvDefault("PORT", "8080")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SourceAPIKey returns the key for the selected provider.
func (c *AppConfig) SourceAPIKey() string {
	if c.SourceProvider == "weatherapi" {
		return c.WeatherAPIKey
	}
	return c.OpenWeatherAPIKey
}

// loadCities reads the comma-separated CITIES list, falling back to the default registry.
func loadCities() []string {
	raw := os.Getenv("CITIES")
	if strings.TrimSpace(raw) == "" {
		return weather.DefaultCities
	}
	var cities []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cities = append(cities, c)
		}
	}
	return cities
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
