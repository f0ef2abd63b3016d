package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-pipeline/internal/weather"
)

func TestWeatherAPIFetchConvertsUnits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Paris", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{
			"location": {"name": "Paris"},
			"current": {
				"last_updated_epoch": 1733572800,
				"temp_c": 9.1,
				"humidity": 81,
				"wind_kph": 18.0,
				"condition": {"text": "Partly cloudy"}
			}
		}`))
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	obs, err := p.Fetch(context.Background(), "Paris")
	require.NoError(t, err)

	assert.Equal(t, 9.1, obs.Temperature)
	assert.Equal(t, 81, obs.Humidity)
	assert.Equal(t, 5.0, obs.WindSpeed)
	assert.Equal(t, "Partly cloudy", obs.Condition)
	assert.Equal(t, time.Unix(1733572800, 0).UTC(), obs.Timestamp)
}

func TestWeatherAPIUnknownLocationIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": 1006, "message": "No matching location found."}}`))
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	_, err := p.Fetch(context.Background(), "Atlantis")
	require.Error(t, err)
	assert.Equal(t, weather.SourceNotFound, weather.SourceErrorKindOf(err))
}

func TestWeatherAPIOtherBadRequestIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": 1003, "message": "Parameter q is missing."}}`))
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	_, err := p.Fetch(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, weather.SourceNetwork, weather.SourceErrorKindOf(err))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider("", http.DefaultClient, "k")
	require.NoError(t, err)
	assert.Equal(t, "OpenWeatherMap", p.Name())

	p, err = NewProvider("WeatherAPI", http.DefaultClient, "k")
	require.NoError(t, err)
	assert.Equal(t, "WeatherAPI", p.Name())

	_, err = NewProvider("open-meteo", http.DefaultClient, "")
	assert.Error(t, err)
}
