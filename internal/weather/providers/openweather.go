package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-pipeline/internal/weather"
)

// OpenWeatherProvider implements weather.Source for OpenWeatherMap.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

var _ weather.Source = (*OpenWeatherProvider)(nil)

func NewOpenWeatherProvider(client *http.Client, apiKey string, opts ...Option) *OpenWeatherProvider {
	o := applyOptions("https://api.openweathermap.org/data/2.5/weather", opts)

	return &OpenWeatherProvider{
		name:    "OpenWeatherMap",
		apiKey:  apiKey,
		baseURL: o.baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: o.backoff,
		},
		circuit: newCircuitBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, city string) (weather.Observation, error) {
	if p.apiKey == "" {
		return weather.Observation{}, sourceError(city, fmt.Errorf("openweather api key is not configured"))
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("q", city)
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Observation{}, sourceError(city, err)
	}
	if err := checkStatus(resp); err != nil {
		return weather.Observation{}, sourceError(city, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Dt   int64 `json:"dt"`
		Main *struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Observation{}, sourceError(city, fmt.Errorf("%w: %v", errMalformed, err))
	}
	if payload.Main == nil || payload.Dt <= 0 {
		return weather.Observation{}, sourceError(city, fmt.Errorf("%w: missing main or dt", errMalformed))
	}

	return weather.NewObservation(
		city,
		time.Unix(payload.Dt, 0).UTC(),
		payload.Main.Temp,
		int(payload.Main.Humidity+0.5),
		payload.Wind.Speed,
		openWeatherCondition(payload.Weather),
	), nil
}

// openWeatherCondition takes the first entry of the provider's condition list.
func openWeatherCondition(items []struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}) string {
	if len(items) == 0 {
		return "Unknown"
	}
	if items[0].Description != "" {
		return items[0].Description
	}
	return items[0].Main
}
