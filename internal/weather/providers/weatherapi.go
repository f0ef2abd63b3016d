package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-pipeline/internal/weather"
)

// weatherAPINoMatchingLocation is WeatherAPI.com's error code for an unknown q parameter.
// The API reports it with HTTP 400 rather than 404.
const weatherAPINoMatchingLocation = 1006

// WeatherAPIProvider implements weather.Source for WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

var _ weather.Source = (*WeatherAPIProvider)(nil)

func NewWeatherAPIProvider(client *http.Client, apiKey string, opts ...Option) *WeatherAPIProvider {
	o := applyOptions("https://api.weatherapi.com/v1/current.json", opts)

	return &WeatherAPIProvider{
		name:    "WeatherAPI",
		apiKey:  apiKey,
		baseURL: o.baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: o.backoff,
		},
		circuit: newCircuitBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, city string) (weather.Observation, error) {
	if p.apiKey == "" {
		return weather.Observation{}, sourceError(city, fmt.Errorf("weatherapi api key is not configured"))
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", city)

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Observation{}, sourceError(city, err)
	}
	if resp.StatusCode == http.StatusBadRequest && isNoMatchingLocation(resp) {
		return weather.Observation{}, sourceError(city, errNotFound)
	}
	if err := checkStatus(resp); err != nil {
		return weather.Observation{}, sourceError(city, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Current *struct {
			LastUpdatedEpoch int64   `json:"last_updated_epoch"`
			TempC            float64 `json:"temp_c"`
			Humidity         float64 `json:"humidity"`
			WindKph          float64 `json:"wind_kph"`
			Condition        struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Observation{}, sourceError(city, fmt.Errorf("%w: %v", errMalformed, err))
	}
	if payload.Current == nil || payload.Current.LastUpdatedEpoch <= 0 {
		return weather.Observation{}, sourceError(city, fmt.Errorf("%w: missing current conditions", errMalformed))
	}

	cur := payload.Current
	return weather.NewObservation(
		city,
		time.Unix(cur.LastUpdatedEpoch, 0).UTC(),
		cur.TempC,
		int(cur.Humidity+0.5),
		kphToMS(cur.WindKph),
		cur.Condition.Text,
	), nil
}

func kphToMS(kph float64) float64 {
	return kph / 3.6
}

// isNoMatchingLocation peeks at a 400 body and restores it for checkStatus.
func isNoMatchingLocation(resp *http.Response) bool {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return false
	}

	var payload struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Error.Code == weatherAPINoMatchingLocation
}
