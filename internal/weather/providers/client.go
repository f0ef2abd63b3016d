package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-pipeline/internal/weather"
)

var (
	// ErrNoCities is returned by FetchMany when called with no cities.
	ErrNoCities = errors.New("no cities to fetch")

	// ErrSourceOutage is returned by FetchMany when every city failed at the transport level.
	ErrSourceOutage = errors.New("weather source unreachable")
)

// Provider names accepted by NewProvider.
const (
	ProviderOpenWeather = "openweathermap"
	ProviderWeatherAPI  = "weatherapi"
)

// NewProvider builds the named provider.
func NewProvider(name string, client *http.Client, apiKey string, opts ...Option) (weather.Source, error) {
	switch strings.ToLower(name) {
	case "", ProviderOpenWeather:
		return NewOpenWeatherProvider(client, apiKey, opts...), nil
	case ProviderWeatherAPI:
		return NewWeatherAPIProvider(client, apiKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown weather provider %q", name)
	}
}

// Client is the Source Client: a provider behind a rate limiter with
// bounded fan-out for batch fetches.
type Client struct {
	source      weather.Source
	limiter     *rate.Limiter
	concurrency int
}

var _ weather.BatchSource = (*Client)(nil)

// NewClient wraps source. rps <= 0 disables rate limiting; concurrency < 1 means sequential.
func NewClient(source weather.Source, rps float64, burst, concurrency int) *Client {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Client{
		source:      source,
		limiter:     rate.NewLimiter(limit, burst),
		concurrency: concurrency,
	}
}

func (c *Client) Name() string {
	return c.source.Name()
}

// Fetch waits for the rate limiter and fetches one city.
func (c *Client) Fetch(ctx context.Context, city string) (weather.Observation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return weather.Observation{}, &weather.SourceError{
			Kind: weather.SourceNetwork,
			City: city,
			Err:  fmt.Errorf("rate limit wait canceled: %w", err),
		}
	}
	return c.source.Fetch(ctx, city)
}

// FetchMany fetches every city independently and returns the successes in input order.
// Per-city failures are logged and skipped.
func (c *Client) FetchMany(ctx context.Context, cities []string) ([]weather.Observation, error) {
	if len(cities) == 0 {
		return nil, ErrNoCities
	}

	var (
		results = make([]weather.Observation, len(cities))
		failed  = make([]weather.SourceErrorKind, len(cities))
		g       errgroup.Group
	)
	g.SetLimit(c.concurrency)

	for i, city := range cities {
		g.Go(func() error {
			obs, err := c.Fetch(ctx, city)
			if err != nil {
				kind := weather.SourceErrorKindOf(err)
				if kind == "" {
					kind = weather.SourceNetwork
				}
				failed[i] = kind
				slog.Warn("providers: fetch failed", "provider", c.Name(), "city", city, "kind", kind, "error", err)
				return nil
			}
			results[i] = obs
			return nil
		})
	}
	_ = g.Wait()

	out := make([]weather.Observation, 0, len(cities))
	networkFailures := 0
	for i := range cities {
		switch failed[i] {
		case "":
			out = append(out, results[i])
		case weather.SourceNetwork:
			networkFailures++
		}
	}

	if len(out) == 0 && networkFailures == len(cities) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: all %d cities failed", ErrSourceOutage, len(cities))
	}

	slog.Info("providers: batch fetch finished", "provider", c.Name(), "requested", len(cities), "fetched", len(out))
	return out, nil
}
