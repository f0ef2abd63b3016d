package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/sashabaranov/go-openai"

	"github.com/i474232898/weather-pipeline/internal/common"
	"github.com/i474232898/weather-pipeline/internal/weather"
)

// Tool names, in priority order.
const (
	StorageLatest  = "get_current_weather_from_storage"
	StorageHistory = "get_weather_history_from_storage"
	LiveCurrent    = "get_current_weather_from_api"
)

const (
	UnitCelsius    = "Celsius"
	UnitPercentage = "percentage"
	UnitMS         = "m/s"

	SourceStorage = "storage"

	DefaultHistoryDays = 7
	MaxHistoryDays     = 60

	// maxHistoryRecords bounds the raw rows returned with a history result.
	maxHistoryRecords = 10
)

// Priority orders tool names: storage lookup, then storage history, then live fetch.
// Unknown tools sort last.
func Priority(name string) int {
	switch name {
	case StorageLatest:
		return 0
	case StorageHistory:
		return 1
	case LiveCurrent:
		return 2
	default:
		return 3
	}
}

// CityArgs are the arguments of the current-weather tools.
type CityArgs struct {
	City string `json:"city" jsonschema:"description=The name of the city (e.g. London or Colombo)"`
}

// HistoryArgs are the arguments of the history tool.
type HistoryArgs struct {
	City string `json:"city" jsonschema:"description=The name of the city (e.g. London or Colombo)"`
	Days int    `json:"days,omitempty" jsonschema:"description=Number of days of history to retrieve,minimum=1,maximum=60,default=7"`
}

// ExecutionError is a tool failure. It is reported inside a Result, never returned.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Units names the unit of each measurement in a result.
type Units struct {
	Temperature string `json:"temperature"`
	Humidity    string `json:"humidity"`
	WindSpeed   string `json:"wind_speed"`
}

var metricUnits = Units{Temperature: UnitCelsius, Humidity: UnitPercentage, WindSpeed: UnitMS}

// Reading is one observation as handed to the language model.
type Reading struct {
	City        string    `json:"city"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	Condition   string    `json:"condition"`
	Units       Units     `json:"units"`
}

func newReading(o weather.Observation) Reading {
	return Reading{
		City:        o.City,
		Timestamp:   o.Timestamp,
		Temperature: o.Temperature,
		Humidity:    o.Humidity,
		WindSpeed:   o.WindSpeed,
		Condition:   o.Condition,
		Units:       metricUnits,
	}
}

// History is the payload of a successful history lookup.
type History struct {
	City        string     `json:"city"`
	PeriodDays  int        `json:"period_days"`
	RecordCount int        `json:"record_count"`
	Statistics  Statistics `json:"statistics"`
	Records     []Reading  `json:"records"`
}

// Result is the structured outcome of one tool call.
type Result struct {
	Success bool   `json:"success"`
	City    string `json:"city,omitempty"`
	Source  string `json:"source,omitempty"`
	Error   string `json:"error,omitempty"`
	// Skipped marks a live call that was not made because storage answered.
	Skipped bool `json:"skipped,omitempty"`

	Current *Reading `json:"current,omitempty"`
	History *History `json:"history,omitempty"`
}

// JSON encodes the result for a tool message.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(b)
}

func failure(tool, city string, err error) Result {
	execErr := &ExecutionError{Tool: tool, Err: err}
	slog.Warn("tools: execution failed", "tool", tool, "city", city, "err", err)
	return Result{Success: false, City: city, Error: execErr.Error()}
}

// Registry executes the weather tools against a repository and a live source.
// It is immutable after construction.
type Registry struct {
	repo        weather.Repository
	live        weather.Source
	now         func() time.Time
	definitions []openai.Tool
}

// New creates a Registry. live may be nil, in which case live calls fail.
func New(repo weather.Repository, live weather.Source) *Registry {
	return &Registry{
		repo: repo,
		live: live,
		now:  time.Now,
		definitions: []openai.Tool{
			definition(StorageLatest,
				"Get the current weather for a city from stored data. Use this as the primary method to retrieve weather information.",
				&CityArgs{}),
			definition(StorageHistory,
				"Get historical weather data and statistics for a city from stored data. Use this to answer questions about past weather patterns, averages, or trends.",
				&HistoryArgs{}),
			definition(LiveCurrent,
				"FALLBACK ONLY: Get current weather directly from the live weather provider. Use this only when the storage query fails or returns no data.",
				&CityArgs{}),
		},
	}
}

func definition(name, description string, args any) openai.Tool {
	ref := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	schema := ref.Reflect(args)
	schema.Version = ""
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
	}
}

// Definitions returns the tool declarations for a tool-enabled completion.
func (r *Registry) Definitions() []openai.Tool {
	return r.definitions
}

// Names returns the registered tool names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.definitions))
	for _, d := range r.definitions {
		names = append(names, d.Function.Name)
	}
	return names
}

// LiveSource returns the label used for live results, e.g. "live (OpenWeatherMap)".
func (r *Registry) LiveSource() string {
	if r.live == nil {
		return "live"
	}
	return "live (" + r.live.Name() + ")"
}

// Execute runs a tool by name with JSON arguments. Failures are reported in the Result.
func (r *Registry) Execute(ctx context.Context, name, arguments string) Result {
	switch name {
	case StorageLatest:
		var args CityArgs
		if err := decodeArgs(arguments, &args); err != nil {
			return failure(name, "", err)
		}
		return r.currentFromStorage(ctx, args.City)
	case StorageHistory:
		var args HistoryArgs
		if err := decodeArgs(arguments, &args); err != nil {
			return failure(name, "", err)
		}
		return r.historyFromStorage(ctx, args.City, args.Days)
	case LiveCurrent:
		var args CityArgs
		if err := decodeArgs(arguments, &args); err != nil {
			return failure(name, "", err)
		}
		return r.currentFromLive(ctx, args.City)
	default:
		return failure(name, "", fmt.Errorf("unknown tool %q", name))
	}
}

// CityOf extracts the city argument from a tool call, or "".
func CityOf(arguments string) string {
	var args CityArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return ""
	}
	return args.City
}

func decodeArgs(arguments string, v any) error {
	if strings.TrimSpace(arguments) == "" {
		return errors.New("missing arguments")
	}
	if err := json.Unmarshal([]byte(arguments), v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (r *Registry) currentFromStorage(ctx context.Context, city string) Result {
	city = strings.TrimSpace(city)
	if city == "" {
		return failure(StorageLatest, city, errors.New("city is required"))
	}

	o, err := r.repo.ReadLatest(ctx, city)
	if errors.Is(err, weather.ErrNotFound) {
		return failure(StorageLatest, city, fmt.Errorf("no weather data found for %s in storage", city))
	}
	if err != nil {
		return failure(StorageLatest, city, fmt.Errorf("failed to fetch weather data from storage: %w", err))
	}

	reading := newReading(o)
	return Result{Success: true, City: o.City, Source: SourceStorage, Current: &reading}
}

func (r *Registry) historyFromStorage(ctx context.Context, city string, days int) Result {
	city = strings.TrimSpace(city)
	if city == "" {
		return failure(StorageHistory, city, errors.New("city is required"))
	}
	if days == 0 {
		days = DefaultHistoryDays
	}
	days = common.ClampInt(days, 1, MaxHistoryDays)

	since := r.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := r.repo.ReadRange(ctx, city, since)
	if err != nil {
		return failure(StorageHistory, city, fmt.Errorf("failed to fetch weather history from storage: %w", err))
	}

	stats, ok := ComputeStatistics(rows)
	if !ok {
		return failure(StorageHistory, city, fmt.Errorf("no weather history found for %s in the last %d days", city, days))
	}

	records := make([]Reading, 0, min(len(rows), maxHistoryRecords))
	for _, o := range rows[:min(len(rows), maxHistoryRecords)] {
		records = append(records, newReading(o))
	}

	return Result{
		Success: true,
		City:    city,
		Source:  SourceStorage,
		History: &History{
			City:        city,
			PeriodDays:  days,
			RecordCount: len(rows),
			Statistics:  stats,
			Records:     records,
		},
	}
}

func (r *Registry) currentFromLive(ctx context.Context, city string) Result {
	city = strings.TrimSpace(city)
	if city == "" {
		return failure(LiveCurrent, city, errors.New("city is required"))
	}
	if r.live == nil {
		return failure(LiveCurrent, city, errors.New("live source not configured"))
	}

	o, err := r.live.Fetch(ctx, city)
	if err != nil {
		return failure(LiveCurrent, city, fmt.Errorf("failed to fetch weather data from live source: %w", err))
	}

	reading := newReading(o)
	return Result{Success: true, City: o.City, Source: r.LiveSource(), Current: &reading}
}
