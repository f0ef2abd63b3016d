package weather

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/i474232898/weather-pipeline/internal/common"
)

var validate = validator.New()

// Observation is one city's weather measurement at one UTC instant.
// Observations are append-only and never mutated after they are written.
type Observation struct {
	ID          string    `json:"id" validate:"required"`
	City        string    `json:"city" validate:"required"`
	Timestamp   time.Time `json:"timestamp" validate:"required"` // always UTC
	Temperature float64   `json:"temperature"`                   // Celsius
	Humidity    int       `json:"humidity" validate:"min=0,max=100"`
	WindSpeed   float64   `json:"wind_speed" validate:"min=0"` // m/s
	Condition   string    `json:"condition" validate:"required"`
}

// NewObservation builds a normalized observation with a fresh id.
func NewObservation(city string, ts time.Time, temperature float64, humidity int, windSpeed float64, condition string) Observation {
	return Observation{
		ID:          uuid.NewString(),
		City:        city,
		Timestamp:   ts,
		Temperature: temperature,
		Humidity:    humidity,
		WindSpeed:   windSpeed,
		Condition:   condition,
	}.Normalize()
}

// Normalize clamps humidity to [0,100] and wind speed to >= 0, rounds
// temperature and wind speed to two decimals and converts the timestamp to UTC.
func (o Observation) Normalize() Observation {
	o.Timestamp = o.Timestamp.UTC()
	o.Temperature = common.RoundTo(o.Temperature, 2)
	o.Humidity = common.ClampInt(o.Humidity, 0, 100)
	o.WindSpeed = common.RoundTo(max(0, o.WindSpeed), 2)
	if o.Condition == "" {
		o.Condition = "Unknown"
	}
	return o
}

// Validate reports whether every field is present and within range.
func (o Observation) Validate() error {
	if err := validate.Struct(o); err != nil {
		return err
	}
	if o.Timestamp.Location() != time.UTC {
		return errNotUTC
	}
	return nil
}

// CityKey is the case-insensitive key used to match city names.
func CityKey(city string) string {
	return common.FoldKey(city)
}
