package tools

import (
	"github.com/i474232898/weather-pipeline/internal/common"
	"github.com/i474232898/weather-pipeline/internal/weather"
)

// Statistics summarizes a window of stored observations.
type Statistics struct {
	AverageTemperature float64 `json:"average_temperature"`
	MinTemperature     float64 `json:"min_temperature"`
	MaxTemperature     float64 `json:"max_temperature"`
	AverageHumidity    float64 `json:"average_humidity"`
	TemperatureUnit    string  `json:"temperature_unit"`
	HumidityUnit       string  `json:"humidity_unit"`
}

// ComputeStatistics returns temperature and humidity statistics rounded to
// two decimals. It returns false for an empty window.
func ComputeStatistics(observations []weather.Observation) (Statistics, bool) {
	if len(observations) == 0 {
		return Statistics{}, false
	}

	minT, maxT := observations[0].Temperature, observations[0].Temperature
	var sumT float64
	var sumH int
	for _, o := range observations {
		sumT += o.Temperature
		sumH += o.Humidity
		minT = min(minT, o.Temperature)
		maxT = max(maxT, o.Temperature)
	}
	n := float64(len(observations))

	return Statistics{
		AverageTemperature: common.RoundTo(sumT/n, 2),
		MinTemperature:     common.RoundTo(minT, 2),
		MaxTemperature:     common.RoundTo(maxT, 2),
		AverageHumidity:    common.RoundTo(float64(sumH)/n, 2),
		TemperatureUnit:    UnitCelsius,
		HumidityUnit:       UnitPercentage,
	}, true
}
