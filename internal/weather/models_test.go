package weather

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewObservationNormalizes(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	ts := time.Date(2024, 12, 7, 15, 0, 0, 0, loc)

	obs := NewObservation("London", ts, 15.456, 120, -2.5, "light rain")

	assert.NotEmpty(t, obs.ID)
	assert.Equal(t, time.UTC, obs.Timestamp.Location())
	assert.True(t, obs.Timestamp.Equal(ts))
	assert.Equal(t, 15.46, obs.Temperature)
	assert.Equal(t, 100, obs.Humidity)
	assert.Equal(t, 0.0, obs.WindSpeed)
	require.NoError(t, obs.Validate())
}

func TestObservationValidate(t *testing.T) {
	valid := NewObservation("Paris", time.Now(), 10, 50, 3, "clear sky")
	require.NoError(t, valid.Validate())

	missingCity := valid
	missingCity.City = ""
	assert.Error(t, missingCity.Validate())

	badHumidity := valid
	badHumidity.Humidity = 101
	assert.Error(t, badHumidity.Validate())

	local := valid
	local.Timestamp = valid.Timestamp.In(time.FixedZone("X", 3600))
	assert.Error(t, local.Validate())
}

func TestCitiesLookupIsCaseInsensitive(t *testing.T) {
	c := NewCities([]string{"London", "LONDON", " ", "São Paulo", "Paris"})

	assert.Equal(t, []string{"London", "São Paulo", "Paris"}, c.Names())
	assert.Equal(t, 3, c.Len())

	name, ok := c.Lookup("são paulo")
	require.True(t, ok)
	assert.Equal(t, "São Paulo", name)

	_, ok = c.Lookup("Atlantis")
	assert.False(t, ok)
}

func TestSourceErrorKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &SourceError{Kind: SourceRateLimited, City: "Oslo", Err: errors.New("429")})
	assert.Equal(t, SourceRateLimited, SourceErrorKindOf(err))
	assert.Equal(t, SourceErrorKind(""), SourceErrorKindOf(errors.New("plain")))
}
