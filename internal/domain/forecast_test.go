package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainwatch/internal/domain"
)

var testNow = time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

func TestParseForecast_ZAndOffsetParseToSameInstant(t *testing.T) {
	withZ, err := domain.ParseForecast([]byte(`[{"datetime":"2025-01-01T12:05:00Z","precipitation":0.5}]`))
	require.NoError(t, err)
	withOffset, err := domain.ParseForecast([]byte(`[{"datetime":"2025-01-01T12:05:00+00:00","precipitation":0.5}]`))
	require.NoError(t, err)

	require.Len(t, withZ, 1)
	require.Len(t, withOffset, 1)
	assert.True(t, withZ[0].Time.Equal(withOffset[0].Time))
}

func TestParseForecast_MissingPrecipitationDefaultsToZero(t *testing.T) {
	points, err := domain.ParseForecast([]byte(`[{"datetime":"2025-01-01T12:05:00Z"}]`))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Zero(t, points[0].Precipitation)
}

func TestParseForecast_MissingDatetimeKeptWithZeroTime(t *testing.T) {
	points, err := domain.ParseForecast([]byte(`[{"precipitation":1.2},{"datetime":"","precipitation":0.3}]`))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].Time.IsZero())
	assert.True(t, points[1].Time.IsZero())
}

func TestParseForecast_MalformedJSON(t *testing.T) {
	_, err := domain.ParseForecast([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestParseForecast_MalformedDatetime(t *testing.T) {
	_, err := domain.ParseForecast([]byte(`[{"datetime":"yesterday-ish","precipitation":0.5}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yesterday-ish")
}

func TestFindRain(t *testing.T) {
	mk := func(offset time.Duration, precip float64) domain.ForecastPoint {
		return domain.ForecastPoint{Time: testNow.Add(offset), Precipitation: precip}
	}

	tests := []struct {
		name        string
		points      []domain.ForecastPoint
		wantFound   bool
		wantMinutes int
	}{
		{
			name:   "empty forecast",
			points: nil,
		},
		{
			name:   "no precipitation anywhere",
			points: []domain.ForecastPoint{mk(0, 0), mk(5*time.Minute, 0), mk(10*time.Minute, 0)},
		},
		{
			name:        "rain in five minutes",
			points:      []domain.ForecastPoint{mk(0, 0), mk(5*time.Minute, 0.5)},
			wantFound:   true,
			wantMinutes: 5,
		},
		{
			name:   "rain outside the window",
			points: []domain.ForecastPoint{mk(0, 0), mk(35*time.Minute, 2.0)},
		},
		{
			name:        "rain exactly at the window edge",
			points:      []domain.ForecastPoint{mk(30*time.Minute, 0.5)},
			wantFound:   true,
			wantMinutes: 30,
		},
		{
			name:        "rain right now",
			points:      []domain.ForecastPoint{mk(0, 1.5)},
			wantFound:   true,
			wantMinutes: 0,
		},
		{
			name:        "past points are skipped",
			points:      []domain.ForecastPoint{mk(-10*time.Minute, 3.0), mk(12*time.Minute, 0.2)},
			wantFound:   true,
			wantMinutes: 12,
		},
		{
			name:        "points without timestamps are skipped",
			points:      []domain.ForecastPoint{{Precipitation: 9.9}, mk(8*time.Minute, 0.4)},
			wantFound:   true,
			wantMinutes: 8,
		},
		{
			// The feed is assumed time-ordered: once a point is past the
			// window the scan stops, even if a later entry would qualify.
			name:   "scan stops at first point past the window",
			points: []domain.ForecastPoint{mk(40*time.Minute, 1.0), mk(10*time.Minute, 1.0)},
		},
		{
			name:        "minutes round down",
			points:      []domain.ForecastPoint{mk(5*time.Minute+30*time.Second, 0.5)},
			wantFound:   true,
			wantMinutes: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.FindRain(tt.points, testNow, 30*time.Minute)
			assert.Equal(t, tt.wantFound, got.Found)
			assert.Equal(t, tt.wantMinutes, got.Minutes)
		})
	}
}

func TestWarningMessage(t *testing.T) {
	msg := domain.WarningMessage(5)
	assert.Contains(t, msg, "5 minutes")
	assert.Contains(t, msg, "doors are open")
}

func TestEvaluation_OpenEntities(t *testing.T) {
	e := domain.Evaluation{Openings: []domain.OpeningState{
		{Entity: "binary_sensor.balcony_door", State: "on", Open: true},
		{Entity: "binary_sensor.kitchen_window", State: "off", Open: false},
	}}
	assert.Equal(t, []string{"binary_sensor.balcony_door"}, e.OpenEntities())
}
