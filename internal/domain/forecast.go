package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ForecastPoint is a single entry of the nowcast feed.
type ForecastPoint struct {
	Time          time.Time
	Precipitation float64 // mm expected in this interval
}

// rawForecastEntry mirrors the wire format of the forecast attribute.
// Precipitation is a pointer so a missing field can default to zero without
// being confused with an explicit 0.
type rawForecastEntry struct {
	Datetime      string   `json:"datetime"`
	Precipitation *float64 `json:"precipitation"`
}

// ParseForecast deserializes the forecast attribute into an ordered slice of
// points. Entries without a datetime are kept with a zero Time so the rain
// scan can skip them; a malformed (non-empty) datetime is an error.
func ParseForecast(data []byte) ([]ForecastPoint, error) {
	var entries []rawForecastEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse forecast: %w", err)
	}

	points := make([]ForecastPoint, 0, len(entries))
	for i, e := range entries {
		var t time.Time
		if s := strings.TrimSpace(e.Datetime); s != "" {
			parsed, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("parse forecast point %d datetime %q: %w", i, s, err)
			}
			t = parsed
		}

		var precip float64
		if e.Precipitation != nil {
			precip = *e.Precipitation
		}

		points = append(points, ForecastPoint{Time: t, Precipitation: precip})
	}
	return points, nil
}

// RainCheck is the outcome of scanning the forecast for imminent rain.
type RainCheck struct {
	Found   bool      `json:"found"`
	Minutes int       `json:"minutes"`
	At      time.Time `json:"at,omitempty"`
}

// FindRain scans points in feed order for the first entry at or after now
// with positive precipitation. Points without a timestamp are skipped, and
// the scan stops at the first point past now+lookahead: the feed is
// time-ordered, so nothing later can qualify. Minutes is the whole number of
// minutes until the matching point, rounded down.
func FindRain(points []ForecastPoint, now time.Time, lookahead time.Duration) RainCheck {
	threshold := now.Add(lookahead)
	for _, p := range points {
		if p.Time.IsZero() {
			continue
		}
		if p.Time.After(threshold) {
			break
		}
		if !p.Time.Before(now) && p.Precipitation > 0 {
			return RainCheck{
				Found:   true,
				Minutes: int(p.Time.Sub(now).Minutes()),
				At:      p.Time,
			}
		}
	}
	return RainCheck{}
}

// WarningMessage formats the notification text sent to every recipient.
func WarningMessage(rainMinutes int) string {
	return fmt.Sprintf("⚠️ Rain Warning: Rain expected in %d minutes and doors are open!", rainMinutes)
}
