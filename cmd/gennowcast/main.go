// Command gennowcast emits a synthetic MET.no-style nowcast JSON array, for
// seeding a test Home Assistant instance or building test fixtures.
//
// Usage:
//
//	go run ./cmd/gennowcast -start 2025-01-01T12:00:00Z -rain-in 10m -intensity 0.6
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"
)

type point struct {
	Datetime      string  `json:"datetime"`
	Precipitation float64 `json:"precipitation"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	start := flag.String("start", "", "first point timestamp (RFC 3339, default: now rounded to the minute)")
	rainIn := flag.Duration("rain-in", 10*time.Minute, "offset of the first rainy point (negative: no rain at all)")
	rainFor := flag.Duration("rain-for", 20*time.Minute, "how long the rain lasts")
	intensity := flag.Float64("intensity", 0.6, "precipitation per rainy point (mm)")
	interval := flag.Duration("interval", 5*time.Minute, "spacing between points")
	points := flag.Int("points", 18, "number of forecast points")
	out := flag.String("out", "", "output file (default stdout)")
	flag.Parse()

	base := time.Now().UTC().Truncate(time.Minute)
	if *start != "" {
		parsed, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			return fmt.Errorf("parse -start: %w", err)
		}
		base = parsed.UTC()
	}

	forecast := make([]point, 0, *points)
	for i := range *points {
		offset := time.Duration(i) * *interval
		p := point{Datetime: base.Add(offset).Format(time.RFC3339)}
		if *rainIn >= 0 && offset >= *rainIn && offset < *rainIn+*rainFor {
			p.Precipitation = *intensity
		}
		forecast = append(forecast, p)
	}

	data, err := json.MarshalIndent(forecast, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if *out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(*out, data, 0o644)
}
