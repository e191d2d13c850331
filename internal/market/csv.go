package market

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadCSV reads a bar series from a CSV file. The header must contain
// timestamp,open,high,low,close,volume; any additional columns are kept as
// indicator fields keyed by header name. Timestamps are RFC3339 or Unix
// seconds.
func LoadCSV(path string) (Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open series: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read series: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("series %s has no data rows", path)
	}

	header := rows[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("series %s missing column %q", path, required)
		}
	}

	bars := make([]Bar, 0, len(rows)-1)
	for n, row := range rows[1:] {
		ts, err := parseTimestamp(row[col["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		bar := Bar{Ts: ts}
		if bar.Open, err = parseField(row, col, "open"); err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		if bar.High, err = parseField(row, col, "high"); err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		if bar.Low, err = parseField(row, col, "low"); err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		if bar.Close, err = parseField(row, col, "close"); err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		if bar.Volume, err = parseField(row, col, "volume"); err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		for name, i := range col {
			switch name {
			case "timestamp", "open", "high", "low", "close", "volume":
				continue
			}
			if i >= len(row) || strings.TrimSpace(row[i]) == "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil {
				continue
			}
			if bar.Indicators == nil {
				bar.Indicators = make(map[string]float64)
			}
			bar.Indicators[name] = v
		}
		bars = append(bars, bar)
	}

	return NewSeries(bars)
}

func parseField(row []string, col map[string]int, name string) (float64, error) {
	i := col[name]
	if i >= len(row) {
		return 0, fmt.Errorf("missing %s value", name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", raw)
}
