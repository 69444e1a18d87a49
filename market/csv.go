package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
}

// ParseTime accepts RFC3339 and the common naive layouts. Naive values are
// interpreted in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q: %w", s, firstErr)
}

// LoadBarsFile opens path and parses it with LoadBars.
func LoadBarsFile(path string, loc *time.Location) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadBars(f, loc)
}

// LoadBars reads a header-led CSV of bars. Recognised columns:
//
//	datetime|time|date, open, high, low, close|nifty_close, volume,
//	vix, atm_strike, call_price, put_price
//
// Only the time and close columns are required. Rows are returned sorted
// by time; rows with an empty time are skipped.
func LoadBars(r io.Reader, loc *time.Location) ([]Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	timeCol, ok := firstCol(cols, "datetime", "time", "date", "timestamp")
	if !ok {
		return nil, fmt.Errorf("csv: missing time column in %v", header)
	}
	closeCol, ok := firstCol(cols, "close", "nifty_close", "price")
	if !ok {
		return nil, fmt.Errorf("csv: missing close column in %v", header)
	}

	var bars []Bar
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if timeCol >= len(row) || strings.TrimSpace(row[timeCol]) == "" {
			continue
		}

		t, err := ParseTime(row[timeCol], loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b := Bar{Time: t}
		if b.Close, err = floatCol(row, closeCol); err != nil {
			return nil, fmt.Errorf("line %d: close: %w", line, err)
		}
		b.Open, b.High, b.Low = b.Close, b.Close, b.Close

		optional := []struct {
			names []string
			dst   *float64
		}{
			{[]string{"open"}, &b.Open},
			{[]string{"high"}, &b.High},
			{[]string{"low"}, &b.Low},
			{[]string{"volume"}, &b.Volume},
			{[]string{"vix", "india_vix"}, &b.VIX},
			{[]string{"atm_strike", "strike"}, &b.ATMStrike},
			{[]string{"call_price", "ce_price"}, &b.CallPrice},
			{[]string{"put_price", "pe_price"}, &b.PutPrice},
		}
		for _, o := range optional {
			i, ok := firstCol(cols, o.names...)
			if !ok || i >= len(row) || strings.TrimSpace(row[i]) == "" {
				continue
			}
			if *o.dst, err = floatCol(row, i); err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, o.names[0], err)
			}
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func firstCol(cols map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func floatCol(row []string, i int) (float64, error) {
	if i >= len(row) {
		return 0, fmt.Errorf("missing column %d", i)
	}
	return strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
}
