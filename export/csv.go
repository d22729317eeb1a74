package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/scanner/shared"
)

var (
	// EventColumns is the header of a persisted event set.
	EventColumns = []string{"timestamp", "open", "high", "low", "close", "volume", "day_of_week", "pattern", "anchor_index"}
	// FrequencyColumns is the header of a persisted frequency table.
	FrequencyColumns = []string{"time", "count"}
	// SeriesColumns is the header of a persisted normalized series.
	SeriesColumns = []string{"timestamp", "open", "high", "low", "close", "volume", "day_of_week"}
)

// formatFloat formats a price or volume without losing precision.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// candleRecord returns the shared leading columns of a normalized candle.
func candleRecord(c *shared.NormalizedCandle) []string {
	return []string{
		c.LocalTime.Format(shared.DateLayout),
		formatFloat(c.Open),
		formatFloat(c.High),
		formatFloat(c.Low),
		formatFloat(c.Close),
		formatFloat(c.Volume),
		c.DayOfWeek.String(),
	}
}

// create truncates or creates the file at the provided path, creating parent
// directories as needed.
func create(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory '%s': %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating '%s': %w", path, err)
	}

	return f, nil
}

// writeFile writes the table produced by encode to the provided path.
func writeFile(path string, encode func(w io.Writer) error) error {
	f, err := create(path)
	if err != nil {
		return err
	}

	if err := encode(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing '%s': %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing '%s': %w", path, err)
	}

	return nil
}

// EncodeEvents writes the event set as csv to the provided writer.
func EncodeEvents(w io.Writer, events []shared.PatternEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EventColumns); err != nil {
		return err
	}

	for idx := range events {
		event := &events[idx]
		record := append(candleRecord(&event.NormalizedCandle), event.Pattern, strconv.Itoa(event.AnchorIndex))
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteEvents persists the event set to the provided path, replacing any previous set.
func WriteEvents(path string, events []shared.PatternEvent) error {
	return writeFile(path, func(w io.Writer) error {
		return EncodeEvents(w, events)
	})
}

// DecodeEvents reads a csv event set from the provided reader. Local times are
// projected into loc when it is provided, otherwise the recorded offset is kept.
func DecodeEvents(r io.Reader, loc *time.Location) ([]shared.PatternEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(EventColumns)

	header, err := cr.Read()
	if err == io.EOF {
		return []shared.PatternEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading event header: %w", shared.ErrDataIntegrity, err)
	}
	if strings.Join(header, ",") != strings.Join(EventColumns, ",") {
		return nil, fmt.Errorf("%w: unexpected event columns %v", shared.ErrDataIntegrity, header)
	}

	events := make([]shared.PatternEvent, 0)
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading event on line %d: %w", shared.ErrDataIntegrity, line, err)
		}

		event, err := parseEvent(record, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing event on line %d: %w", shared.ErrDataIntegrity, line, err)
		}

		events = append(events, event)
	}

	return events, nil
}

// parseEvent parses a single event set record.
func parseEvent(record []string, loc *time.Location) (shared.PatternEvent, error) {
	var event shared.PatternEvent

	local, err := time.Parse(shared.DateLayout, record[0])
	if err != nil {
		return event, err
	}
	if loc != nil {
		local = local.In(loc)
	}

	values := make([]float64, 5)
	for idx := range values {
		values[idx], err = strconv.ParseFloat(record[idx+1], 64)
		if err != nil {
			return event, err
		}
	}

	anchor, err := strconv.Atoi(record[8])
	if err != nil {
		return event, err
	}

	event = shared.PatternEvent{
		NormalizedCandle: shared.NormalizedCandle{
			Candlestick: shared.Candlestick{
				Timestamp: local.UnixMilli(),
				Open:      values[0],
				High:      values[1],
				Low:       values[2],
				Close:     values[3],
				Volume:    values[4],
			},
			LocalTime: local,
			DayOfWeek: local.Weekday(),
		},
		Pattern:     record[7],
		AnchorIndex: anchor,
	}

	if event.DayOfWeek.String() != record[6] {
		return event, fmt.Errorf("day of week %s does not match %s", record[6], event.DayOfWeek)
	}

	return event, nil
}

// ReadEvents reads a persisted event set from the provided path.
func ReadEvents(path string, loc *time.Location) ([]shared.PatternEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening event set '%s': %w", path, err)
	}
	defer f.Close()

	return DecodeEvents(f, loc)
}

// EncodeFrequencies writes the frequency table as csv to the provided writer.
func EncodeFrequencies(w io.Writer, entries []shared.FrequencyEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FrequencyColumns); err != nil {
		return err
	}

	for idx := range entries {
		if err := cw.Write([]string{entries[idx].Time.String(), strconv.Itoa(entries[idx].Count)}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFrequencies persists the frequency table to the provided path.
func WriteFrequencies(path string, entries []shared.FrequencyEntry) error {
	return writeFile(path, func(w io.Writer) error {
		return EncodeFrequencies(w, entries)
	})
}

// EncodeSeries writes the normalized series as csv to the provided writer.
func EncodeSeries(w io.Writer, series []shared.NormalizedCandle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SeriesColumns); err != nil {
		return err
	}

	for idx := range series {
		if err := cw.Write(candleRecord(&series[idx])); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSeries persists the normalized series to the provided path.
func WriteSeries(path string, series []shared.NormalizedCandle) error {
	return writeFile(path, func(w io.Writer) error {
		return EncodeSeries(w, series)
	})
}
