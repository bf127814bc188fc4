package utils

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"macdBot/internal/domain"
)

var barHeader = []string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteBarsToCSV writes bars with a header row, replacing filename.
func WriteBarsToCSV(bars []domain.Bar, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Write(barHeader)
	for _, b := range bars {
		writer.Write([]string{
			b.OpenTime.UTC().Format(time.RFC3339Nano),
			b.CloseTime.UTC().Format(time.RFC3339Nano),
			b.Symbol,
			b.Interval,
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		})
	}
	writer.Flush()
	return writer.Error()
}

// ReadBarsFromCSV reads a file produced by WriteBarsToCSV.
func ReadBarsFromCSV(filename string) ([]domain.Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(barHeader)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	bars := make([]domain.Bar, 0, len(records)-1)
	for line, rec := range records[1:] {
		b, err := parseBar(rec)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filename, line+2, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseBar(rec []string) (domain.Bar, error) {
	var (
		b   domain.Bar
		err error
	)
	if b.OpenTime, err = time.Parse(time.RFC3339Nano, rec[0]); err != nil {
		return b, fmt.Errorf("open_time: %w", err)
	}
	if b.CloseTime, err = time.Parse(time.RFC3339Nano, rec[1]); err != nil {
		return b, fmt.Errorf("close_time: %w", err)
	}
	b.Symbol, b.Interval = rec[2], rec[3]
	for i, dst := range []*float64{&b.Open, &b.High, &b.Low, &b.Close, &b.Volume} {
		if *dst, err = strconv.ParseFloat(rec[4+i], 64); err != nil {
			return b, fmt.Errorf("%s: %w", barHeader[4+i], err)
		}
	}
	return b, nil
}

// WriteSignalsToCSV writes signals with a header row, replacing filename.
func WriteSignalsToCSV(signals []domain.Signal, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Write([]string{"timestamp", "symbol", "close", "macd", "signal", "histogram", "kind"})
	for _, s := range signals {
		writer.Write([]string{
			s.Timestamp.UTC().Format(time.RFC3339Nano),
			s.Symbol,
			formatFloat(s.Close),
			formatFloat(s.MACD),
			formatFloat(s.Signal),
			formatFloat(s.Histogram),
			s.Kind.String(),
		})
	}
	writer.Flush()
	return writer.Error()
}

// CSVSink exports bars and signals to two CSV files. Each save rewrites its file.
type CSVSink struct {
	BarsPath    string
	SignalsPath string
}

func (s CSVSink) SaveBars(_ context.Context, bars []domain.Bar) error {
	if s.BarsPath == "" {
		return nil
	}
	return WriteBarsToCSV(bars, s.BarsPath)
}

func (s CSVSink) SaveSignals(_ context.Context, signals []domain.Signal) error {
	if s.SignalsPath == "" {
		return nil
	}
	return WriteSignalsToCSV(signals, s.SignalsPath)
}
