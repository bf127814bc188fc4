package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macdBot/internal/domain"
	"macdBot/internal/utils"
)

func TestCSVSource_FiltersAndLimits(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var bars []domain.Bar
	for i := 0; i < 5; i++ {
		open := start.Add(time.Duration(i) * time.Minute)
		bars = append(bars,
			domain.Bar{Symbol: "BTCUSDT", Interval: "1m", OpenTime: open, CloseTime: open.Add(time.Minute), Close: float64(100 + i)},
			domain.Bar{Symbol: "ETHUSDT", Interval: "1m", OpenTime: open, CloseTime: open.Add(time.Minute), Close: float64(10 + i)},
		)
	}
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, utils.WriteBarsToCSV(bars, path))

	src := csvSource{path: path}
	got, err := src.LoadBars(context.Background(), "BTCUSDT", "1m", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 102.0, got[0].Close)
	assert.Equal(t, 104.0, got[2].Close)

	got, err = src.LoadBars(context.Background(), "ETHUSDT", "30s", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = csvSource{path: filepath.Join(t.TempDir(), "missing.csv")}.LoadBars(context.Background(), "BTCUSDT", "1m", 0)
	assert.Error(t, err)
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "a", orDefault("a", "b"))
	assert.Equal(t, "b", orDefault("", "b"))
}
