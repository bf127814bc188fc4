package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"macdBot/internal/domain"
	"macdBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var (
	_ ports.ReplaySink = (*Repository)(nil)
	_ ports.BarSource  = (*Repository)(nil)
)

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "nested", "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func makeBars(symbol, interval string, n int) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		open := start.Add(time.Duration(i) * time.Minute)
		p := 100 + float64(i)
		bars[i] = domain.Bar{
			Symbol: symbol, Interval: interval,
			OpenTime: open, CloseTime: open.Add(time.Minute - time.Millisecond),
			Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 10,
		}
	}
	return bars
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestRepository_SaveAndLoadBars(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	bars := makeBars("BTCUSDT", "1m", 5)
	require.NoError(t, repo.SaveBars(ctx, bars))
	require.NoError(t, repo.SaveBars(ctx, makeBars("ETHUSDT", "1m", 2)))

	tests := []struct {
		name  string
		limit int
		want  []domain.Bar
	}{
		{name: "all", limit: 0, want: bars},
		{name: "most recent three", limit: 3, want: bars[2:]},
		{name: "limit above count", limit: 10, want: bars},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.LoadBars(ctx, "BTCUSDT", "1m", tt.limit)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.True(t, tt.want[i].OpenTime.Equal(got[i].OpenTime))
				assert.True(t, tt.want[i].CloseTime.Equal(got[i].CloseTime))
				assert.Equal(t, tt.want[i].Close, got[i].Close)
				assert.Equal(t, tt.want[i].High, got[i].High)
			}
		})
	}

	empty, err := repo.LoadBars(ctx, "BTCUSDT", "30s", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRepository_SaveBarsReplaces(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	bars := makeBars("BTCUSDT", "1m", 2)
	require.NoError(t, repo.SaveBars(ctx, bars))
	bars[1].Close = 999
	require.NoError(t, repo.SaveBars(ctx, bars[1:]))

	got, err := repo.LoadBars(ctx, "BTCUSDT", "1m", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 999.0, got[1].Close)
}

func TestRepository_SaveSignals(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	now := time.Now()
	signals := []domain.Signal{
		{Symbol: "BTCUSDT", Timestamp: now, Close: 1, Kind: domain.SignalNone},
		{Symbol: "BTCUSDT", Timestamp: now.Add(time.Minute), Close: 2, MACD: 0.1, Signal: 0.05, Histogram: 0.05, Kind: domain.SignalBullishCross},
		{Symbol: "BTCUSDT", Timestamp: now.Add(2 * time.Minute), Close: 3, Kind: domain.SignalNone},
	}
	require.NoError(t, repo.SaveSignals(ctx, signals))
	require.NoError(t, repo.SaveSignals(ctx, nil))

	counts, err := repo.CountSignals(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"NONE": 2, "BULLISH_CROSS": 1}, counts)

	counts, err = repo.CountSignals(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Empty(t, counts)
}
