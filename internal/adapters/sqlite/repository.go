package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"macdBot/internal/domain"
	"macdBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.ReplaySink and ports.BarSource using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/replay.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite replay store ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

// initializeSchema creates tables if they don't exist. Times are unix milliseconds.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS bars (
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		open_time INTEGER NOT NULL,
		close_time INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (symbol, interval, open_time)
	);

	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		ts INTEGER NOT NULL,
		close REAL NOT NULL,
		macd REAL NOT NULL,
		signal REAL NOT NULL,
		histogram REAL NOT NULL,
		kind TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals (symbol, ts);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// SaveBars upserts bars in one transaction.
func (r *Repository) SaveBars(ctx context.Context, bars []domain.Bar) error {
	const query = `
	INSERT OR REPLACE INTO bars (symbol, interval, open_time, close_time, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return r.inTx(ctx, query, len(bars), func(stmt *sql.Stmt, i int) error {
		b := bars[i]
		_, err := stmt.ExecContext(ctx, b.Symbol, b.Interval, b.OpenTime.UnixMilli(), b.CloseTime.UnixMilli(),
			b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert bar %s@%s: %w", b.Symbol, b.OpenTime.Format(time.RFC3339), err)
		}
		return nil
	})
}

// SaveSignals appends signals in one transaction.
func (r *Repository) SaveSignals(ctx context.Context, signals []domain.Signal) error {
	const query = `
	INSERT INTO signals (symbol, ts, close, macd, signal, histogram, kind)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	return r.inTx(ctx, query, len(signals), func(stmt *sql.Stmt, i int) error {
		s := signals[i]
		_, err := stmt.ExecContext(ctx, s.Symbol, s.Timestamp.UnixMilli(), s.Close, s.MACD, s.Signal, s.Histogram, s.Kind.String())
		if err != nil {
			return fmt.Errorf("failed to insert signal for %s: %w", s.Symbol, err)
		}
		return nil
	})
}

func (r *Repository) inTx(ctx context.Context, query string, n int, exec func(stmt *sql.Stmt, i int) error) error {
	if n == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	r.logger.Debug(ctx, "Rows saved", map[string]interface{}{"rows": n})
	return nil
}

// LoadBars returns up to limit of the most recent bars for symbol and interval, oldest
// first. limit <= 0 returns all of them.
func (r *Repository) LoadBars(ctx context.Context, symbol, interval string, limit int) ([]domain.Bar, error) {
	const query = `
	SELECT symbol, interval, open_time, close_time, open, high, low, close, volume FROM (
		SELECT * FROM bars WHERE symbol = ? AND interval = ?
		ORDER BY open_time DESC LIMIT ?
	) ORDER BY open_time ASC`

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx, query, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	bars := make([]domain.Bar, 0)
	for rows.Next() {
		var (
			b               domain.Bar
			openMs, closeMs int64
		)
		if err := rows.Scan(&b.Symbol, &b.Interval, &openMs, &closeMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar row: %w", err)
		}
		b.OpenTime = time.UnixMilli(openMs)
		b.CloseTime = time.UnixMilli(closeMs)
		bars = append(bars, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bar rows: %w", err)
	}
	return bars, nil
}

// CountSignals returns the number of stored signals per kind for symbol.
func (r *Repository) CountSignals(ctx context.Context, symbol string) (map[string]int, error) {
	const query = `SELECT kind, COUNT(*) FROM signals WHERE symbol = ? GROUP BY kind`

	rows, err := r.db.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to count signals for %s: %w", symbol, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan signal count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
