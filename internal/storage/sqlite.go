package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Alessandro1981/etf-checker/internal/logger"
	"github.com/Alessandro1981/etf-checker/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps baselines in a flat symbol/price table.
type SQLiteStore struct {
	db *sql.DB
}

const metaLastBaselineUpdate = "last_baseline_update"

// NewSQLiteStore opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/etf-checker/baselines.db.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "etf-checker", "baselines.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS baselines (
			symbol TEXT PRIMARY KEY,
			price  REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Load() models.State {
	state := models.NewState()

	rows, err := s.db.Query(`SELECT symbol, price FROM baselines`)
	if err != nil {
		logger.Warn("Failed to query baselines: %v", err)
		return state
	}
	defer rows.Close()

	for rows.Next() {
		var symbol string
		var value any
		if err := rows.Scan(&symbol, &value); err != nil {
			logger.Warn("Failed to scan baseline row: %v", err)
			continue
		}
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		price, ok := coercePrice(value)
		if !ok {
			logger.Debug("Dropping non-numeric baseline for %s: %v", symbol, value)
			continue
		}
		state.Baselines[models.NormalizeSymbol(symbol)] = price
	}
	if err := rows.Err(); err != nil {
		logger.Warn("Failed to read baselines: %v", err)
		return models.NewState()
	}

	var raw string
	err = s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaLastBaselineUpdate).Scan(&raw)
	if err == nil {
		if nanos, err := strconv.ParseInt(raw, 10, 64); err == nil {
			state.LastBaselineUpdate = time.Unix(0, nanos)
		}
	} else if err != sql.ErrNoRows {
		logger.Warn("Failed to read baseline metadata: %v", err)
	}

	return state
}

// Save replaces the whole record in one transaction so readers never see a
// half-written set.
func (s *SQLiteStore) Save(state models.State) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM baselines`); err != nil {
		return fmt.Errorf("failed to clear baselines: %w", err)
	}
	for symbol, price := range finiteBaselines(state.Baselines) {
		if _, err := tx.Exec(`INSERT INTO baselines (symbol, price) VALUES (?, ?)`, symbol, price); err != nil {
			return fmt.Errorf("failed to insert baseline %s: %w", symbol, err)
		}
	}
	if !state.LastBaselineUpdate.IsZero() {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`,
			metaLastBaselineUpdate, strconv.FormatInt(state.LastBaselineUpdate.UnixNano(), 10)); err != nil {
			return fmt.Errorf("failed to save baseline metadata: %w", err)
		}
	}

	return tx.Commit()
}
