package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"watchdash/internal/models"

	_ "github.com/mattn/go-sqlite3" // Import the sqlite3 driver
)

// sqliteRepository keeps one row per position; seq preserves creation order.
type sqliteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the SQLite database at dbPath and its schema.
func NewSQLiteRepository(dbPath string) (PositionRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite connect: %w", err)
	}
	if err = createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &sqliteRepository{db: db}, nil
}

// createTables creates the positions table if it doesn't exist.
// The primary key is the record uniqueness key.
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS positions (
		seq         INTEGER NOT NULL,
		symbol      TEXT    NOT NULL,
		entry_date  TEXT    NOT NULL,
		entry_price REAL    NOT NULL,
		run_high    REAL    NOT NULL,
		took_half   BOOLEAN NOT NULL DEFAULT 0,
		closed      BOOLEAN NOT NULL DEFAULT 0,
		close_date  TEXT,
		close_price REAL,
		round       INTEGER NOT NULL,
		quantity    REAL,
		PRIMARY KEY (symbol, round, entry_date)
	);`)
	return err
}

func (r *sqliteRepository) LoadPositions() ([]models.Position, error) {
	rows, err := r.db.Query(`
	SELECT symbol, entry_date, entry_price, run_high, took_half, closed,
	       close_date, close_price, round, quantity
	FROM positions
	ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := []models.Position{}
	for rows.Next() {
		var (
			p          models.Position
			closeDate  sql.NullString
			closePrice sql.NullFloat64
			quantity   sql.NullFloat64
		)
		if err := rows.Scan(
			&p.Symbol, &p.EntryDate, &p.EntryPrice, &p.RunHigh, &p.TookHalf, &p.Closed,
			&closeDate, &closePrice, &p.Round, &quantity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		if closeDate.Valid {
			p.CloseDate = &closeDate.String
		}
		if closePrice.Valid {
			p.ClosePrice = &closePrice.Float64
		}
		if quantity.Valid {
			p.Quantity = &quantity.Float64
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// SavePositions replaces every row inside one transaction.
func (r *sqliteRepository) SavePositions(positions []models.Position) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if _, err := tx.Exec(`DELETE FROM positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}

	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO positions (seq, symbol, entry_date, entry_price, run_high, took_half,
	                                  closed, close_date, close_price, round, quantity)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range positions {
		if _, err := stmt.Exec(
			i, p.Symbol, p.EntryDate, p.EntryPrice, p.RunHigh, p.TookHalf,
			p.Closed, nullString(p.CloseDate), nullFloat(p.ClosePrice), p.Round, nullFloat(p.Quantity),
		); err != nil {
			return fmt.Errorf("failed to insert position %s: %w", p.Symbol, err)
		}
	}
	return tx.Commit()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func (r *sqliteRepository) Close() error {
	return r.db.Close()
}
