// Package store provides SQLite persistence for the ledger, price cache and
// watchlist.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"crypto-trader/internal/errors"
	"crypto-trader/internal/models"
)

// DefaultWatchlist is the list used when no name is given.
const DefaultWatchlist = "default"

// SQLiteStore persists ledger state in SQLite. Decimal amounts are stored
// as TEXT so they round-trip exactly.
type SQLiteStore struct {
	db *sql.DB
}

// TradeFilter narrows GetTrades.
type TradeFilter struct {
	Symbol string
	Side   models.Side
	Limit  int
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, dbError("failed to open database", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, dbError("failed to initialize schema", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Single-row portfolio summary
	CREATE TABLE IF NOT EXISTS portfolio (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		initial_capital TEXT NOT NULL,
		cash TEXT NOT NULL,
		total_value TEXT NOT NULL,
		total_pnl TEXT NOT NULL,
		total_pnl_percent TEXT NOT NULL,
		last_updated DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 0
	);

	-- Open positions
	CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT PRIMARY KEY,
		quantity TEXT NOT NULL,
		cost_basis TEXT NOT NULL,
		average_price TEXT NOT NULL,
		current_price TEXT NOT NULL,
		current_value TEXT NOT NULL,
		unrealized_pnl TEXT NOT NULL,
		unrealized_pnl_percent TEXT NOT NULL,
		last_updated DATETIME NOT NULL
	);

	-- Append-only trade log
	CREATE TABLE IF NOT EXISTS trades (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		commission TEXT NOT NULL,
		realized_pnl TEXT,
		status TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Portfolio value after each mark-to-market
	CREATE TABLE IF NOT EXISTS value_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		value TEXT NOT NULL
	);

	-- Cached price series
	CREATE TABLE IF NOT EXISTS prices (
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		price REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (symbol, timestamp)
	);

	-- Watchlist
	CREATE TABLE IF NOT EXISTS watchlist (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		list_name TEXT NOT NULL DEFAULT 'default',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, list_name)
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
	CREATE INDEX IF NOT EXISTS idx_value_history_timestamp ON value_history(timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.migrate()
}

// migrate adds columns introduced after a database was first created.
func (s *SQLiteStore) migrate() error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('portfolio') WHERE name = 'version'`).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		_, err = s.db.Exec(`ALTER TABLE portfolio ADD COLUMN version INTEGER NOT NULL DEFAULT 0`)
	}
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Portfolio Methods
// ============================================================================

// SavePortfolio replaces the stored portfolio snapshot unconditionally,
// including its version.
func (s *SQLiteStore) SavePortfolio(ctx context.Context, p *models.Portfolio) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO portfolio (id, initial_capital, cash, total_value, total_pnl, total_pnl_percent, last_updated, version)
			VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		`, p.InitialCapital, p.Cash, p.TotalValue, p.TotalPnL, p.TotalPnLPercent, p.LastUpdated.UTC(), p.Version)
		if err != nil {
			return dbError("failed to save portfolio", err)
		}
		return writePositions(ctx, tx, p)
	})
}

// InitPortfolio stores p unless a portfolio already exists and returns the
// stored portfolio. Concurrent first runs agree on a single portfolio.
func (s *SQLiteStore) InitPortfolio(ctx context.Context, p *models.Portfolio) (*models.Portfolio, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO portfolio (id, initial_capital, cash, total_value, total_pnl, total_pnl_percent, last_updated, version)
			VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		`, p.InitialCapital, p.Cash, p.TotalValue, p.TotalPnL, p.TotalPnLPercent, p.LastUpdated.UTC(), p.Version)
		if err != nil {
			return dbError("failed to create portfolio", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return dbError("failed to create portfolio", err)
		} else if n == 0 {
			return nil
		}
		return writePositions(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return s.LoadPortfolio(ctx)
}

// SaveTrade appends trade and stores the resulting portfolio atomically.
func (s *SQLiteStore) SaveTrade(ctx context.Context, p *models.Portfolio, trade *models.Trade) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		realized := decimal.NullDecimal{}
		if trade.RealizedPnL != nil {
			realized = decimal.NewNullDecimal(*trade.RealizedPnL)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trades (id, timestamp, symbol, side, quantity, price, commission, realized_pnl, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, trade.ID, trade.Timestamp.UTC(), trade.Symbol, string(trade.Side), trade.Quantity, trade.Price, trade.Commission, realized, string(trade.Status))
		if err != nil {
			return dbError("failed to insert trade", err)
		}
		return writePortfolio(ctx, tx, p)
	})
}

// SaveMark stores a revalued portfolio and its value history point atomically.
func (s *SQLiteStore) SaveMark(ctx context.Context, p *models.Portfolio, point models.ValuePoint) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO value_history (timestamp, value) VALUES (?, ?)
		`, point.Timestamp.UTC(), point.Value)
		if err != nil {
			return dbError("failed to insert value point", err)
		}
		return writePortfolio(ctx, tx, p)
	})
}

// writePortfolio stores p only if the stored portfolio is still at the
// version p was derived from (p.Version-1). Otherwise another writer got
// there first and ErrConflict is returned.
func writePortfolio(ctx context.Context, tx *sql.Tx, p *models.Portfolio) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE portfolio
		SET initial_capital = ?, cash = ?, total_value = ?, total_pnl = ?, total_pnl_percent = ?, last_updated = ?, version = ?
		WHERE id = 1 AND version = ?
	`, p.InitialCapital, p.Cash, p.TotalValue, p.TotalPnL, p.TotalPnLPercent, p.LastUpdated.UTC(), p.Version, p.Version-1)
	if err != nil {
		return dbError("failed to save portfolio", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("failed to save portfolio", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: stored portfolio is not at version %d", errors.ErrConflict, p.Version-1)
	}
	return writePositions(ctx, tx, p)
}

func writePositions(ctx context.Context, tx *sql.Tx, p *models.Portfolio) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return dbError("failed to clear positions", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (symbol, quantity, cost_basis, average_price, current_price, current_value, unrealized_pnl, unrealized_pnl_percent, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, pos := range p.Positions {
		_, err := stmt.ExecContext(ctx, pos.Symbol, pos.Quantity, pos.CostBasis, pos.AveragePrice, pos.CurrentPrice,
			pos.CurrentValue, pos.UnrealizedPnL, pos.UnrealizedPnLPercent, pos.LastUpdated.UTC())
		if err != nil {
			return dbError("failed to insert position", err)
		}
	}
	return nil
}

// LoadPortfolio returns the stored portfolio, or ErrDataNotFound when none
// has been saved yet.
func (s *SQLiteStore) LoadPortfolio(ctx context.Context) (*models.Portfolio, error) {
	p := &models.Portfolio{Positions: make(map[string]models.Position)}
	err := s.db.QueryRowContext(ctx, `
		SELECT initial_capital, cash, total_value, total_pnl, total_pnl_percent, last_updated, version
		FROM portfolio WHERE id = 1
	`).Scan(&p.InitialCapital, &p.Cash, &p.TotalValue, &p.TotalPnL, &p.TotalPnLPercent, &p.LastUpdated, &p.Version)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrDataNotFound, "no saved portfolio")
	}
	if err != nil {
		return nil, dbError("failed to load portfolio", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, quantity, cost_basis, average_price, current_price, current_value, unrealized_pnl, unrealized_pnl_percent, last_updated
		FROM positions
	`)
	if err != nil {
		return nil, dbError("failed to query positions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pos models.Position
		if err := rows.Scan(&pos.Symbol, &pos.Quantity, &pos.CostBasis, &pos.AveragePrice, &pos.CurrentPrice,
			&pos.CurrentValue, &pos.UnrealizedPnL, &pos.UnrealizedPnLPercent, &pos.LastUpdated); err != nil {
			return nil, dbError("failed to scan position", err)
		}
		p.Positions[pos.Symbol] = pos
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating positions", err)
	}

	return p, nil
}

// ============================================================================
// Trades Methods
// ============================================================================

// GetTrades retrieves trades newest first.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := "SELECT id, timestamp, symbol, side, quantity, price, commission, realized_pnl, status FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Side != "" {
		query += " AND side = ?"
		args = append(args, string(filter.Side))
	}

	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("failed to query trades", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var side, status string
		var realized decimal.NullDecimal

		if err := rows.Scan(&t.ID, &t.Timestamp, &t.Symbol, &side, &t.Quantity, &t.Price, &t.Commission, &realized, &status); err != nil {
			return nil, dbError("failed to scan trade", err)
		}
		t.Side = models.Side(side)
		t.Status = models.TradeStatus(status)
		if realized.Valid {
			pnl := realized.Decimal
			t.RealizedPnL = &pnl
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating trades", err)
	}
	return trades, nil
}

// TradeLog returns every trade in execution order.
func (s *SQLiteStore) TradeLog(ctx context.Context) ([]models.Trade, error) {
	trades, err := s.GetTrades(ctx, TradeFilter{})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}

// ============================================================================
// Value History Methods
// ============================================================================

// ValueHistory returns the recorded portfolio values, oldest first.
func (s *SQLiteStore) ValueHistory(ctx context.Context) ([]models.ValuePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, value FROM value_history ORDER BY id ASC
	`)
	if err != nil {
		return nil, dbError("failed to query value history", err)
	}
	defer rows.Close()

	var points []models.ValuePoint
	for rows.Next() {
		var p models.ValuePoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, dbError("failed to scan value point", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating value history", err)
	}
	return points, nil
}

// ============================================================================
// Price Methods
// ============================================================================

// SavePrices caches a price series for symbol, replacing overlapping points.
func (s *SQLiteStore) SavePrices(ctx context.Context, symbol string, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO prices (symbol, timestamp, price, volume)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return dbError("failed to prepare statement", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, symbol, p.Timestamp.UTC(), p.Price, p.Volume); err != nil {
				return dbError("failed to insert price", err)
			}
		}
		return nil
	})
}

// GetPrices returns the cached series for symbol, oldest first.
func (s *SQLiteStore) GetPrices(ctx context.Context, symbol string) (*models.PriceSeries, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, price, volume FROM prices WHERE symbol = ? ORDER BY timestamp ASC
	`, symbol)
	if err != nil {
		return nil, dbError("failed to query prices", err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Timestamp, &p.Price, &p.Volume); err != nil {
			return nil, dbError("failed to scan price", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating prices", err)
	}
	if len(points) == 0 {
		return nil, errors.NewDataError("prices", symbol, "no cached prices", errors.ErrDataNotFound)
	}

	return models.NewPriceSeries(points)
}

// ============================================================================
// Watchlist Methods
// ============================================================================

// AddToWatchlist adds a symbol to a watchlist.
func (s *SQLiteStore) AddToWatchlist(ctx context.Context, symbol, listName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO watchlist (symbol, list_name) VALUES (?, ?)
	`, symbol, listName)
	if err != nil {
		return dbError("failed to add to watchlist", err)
	}
	return nil
}

// RemoveFromWatchlist removes a symbol from a watchlist.
func (s *SQLiteStore) RemoveFromWatchlist(ctx context.Context, symbol, listName string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM watchlist WHERE symbol = ? AND list_name = ?
	`, symbol, listName)
	if err != nil {
		return dbError("failed to remove from watchlist", err)
	}
	return nil
}

// GetWatchlist retrieves symbols in a watchlist.
func (s *SQLiteStore) GetWatchlist(ctx context.Context, listName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol FROM watchlist WHERE list_name = ? ORDER BY id ASC
	`, listName)
	if err != nil {
		return nil, dbError("failed to query watchlist", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, dbError("failed to scan symbol", err)
		}
		symbols = append(symbols, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating watchlist", err)
	}
	return symbols, nil
}

// inTx runs fn in a transaction. Errors from fn are expected to be tagged
// with ErrDatabaseError or ErrConflict already.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if errors.Is(err, errors.ErrDatabaseError) || errors.Is(err, errors.ErrConflict) {
			return err
		}
		return dbError("transaction failed", err)
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit transaction", err)
	}
	return nil
}

// dbError tags err as a storage failure.
func dbError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", errors.ErrDatabaseError, op, err)
}
