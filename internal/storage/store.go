package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	"github.com/shopspring/decimal"

	"trader_go/internal/domain"
)

// Store is the engine's persistence layer: orders, trades, balance
// snapshots and candles in SQLite. Workers and pollers coordinate only
// through these tables, so the store doubles as the synchronization
// point between goroutines. Monetary columns are stored as decimal
// strings; REAL would silently lose precision on accounting data.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) the database at dbPath with WAL
// mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// WAL keeps readers unblocked while one writer commits; busy_timeout
	// covers the worker/poller writer overlap.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_order_id TEXT NOT NULL UNIQUE,
			exch_order_id TEXT NOT NULL DEFAULT '',
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL,
			price TEXT NOT NULL DEFAULT '0',
			qty TEXT NOT NULL,
			status TEXT NOT NULL,
			created_ms INTEGER NOT NULL,
			updated_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			price TEXT NOT NULL,
			qty TEXT NOT NULL,
			fee_asset TEXT NOT NULL DEFAULT '',
			fee_amt TEXT NOT NULL DEFAULT '0',
			order_client_id TEXT NOT NULL,
			ts_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades(symbol, ts_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_order ON trades(order_client_id);`,
		`CREATE TABLE IF NOT EXISTS balances (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			asset TEXT NOT NULL,
			free TEXT NOT NULL,
			locked TEXT NOT NULL,
			ts_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_balances_asset_ts ON balances(asset, ts_ms);`,
		`CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT NOT NULL,
			open_ms INTEGER NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			PRIMARY KEY (symbol, open_ms)
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// --- Orders ---

// InsertOrder writes a new order row and fills in its row id. The unique
// constraint on client_order_id is the last line of defense against a
// duplicated placement.
func (s *Store) InsertOrder(ctx context.Context, o *domain.Order) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (client_order_id, exch_order_id, symbol, side, type, price, qty, status, created_ms, updated_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ClientOrderID, o.ExchOrderID, o.Symbol, string(o.Side), string(o.Type),
		o.Price.String(), o.Qty.String(), string(o.Status), o.CreatedUnixMs, o.UpdatedUnixMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", o.ClientOrderID, err)
	}
	o.ID, _ = res.LastInsertId()
	return nil
}

// OrderByClientID loads one order row. The second return is false when no
// such order exists.
func (s *Store) OrderByClientID(ctx context.Context, clientID string) (domain.Order, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_order_id, exch_order_id, symbol, side, type, price, qty, status, created_ms, updated_ms
		 FROM orders WHERE client_order_id = ?`, clientID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("failed to load order %s: %w", clientID, err)
	}
	return o, true, nil
}

// OpenOrders returns every locally-open order (NEW or PARTIALLY_FILLED),
// oldest first. This is the reconciliation poller's work queue.
func (s *Store) OpenOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_order_id, exch_order_id, symbol, side, type, price, qty, status, created_ms, updated_ms
		 FROM orders WHERE status IN (?, ?) ORDER BY created_ms ASC, id ASC`,
		string(domain.StatusNew), string(domain.StatusPartiallyFilled))
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetOrderStatus advances an order's status. A positive price also
// updates the stored price (reconciliation writes the avg fill price
// there); zero leaves the recorded price untouched.
func (s *Store) SetOrderStatus(ctx context.Context, clientID string, status domain.OrderStatus, price decimal.Decimal, updatedMs int64) error {
	var err error
	if price.IsPositive() {
		_, err = s.db.ExecContext(ctx,
			`UPDATE orders SET status = ?, price = ?, updated_ms = ? WHERE client_order_id = ?`,
			string(status), price.String(), updatedMs, clientID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE orders SET status = ?, updated_ms = ? WHERE client_order_id = ?`,
			string(status), updatedMs, clientID)
	}
	if err != nil {
		return fmt.Errorf("failed to update order %s to %s: %w", clientID, status, err)
	}
	return nil
}

// SetOrderExchangeID records the exchange-assigned id once known.
func (s *Store) SetOrderExchangeID(ctx context.Context, clientID, exchID string, updatedMs int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET exch_order_id = ?, updated_ms = ? WHERE client_order_id = ?`,
		exchID, updatedMs, clientID)
	if err != nil {
		return fmt.Errorf("failed to set exchange id for %s: %w", clientID, err)
	}
	return nil
}

// --- Trades ---

// InsertTrade writes one fill row and fills in its row id.
func (s *Store) InsertTrade(ctx context.Context, t *domain.Trade) error {
	if err := t.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (symbol, side, price, qty, fee_asset, fee_amt, order_client_id, ts_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, string(t.Side), t.Price.String(), t.Qty.String(),
		t.FeeAsset, t.FeeAmt.String(), t.OrderClientID, t.TsUnixMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade for %s: %w", t.OrderClientID, err)
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

// HasTradeForOrder reports whether a fill was already recorded for the
// order. One trade per order is the settlement invariant; the reconciler
// checks here before emitting.
func (s *Store) HasTradeForOrder(ctx context.Context, clientOrderID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM trades WHERE order_client_id = ?`, clientOrderID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count trades for %s: %w", clientOrderID, err)
	}
	return n > 0, nil
}

// TradesBySymbol returns a symbol's full fill history ordered by time
// then row id, the replay order the position ledger expects.
func (s *Store) TradesBySymbol(ctx context.Context, symbol string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, side, price, qty, fee_asset, fee_amt, order_client_id, ts_ms
		 FROM trades WHERE symbol = ? ORDER BY ts_ms ASC, id ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			t                  domain.Trade
			side               string
			price, qty, feeAmt string
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &price, &qty, &t.FeeAsset, &feeAmt, &t.OrderClientID, &t.TsUnixMs); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		t.Price = mustDecimal(price)
		t.Qty = mustDecimal(qty)
		t.FeeAmt = mustDecimal(feeAmt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Balances ---

// InsertBalanceSnapshot appends one point-in-time balance row.
func (s *Store) InsertBalanceSnapshot(ctx context.Context, b domain.BalanceSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO balances (asset, free, locked, ts_ms) VALUES (?, ?, ?, ?)`,
		b.Asset, b.Free.String(), b.Locked.String(), b.TsUnixMs)
	if err != nil {
		return fmt.Errorf("failed to insert balance for %s: %w", b.Asset, err)
	}
	return nil
}

// LatestBalance returns the most recent snapshot for an asset.
func (s *Store) LatestBalance(ctx context.Context, asset string) (domain.BalanceSnapshot, bool, error) {
	var (
		b            domain.BalanceSnapshot
		free, locked string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, asset, free, locked, ts_ms FROM balances
		 WHERE asset = ? ORDER BY ts_ms DESC, id DESC LIMIT 1`, asset).
		Scan(&b.ID, &b.Asset, &free, &locked, &b.TsUnixMs)
	if err == sql.ErrNoRows {
		return domain.BalanceSnapshot{}, false, nil
	}
	if err != nil {
		return domain.BalanceSnapshot{}, false, fmt.Errorf("failed to load balance for %s: %w", asset, err)
	}
	b.Free = mustDecimal(free)
	b.Locked = mustDecimal(locked)
	return b, true, nil
}

// --- Candles ---

// UpsertCandles writes a batch of klines, replacing rows that share the
// same (symbol, open time). Refetching overlapping windows is normal;
// the newest fetch wins.
func (s *Store) UpsertCandles(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin candle tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO candles (symbol, open_ms, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(symbol, open_ms) DO UPDATE SET
		   open=excluded.open, high=excluded.high, low=excluded.low,
		   close=excluded.close, volume=excluded.volume`)
	if err != nil {
		return fmt.Errorf("failed to prepare candle upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Symbol, c.OpenUnixMs, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("failed to upsert candle %s@%d: %w", c.Symbol, c.OpenUnixMs, err)
		}
	}
	return tx.Commit()
}

// RecentCloses returns up to limit close prices for a symbol, oldest
// first, ready for the decider's warm-up window.
func (s *Store) RecentCloses(ctx context.Context, symbol string, limit int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT close FROM candles WHERE symbol = ? ORDER BY open_ms DESC LIMIT ?`,
		symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closes for %s: %w", symbol, err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		closes = append(closes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(closes)-1; i < j; i, j = i+1, j-1 {
		closes[i], closes[j] = closes[j], closes[i]
	}
	return closes, nil
}

// CandlesBySymbol returns every stored candle for a symbol in
// chronological order. The backtest replayer walks this set.
func (s *Store) CandlesBySymbol(ctx context.Context, symbol string) ([]domain.Candle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, open_ms, open, high, low, close, volume FROM candles
		 WHERE symbol = ? ORDER BY open_ms ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s: %w", symbol, err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Symbol, &c.OpenUnixMs, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// LatestCandle returns the newest stored candle for a symbol.
func (s *Store) LatestCandle(ctx context.Context, symbol string) (domain.Candle, bool, error) {
	var c domain.Candle
	err := s.db.QueryRowContext(ctx,
		`SELECT symbol, open_ms, open, high, low, close, volume FROM candles
		 WHERE symbol = ? ORDER BY open_ms DESC LIMIT 1`, symbol).
		Scan(&c.Symbol, &c.OpenUnixMs, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
	if err == sql.ErrNoRows {
		return domain.Candle{}, false, nil
	}
	if err != nil {
		return domain.Candle{}, false, fmt.Errorf("failed to load candle for %s: %w", symbol, err)
	}
	return c, true, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (domain.Order, error) {
	var (
		o                   domain.Order
		side, otype, status string
		price, qty          string
	)
	if err := r.Scan(&o.ID, &o.ClientOrderID, &o.ExchOrderID, &o.Symbol, &side, &otype,
		&price, &qty, &status, &o.CreatedUnixMs, &o.UpdatedUnixMs); err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.Side(side)
	o.Type = domain.OrderType(otype)
	o.Status = domain.OrderStatus(status)
	o.Price = mustDecimal(price)
	o.Qty = mustDecimal(qty)
	return o, nil
}

// mustDecimal trusts our own stored strings; a corrupt cell reads as zero
// rather than poisoning a whole query.
func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
