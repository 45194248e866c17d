/*
Package sqlite provides a SQLite-backed implementation of inventory.Store.

PURPOSE:
  Persists the engine's dataset between runs. The engine works on one
  in-memory dataset; the server saves a snapshot after every successful
  command and loads the last snapshot at startup.

SNAPSHOT SEMANTICS:
  Save replaces the whole dataset inside a single database transaction:
  - DELETE every table
  - INSERT every record in dataset order
  - COMMIT
  A failed save leaves the previous snapshot intact.

KEY TABLES:
  metadata:   key/value rows (organization, version, export info, company)
  products:   catalog
  lots:       lot ledger
  movements:  movement log, newest first (seq preserves order)
  purchases:  purchase records, line items as lines_json
  sales:      sale records, line items as lines_json
  sections:   pass-through sections (quotes, payments, returns, users,
              statistics) as raw JSON

  Every record table has a seq column as its primary key. Record ids come
  from imported documents and are not guaranteed unique, so they are not
  used as keys.

MONEY:
  Decimal values are stored as TEXT to keep them exact.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/pharma.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ds, err := store.Load(ctx)   // nil when nothing was saved yet

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - inventory/store.go: Interface definition
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/lot-ledger/inventory"
)

// Store implements inventory.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ inventory.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// writes are serialized by the store anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		threshold INTEGER NOT NULL,
		purchase_price TEXT NOT NULL,
		sale_price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		created_at TEXT
	);

	CREATE TABLE IF NOT EXISTS lots (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		product TEXT NOT NULL,
		lot_number TEXT NOT NULL,
		remaining INTEGER NOT NULL,
		initial INTEGER NOT NULL,
		expiry TEXT,
		purchase_price TEXT NOT NULL,
		sale_price TEXT NOT NULL,
		supplier TEXT,
		status TEXT NOT NULL,
		reference TEXT,
		created_at TEXT,
		modified_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_lots_product
		ON lots(product COLLATE NOCASE);

	-- Movement log, newest first
	CREATE TABLE IF NOT EXISTS movements (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		at TEXT,
		product TEXT NOT NULL,
		lot_number TEXT,
		direction TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		before_qty INTEGER NOT NULL,
		after_qty INTEGER NOT NULL,
		reference TEXT,
		note TEXT,
		actor TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_movements_reference
		ON movements(reference) WHERE reference IS NOT NULL;

	CREATE TABLE IF NOT EXISTS purchases (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		date TEXT,
		supplier TEXT,
		payment_status TEXT,
		lines_json TEXT NOT NULL,
		created_at TEXT,
		created_by TEXT
	);

	CREATE TABLE IF NOT EXISTS sales (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		date TEXT,
		client TEXT,
		payment_mode TEXT,
		payment_status TEXT,
		notes TEXT,
		lines_json TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		created_at TEXT,
		created_by TEXT
	);

	-- Sections carried without interpretation
	CREATE TABLE IF NOT EXISTS sections (
		name TEXT PRIMARY KEY,
		json TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SAVE
// =============================================================================

// Save replaces the stored dataset atomically.
func (s *Store) Save(ctx context.Context, ds *inventory.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, table := range []string{"metadata", "products", "lots", "movements", "purchases", "sales", "sections"} {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	steps := []func(context.Context, *sql.Tx, *inventory.Dataset) error{
		saveMetadata, saveProducts, saveLots, saveMovements, savePurchases, saveSales, saveSections,
	}
	for _, step := range steps {
		if err := step(ctx, sqlTx, ds); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func saveMetadata(ctx context.Context, tx *sql.Tx, ds *inventory.Dataset) error {
	rows := map[string]string{
		"organization_name": ds.Metadata.OrganizationName,
		"version":           ds.Metadata.Version,
		"app_name":          ds.Metadata.AppName,
		"exported_by":       ds.Metadata.ExportedBy,
		"exported_at":       timeString(ds.Metadata.ExportedAt),
		"company_name":      ds.Company.Name,
		"saved_at":          timeString(time.Now()),
	}
	for k, v := range rows {
		if _, err := tx.ExecContext(ctx, `INSERT INTO metadata (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to save metadata: %w", err)
		}
	}
	return nil
}

func saveProducts(ctx context.Context, tx *sql.Tx, ds *inventory.Dataset) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (seq, id, name, threshold, purchase_price, sale_price, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare products: %w", err)
	}
	defer stmt.Close()

	for i, p := range ds.Products {
		_, err := stmt.ExecContext(ctx, i, p.ID, p.Name, p.Threshold,
			p.PurchasePrice.String(), p.SalePrice.String(), p.Quantity, formatTime(p.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to save product %s: %w", p.Name, err)
		}
	}
	return nil
}

func saveLots(ctx context.Context, tx *sql.Tx, ds *inventory.Dataset) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lots
		(seq, id, product, lot_number, remaining, initial, expiry, purchase_price, sale_price,
		 supplier, status, reference, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare lots: %w", err)
	}
	defer stmt.Close()

	for i, l := range ds.Lots {
		_, err := stmt.ExecContext(ctx, i, l.ID, l.Product, l.LotNumber, l.Remaining, l.Initial,
			nullString(l.Expiry.String()), l.PurchasePrice.String(), l.SalePrice.String(),
			nullString(l.Supplier), l.Status, nullString(l.Reference),
			formatTime(l.CreatedAt), formatTime(l.ModifiedAt))
		if err != nil {
			return fmt.Errorf("failed to save lot %s: %w", l.LotNumber, err)
		}
	}
	return nil
}

func saveMovements(ctx context.Context, tx *sql.Tx, ds *inventory.Dataset) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO movements
		(seq, id, at, product, lot_number, direction, quantity, before_qty, after_qty, reference, note, actor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare movements: %w", err)
	}
	defer stmt.Close()

	for i, m := range ds.Movements {
		_, err := stmt.ExecContext(ctx, i, m.ID, formatTime(m.At), m.Product, nullString(m.LotNumber),
			m.Direction, m.Quantity, m.Before, m.After,
			nullString(m.Reference), nullString(m.Note), nullString(m.Actor))
		if err != nil {
			return fmt.Errorf("failed to save movement %s: %w", m.ID, err)
		}
	}
	return nil
}

func savePurchases(ctx context.Context, tx *sql.Tx, ds *inventory.Dataset) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO purchases (seq, id, date, supplier, payment_status, lines_json, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare purchases: %w", err)
	}
	defer stmt.Close()

	for i, p := range ds.Purchases {
		linesJSON, err := json.Marshal(p.Lines)
		if err != nil {
			return fmt.Errorf("failed to encode purchase %s lines: %w", p.ID, err)
		}
		_, err = stmt.ExecContext(ctx, i, p.ID, nullString(p.Date.String()), nullString(p.Supplier),
			nullString(p.PaymentStatus), string(linesJSON), formatTime(p.CreatedAt), nullString(p.CreatedBy))
		if err != nil {
			return fmt.Errorf("failed to save purchase %s: %w", p.ID, err)
		}
	}
	return nil
}

func saveSales(ctx context.Context, tx *sql.Tx, ds *inventory.Dataset) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sales
		(seq, id, date, client, payment_mode, payment_status, notes, lines_json, total_amount, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sales: %w", err)
	}
	defer stmt.Close()

	for i, s := range ds.Sales {
		linesJSON, err := json.Marshal(s.Lines)
		if err != nil {
			return fmt.Errorf("failed to encode sale %s lines: %w", s.ID, err)
		}
		_, err = stmt.ExecContext(ctx, i, s.ID, nullString(s.Date.String()), nullString(s.Client),
			nullString(s.PaymentMode), nullString(s.PaymentStatus), nullString(s.Notes),
			string(linesJSON), s.TotalAmount.String(), formatTime(s.CreatedAt), nullString(s.CreatedBy))
		if err != nil {
			return fmt.Errorf("failed to save sale %s: %w", s.ID, err)
		}
	}
	return nil
}

func saveSections(ctx context.Context, tx *sql.Tx, ds *inventory.Dataset) error {
	sections := map[string]any{
		"quotes":   ds.Quotes,
		"payments": ds.Payments,
		"returns":  ds.Returns,
		"users":    ds.Users,
	}
	if len(ds.Statistics) > 0 {
		sections["statistics"] = ds.Statistics
	}
	for name, v := range sections {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode section %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO sections (name, json) VALUES (?, ?)`, name, string(raw)); err != nil {
			return fmt.Errorf("failed to save section %s: %w", name, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load returns the last saved dataset, or nil if Save was never called.
func (s *Store) Load(ctx context.Context) (*inventory.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.loadMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	ds := &inventory.Dataset{
		Metadata: inventory.Metadata{
			OrganizationName: meta["organization_name"],
			Version:          meta["version"],
			AppName:          meta["app_name"],
			ExportedBy:       meta["exported_by"],
			ExportedAt:       parseTime(meta["exported_at"]),
		},
		Company: inventory.Company{Name: meta["company_name"]},
	}

	steps := []func(context.Context, *inventory.Dataset) error{
		s.loadProducts, s.loadLots, s.loadMovements, s.loadPurchases, s.loadSales, s.loadSections,
	}
	for _, step := range steps {
		if err := step(ctx, ds); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (s *Store) loadMetadata(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, saved := meta["saved_at"]; !saved {
		return nil, nil
	}
	return meta, nil
}

func (s *Store) loadProducts(ctx context.Context, ds *inventory.Dataset) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, threshold, purchase_price, sale_price, quantity, created_at
		FROM products ORDER BY seq
	`)
	if err != nil {
		return fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	ds.Products = []inventory.Product{}
	for rows.Next() {
		var (
			p              inventory.Product
			purchase, sale string
			createdAt      sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Threshold, &purchase, &sale, &p.Quantity, &createdAt); err != nil {
			return fmt.Errorf("failed to scan product: %w", err)
		}
		p.PurchasePrice = parseDecimal(purchase)
		p.SalePrice = parseDecimal(sale)
		p.CreatedAt = parseTime(createdAt.String)
		ds.Products = append(ds.Products, p)
	}
	return rows.Err()
}

func (s *Store) loadLots(ctx context.Context, ds *inventory.Dataset) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product, lot_number, remaining, initial, expiry, purchase_price, sale_price,
		       supplier, status, reference, created_at, modified_at
		FROM lots ORDER BY seq
	`)
	if err != nil {
		return fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	ds.Lots = []inventory.Lot{}
	for rows.Next() {
		var (
			l                           inventory.Lot
			purchase, sale              string
			expiry, supplier, reference sql.NullString
			createdAt, modifiedAt       sql.NullString
		)
		err := rows.Scan(&l.ID, &l.Product, &l.LotNumber, &l.Remaining, &l.Initial, &expiry,
			&purchase, &sale, &supplier, &l.Status, &reference, &createdAt, &modifiedAt)
		if err != nil {
			return fmt.Errorf("failed to scan lot: %w", err)
		}
		l.Expiry = parseDate(expiry.String)
		l.PurchasePrice = parseDecimal(purchase)
		l.SalePrice = parseDecimal(sale)
		l.Supplier = supplier.String
		l.Reference = reference.String
		l.CreatedAt = parseTime(createdAt.String)
		l.ModifiedAt = parseTime(modifiedAt.String)
		ds.Lots = append(ds.Lots, l)
	}
	return rows.Err()
}

func (s *Store) loadMovements(ctx context.Context, ds *inventory.Dataset) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, product, lot_number, direction, quantity, before_qty, after_qty, reference, note, actor
		FROM movements ORDER BY seq
	`)
	if err != nil {
		return fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	ds.Movements = []inventory.Movement{}
	for rows.Next() {
		var (
			m                                     inventory.Movement
			at, lotNumber, reference, note, actor sql.NullString
		)
		err := rows.Scan(&m.ID, &at, &m.Product, &lotNumber, &m.Direction, &m.Quantity,
			&m.Before, &m.After, &reference, &note, &actor)
		if err != nil {
			return fmt.Errorf("failed to scan movement: %w", err)
		}
		m.At = parseTime(at.String)
		m.LotNumber = lotNumber.String
		m.Reference = reference.String
		m.Note = note.String
		m.Actor = actor.String
		ds.Movements = append(ds.Movements, m)
	}
	return rows.Err()
}

func (s *Store) loadPurchases(ctx context.Context, ds *inventory.Dataset) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, supplier, payment_status, lines_json, created_at, created_by
		FROM purchases ORDER BY seq
	`)
	if err != nil {
		return fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	ds.Purchases = []inventory.Purchase{}
	for rows.Next() {
		var (
			p                                     inventory.Purchase
			linesJSON                             string
			date, supplier, status, createdAt, by sql.NullString
		)
		if err := rows.Scan(&p.ID, &date, &supplier, &status, &linesJSON, &createdAt, &by); err != nil {
			return fmt.Errorf("failed to scan purchase: %w", err)
		}
		if err := json.Unmarshal([]byte(linesJSON), &p.Lines); err != nil {
			return fmt.Errorf("failed to decode purchase %s lines: %w", p.ID, err)
		}
		p.Date = parseDate(date.String)
		p.Supplier = supplier.String
		p.PaymentStatus = status.String
		p.CreatedAt = parseTime(createdAt.String)
		p.CreatedBy = by.String
		ds.Purchases = append(ds.Purchases, p)
	}
	return rows.Err()
}

func (s *Store) loadSales(ctx context.Context, ds *inventory.Dataset) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, client, payment_mode, payment_status, notes, lines_json, total_amount, created_at, created_by
		FROM sales ORDER BY seq
	`)
	if err != nil {
		return fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	ds.Sales = []inventory.Sale{}
	for rows.Next() {
		var (
			sale                              inventory.Sale
			linesJSON, total                  string
			date, client, mode, status, notes sql.NullString
			createdAt, by                     sql.NullString
		)
		err := rows.Scan(&sale.ID, &date, &client, &mode, &status, &notes, &linesJSON, &total, &createdAt, &by)
		if err != nil {
			return fmt.Errorf("failed to scan sale: %w", err)
		}
		if err := json.Unmarshal([]byte(linesJSON), &sale.Lines); err != nil {
			return fmt.Errorf("failed to decode sale %s lines: %w", sale.ID, err)
		}
		sale.Date = parseDate(date.String)
		sale.Client = client.String
		sale.PaymentMode = mode.String
		sale.PaymentStatus = status.String
		sale.Notes = notes.String
		sale.TotalAmount = parseDecimal(total)
		sale.CreatedAt = parseTime(createdAt.String)
		sale.CreatedBy = by.String
		ds.Sales = append(ds.Sales, sale)
	}
	return rows.Err()
}

func (s *Store) loadSections(ctx context.Context, ds *inventory.Dataset) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, json FROM sections`)
	if err != nil {
		return fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return fmt.Errorf("failed to scan section: %w", err)
		}
		var target any
		switch name {
		case "quotes":
			target = &ds.Quotes
		case "payments":
			target = &ds.Payments
		case "returns":
			target = &ds.Returns
		case "users":
			target = &ds.Users
		case "statistics":
			ds.Statistics = json.RawMessage(raw)
			continue
		default:
			continue
		}
		if err := json.Unmarshal([]byte(raw), target); err != nil {
			return fmt.Errorf("failed to decode section %s: %w", name, err)
		}
	}
	return rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset deletes the stored snapshot (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"metadata", "products", "lots", "movements", "purchases", "sales", "sections"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTime(t time.Time) sql.NullString {
	return nullString(timeString(t))
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDate(s string) inventory.Date {
	d, _ := inventory.ParseDate(s)
	return d
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
