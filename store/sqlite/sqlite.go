/*
Package sqlite provides a SQLite-backed implementation of the shipment
store.

PURPOSE:
  Persists registered shipments, their funding offers, and attached
  document references. This is the query/persistence side of the system;
  the ledger remains the source of truth for monetary state, and the
  reconciler overwrites these rows from authoritative reads.

KEY TABLES:
  shipments:  One row per registered bill of lading. Monetary columns
              are stored as decimal strings (token amounts exceed int64).
  offers:     Funding offers, keyed by offer id, indexed by BoL hash.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With PostgreSQL the database's
  own concurrency control would take over; only SQL dialect details
  would change.

USAGE:
  store, err := sqlite.New("./data/trade.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - orchestrator/store.go: The interface this implements
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/willitship/trade-engine/trade"
)

// Store implements orchestrator.ShipmentStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

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

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS shipments (
		hash TEXT PRIMARY KEY,
		contract TEXT NOT NULL,
		bl_number TEXT,
		carrier TEXT NOT NULL,
		seller TEXT NOT NULL,
		buyer TEXT NOT NULL,
		carrier_name TEXT,
		seller_name TEXT,
		buyer_name TEXT,
		declared_value TEXT NOT NULL,
		total_funded TEXT NOT NULL DEFAULT '0',
		total_paid TEXT NOT NULL DEFAULT '0',
		total_repaid TEXT NOT NULL DEFAULT '0',
		minted_at TEXT,
		funding_enabled_at TEXT,
		arrived_at TEXT,
		paid_at TEXT,
		settled_at TEXT,
		document_url TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_shipments_seller ON shipments(seller);
	CREATE INDEX IF NOT EXISTS idx_shipments_buyer ON shipments(buyer);
	CREATE INDEX IF NOT EXISTS idx_shipments_created ON shipments(created_at DESC);

	CREATE TABLE IF NOT EXISTS offers (
		id TEXT PRIMARY KEY,
		bol_hash TEXT NOT NULL,
		investor TEXT NOT NULL,
		amount TEXT NOT NULL,
		interest_rate_bps INTEGER NOT NULL,
		accepted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (bol_hash) REFERENCES shipments(hash)
	);

	CREATE INDEX IF NOT EXISTS idx_offers_bol_hash ON offers(bol_hash);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SHIPMENTS
// =============================================================================

const shipmentColumns = `hash, contract, bl_number, carrier, seller, buyer,
	carrier_name, seller_name, buyer_name,
	declared_value, total_funded, total_paid, total_repaid,
	minted_at, funding_enabled_at, arrived_at, paid_at, settled_at,
	document_url, created_at, updated_at`

func (s *Store) SaveShipment(ctx context.Context, sh *trade.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shipments (`+shipmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(sh.Hash), string(sh.Contract), sh.BLNumber,
		string(sh.Carrier), string(sh.Seller), string(sh.Buyer),
		sh.CarrierName, sh.SellerName, sh.BuyerName,
		sh.DeclaredValue.String(), sh.TotalFunded.String(), sh.TotalPaid.String(), sh.TotalRepaid.String(),
		encodeTime(sh.MintedAt), encodeTime(sh.FundingEnabledAt), encodeTime(sh.ArrivedAt),
		encodeTime(sh.PaidAt), encodeTime(sh.SettledAt),
		sh.DocumentURL, sh.CreatedAt.Format(time.RFC3339Nano), sh.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) UpdateShipment(ctx context.Context, sh *trade.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE shipments SET
			total_funded = ?, total_paid = ?, total_repaid = ?, declared_value = ?,
			minted_at = ?, funding_enabled_at = ?, arrived_at = ?, paid_at = ?, settled_at = ?,
			document_url = ?, updated_at = ?
		WHERE hash = ?`,
		sh.TotalFunded.String(), sh.TotalPaid.String(), sh.TotalRepaid.String(), sh.DeclaredValue.String(),
		encodeTime(sh.MintedAt), encodeTime(sh.FundingEnabledAt), encodeTime(sh.ArrivedAt),
		encodeTime(sh.PaidAt), encodeTime(sh.SettledAt),
		sh.DocumentURL, time.Now().UTC().Format(time.RFC3339Nano),
		string(sh.Hash),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shipment %s: %w", sh.Hash, trade.ErrNotFound)
	}
	return nil
}

func (s *Store) GetShipment(ctx context.Context, hash trade.BoLHash) (*trade.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+shipmentColumns+` FROM shipments WHERE hash = ?`, string(hash))
	sh, err := scanShipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shipment %s: %w", hash, trade.ErrNotFound)
	}
	return sh, err
}

func (s *Store) ListShipments(ctx context.Context) ([]*trade.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shipmentColumns+` FROM shipments ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*trade.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) AttachDocument(ctx context.Context, hash trade.BoLHash, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE shipments SET document_url = ?, updated_at = ? WHERE hash = ?`,
		url, time.Now().UTC().Format(time.RFC3339Nano), string(hash))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shipment %s: %w", hash, trade.ErrNotFound)
	}
	return nil
}

// =============================================================================
// OFFERS
// =============================================================================

func (s *Store) SaveOffer(ctx context.Context, o *trade.FundingOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offers (id, bol_hash, investor, amount, interest_rate_bps, accepted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(o.ID), string(o.Shipment), string(o.Investor),
		o.Amount.String(), o.InterestRateBps, boolToInt(o.Accepted),
		o.CreatedAt.Format(time.RFC3339Nano), o.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) UpdateOffer(ctx context.Context, o *trade.FundingOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE offers SET accepted = ?, updated_at = ? WHERE id = ?`,
		boolToInt(o.Accepted), time.Now().UTC().Format(time.RFC3339Nano), string(o.ID))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("offer %s: %w", o.ID, trade.ErrNotFound)
	}
	return nil
}

func (s *Store) GetOffer(ctx context.Context, id trade.OfferID) (*trade.FundingOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, bol_hash, investor, amount, interest_rate_bps, accepted, created_at, updated_at
		FROM offers WHERE id = ?`, string(id))
	o, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("offer %s: %w", id, trade.ErrNotFound)
	}
	return o, err
}

func (s *Store) ListOffers(ctx context.Context, hash trade.BoLHash) ([]*trade.FundingOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bol_hash, investor, amount, interest_rate_bps, accepted, created_at, updated_at
		FROM offers WHERE bol_hash = ? ORDER BY created_at ASC`, string(hash))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*trade.FundingOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanShipment(row scanner) (*trade.Shipment, error) {
	var (
		sh                                 trade.Shipment
		hash, contract, carrier            string
		seller, buyer                      string
		blNumber, carrierName              sql.NullString
		sellerName, buyerName, documentURL sql.NullString
		declared, funded, paid, repaid     string
		minted, fundingEnabled, arrived    sql.NullString
		paidAt, settled                    sql.NullString
		createdAt, updatedAt               string
	)

	if err := row.Scan(
		&hash, &contract, &blNumber, &carrier, &seller, &buyer,
		&carrierName, &sellerName, &buyerName,
		&declared, &funded, &paid, &repaid,
		&minted, &fundingEnabled, &arrived, &paidAt, &settled,
		&documentURL, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	sh.Hash = trade.BoLHash(hash)
	sh.Contract = trade.AccountID(contract)
	sh.BLNumber = blNumber.String
	sh.Carrier = trade.AccountID(carrier)
	sh.Seller = trade.AccountID(seller)
	sh.Buyer = trade.AccountID(buyer)
	sh.CarrierName = carrierName.String
	sh.SellerName = sellerName.String
	sh.BuyerName = buyerName.String
	sh.DocumentURL = documentURL.String

	var err error
	if sh.DeclaredValue, err = trade.ParseAmount(declared); err != nil {
		return nil, fmt.Errorf("shipment %s: bad declared_value: %w", hash, err)
	}
	if sh.TotalFunded, err = trade.ParseAmount(funded); err != nil {
		return nil, fmt.Errorf("shipment %s: bad total_funded: %w", hash, err)
	}
	if sh.TotalPaid, err = trade.ParseAmount(paid); err != nil {
		return nil, fmt.Errorf("shipment %s: bad total_paid: %w", hash, err)
	}
	if sh.TotalRepaid, err = trade.ParseAmount(repaid); err != nil {
		return nil, fmt.Errorf("shipment %s: bad total_repaid: %w", hash, err)
	}

	if sh.MintedAt, err = decodeTime(minted); err != nil {
		return nil, err
	}
	if sh.FundingEnabledAt, err = decodeTime(fundingEnabled); err != nil {
		return nil, err
	}
	if sh.ArrivedAt, err = decodeTime(arrived); err != nil {
		return nil, err
	}
	if sh.PaidAt, err = decodeTime(paidAt); err != nil {
		return nil, err
	}
	if sh.SettledAt, err = decodeTime(settled); err != nil {
		return nil, err
	}

	if sh.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if sh.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &sh, nil
}

func scanOffer(row scanner) (*trade.FundingOffer, error) {
	var (
		o                             trade.FundingOffer
		id, bolHash, investor, amount string
		accepted                      int
		createdAt, updatedAt          string
	)
	if err := row.Scan(&id, &bolHash, &investor, &amount, &o.InterestRateBps, &accepted, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	o.ID = trade.OfferID(id)
	o.Shipment = trade.BoLHash(bolHash)
	o.Investor = trade.AccountID(investor)
	o.Accepted = accepted != 0

	var err error
	if o.Amount, err = trade.ParseAmount(amount); err != nil {
		return nil, fmt.Errorf("offer %s: bad amount: %w", id, err)
	}
	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func encodeTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
