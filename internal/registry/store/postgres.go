package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"dplay/internal/registry/models"
	id "dplay/pkg/domain"
	"dplay/pkg/platform/sentinel"
	txcontext "dplay/pkg/platform/tx"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the ledger tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure registry schema: %w", err)
	}
	return nil
}

// SeedAccount inserts the singleton registry account row if missing.
// Administrator and fee are fixed at creation; an existing row wins.
func SeedAccount(ctx context.Context, db *sql.DB, administrator id.Identity, registrationFee int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO registry_account (id, administrator, registration_fee)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO NOTHING`,
		administrator.String(), registrationFee,
	)
	if err != nil {
		return fmt.Errorf("seed registry account: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execer(ctx context.Context, db *sql.DB) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

// isUniqueViolation recognizes constraint conflicts from both the pgx and
// pq drivers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// PostgresListingStore persists listings in PostgreSQL.
type PostgresListingStore struct {
	db *sql.DB
}

func NewPostgresListingStore(db *sql.DB) *PostgresListingStore {
	return &PostgresListingStore{db: db}
}

const listingColumns = `id, name, category, content_ref, price, publisher,
	downloads, rating_sum, rating_count, verified, created_at, updated_at`

func (s *PostgresListingStore) Create(ctx context.Context, listing *models.Listing) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		int64(listing.ID), listing.Name, listing.Category, listing.ContentRef,
		listing.Price, listing.Publisher.String(), listing.Downloads,
		listing.RatingSum, listing.RatingCount, listing.Verified,
		listing.CreatedAt, listing.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

func (s *PostgresListingStore) FindByID(ctx context.Context, listingID id.ListingID) (*models.Listing, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+listingColumns+` FROM listings WHERE id = $1`,
		int64(listingID),
	)
	return scanListing(row)
}

func (s *PostgresListingStore) List(ctx context.Context, category string) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings`
	args := []any{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY id`

	rows, err := execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []*models.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, listing)
	}
	return out, rows.Err()
}

func (s *PostgresListingStore) Execute(ctx context.Context, listingID id.ListingID,
	validate func(*models.Listing) error, apply func(*models.Listing)) (*models.Listing, error) {
	run := execer(ctx, s.db)
	row := run.QueryRowContext(ctx, `
		SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`,
		int64(listingID),
	)
	listing, err := scanListing(row)
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(listing); err != nil {
			return nil, err
		}
	}
	apply(listing)

	_, err = run.ExecContext(ctx, `
		UPDATE listings
		SET downloads = $2, rating_sum = $3, rating_count = $4, verified = $5, updated_at = $6
		WHERE id = $1`,
		int64(listing.ID), listing.Downloads, listing.RatingSum,
		listing.RatingCount, listing.Verified, listing.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	return listing, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var listing models.Listing
	var listingID int64
	var publisher string
	err := row.Scan(&listingID, &listing.Name, &listing.Category, &listing.ContentRef,
		&listing.Price, &publisher, &listing.Downloads, &listing.RatingSum,
		&listing.RatingCount, &listing.Verified, &listing.CreatedAt, &listing.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	listing.ID = id.ListingID(listingID)
	listing.Publisher = id.Identity(publisher)
	return &listing, nil
}

// PostgresInstallStore persists install records; the primary key on
// (listing_id, installer) enforces the duplicate-install invariant.
type PostgresInstallStore struct {
	db *sql.DB
}

func NewPostgresInstallStore(db *sql.DB) *PostgresInstallStore {
	return &PostgresInstallStore{db: db}
}

func (s *PostgresInstallStore) Create(ctx context.Context, record models.InstallRecord) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO install_records (listing_id, installer, price_paid, platform, installed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		int64(record.ListingID), record.Installer.String(), record.PricePaid,
		record.Platform, record.InstalledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create install record: %w", err)
	}
	return nil
}

func (s *PostgresInstallStore) Exists(ctx context.Context, listingID id.ListingID, installer id.Identity) (bool, error) {
	var exists bool
	err := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM install_records WHERE listing_id = $1 AND installer = $2
		)`,
		int64(listingID), installer.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check install record: %w", err)
	}
	return exists, nil
}

// PostgresAccountStore persists the singleton registry account row.
type PostgresAccountStore struct {
	db *sql.DB
}

func NewPostgresAccountStore(db *sql.DB) *PostgresAccountStore {
	return &PostgresAccountStore{db: db}
}

func (s *PostgresAccountStore) Get(ctx context.Context) (models.RegistryAccount, error) {
	var account models.RegistryAccount
	var administrator string
	err := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT administrator, registration_fee, listing_count, retained_balance
		FROM registry_account WHERE id = 1`,
	).Scan(&administrator, &account.RegistrationFee, &account.ListingCount, &account.RetainedBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RegistryAccount{}, sentinel.ErrNotFound
		}
		return models.RegistryAccount{}, fmt.Errorf("load registry account: %w", err)
	}
	account.Administrator = id.Identity(administrator)
	return account, nil
}

func (s *PostgresAccountStore) NextListingID(ctx context.Context) (id.ListingID, error) {
	var count int64
	err := execer(ctx, s.db).QueryRowContext(ctx, `
		UPDATE registry_account SET listing_count = listing_count + 1
		WHERE id = 1
		RETURNING listing_count`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("assign listing id: %w", err)
	}
	return id.ListingID(count), nil
}

func (s *PostgresAccountStore) AddRetained(ctx context.Context, amount int64) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		UPDATE registry_account SET retained_balance = retained_balance + $1
		WHERE id = 1`,
		amount,
	)
	if err != nil {
		return fmt.Errorf("retain registration fee: %w", err)
	}
	return nil
}

func (s *PostgresAccountStore) DrainRetained(ctx context.Context) (int64, error) {
	var amount int64
	err := execer(ctx, s.db).QueryRowContext(ctx, `
		UPDATE registry_account a
		SET retained_balance = 0
		FROM (SELECT retained_balance FROM registry_account WHERE id = 1 FOR UPDATE) old
		WHERE a.id = 1
		RETURNING old.retained_balance`,
	).Scan(&amount)
	if err != nil {
		return 0, fmt.Errorf("drain retained balance: %w", err)
	}
	return amount, nil
}
