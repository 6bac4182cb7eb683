package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no wallet record matches.
	ErrNotFound = errors.New("wallet not found")
	// ErrExists is returned when a record for the address already exists.
	ErrExists = errors.New("wallet exists")
)

// Repository persists wallet metadata.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	FindByAddress(ctx context.Context, address string) (Wallet, error)
	FindByOwner(ctx context.Context, ownerID string) (Wallet, error)
	UpdateBalance(ctx context.Context, address string, balance decimal.Decimal) error
}

// PostgresRepository stores wallets in PostgreSQL. Addresses are matched case-insensitively.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, owner_id, address, currency, balance::text, status, created_at, updated_at`

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(wallet.OwnerID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, address, currency, balance, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $7)`,
		walletID, ownerID, wallet.Address, wallet.Currency, wallet.Balance.String(), wallet.Status, wallet.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

// FindByAddress fetches wallet metadata by on-chain address.
func (r *PostgresRepository) FindByAddress(ctx context.Context, address string) (Wallet, error) {
	return r.scanOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE lower(address) = lower($1)`, address)
}

// FindByOwner fetches the wallet owned by a user.
func (r *PostgresRepository) FindByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	return r.scanOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 ORDER BY created_at LIMIT 1`, id)
}

// UpdateBalance refreshes the cached balance.
func (r *PostgresRepository) UpdateBalance(ctx context.Context, address string, balance decimal.Decimal) error {
	cmd, err := r.db.Exec(ctx, `UPDATE wallets SET balance = $1::numeric, updated_at = $2 WHERE lower(address) = lower($3)`,
		balance.String(), time.Now().UTC(), address)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, arg any) (Wallet, error) {
	row := r.db.QueryRow(ctx, query, arg)
	var (
		w         Wallet
		idVal     uuid.UUID
		ownerID   uuid.UUID
		balance   string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&idVal, &ownerID, &w.Address, &w.Currency, &balance, &w.Status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, err
	}
	w.ID = idVal.String()
	w.OwnerID = ownerID.String()
	w.Balance = parsed
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}
