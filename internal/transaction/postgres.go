package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresRepository persists transaction records in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a Postgres-backed record store.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const txColumns = `id, user_id, amount::text, currency, kind, status, COALESCE(reference, ''), client_ref,
        COALESCE(tx_hash, ''), COALESCE(wallet_address, ''), COALESCE(counterparty, ''), created_at, updated_at`

// Create inserts a record. A reused client reference yields ErrDuplicateTransaction.
func (r *PostgresRepository) Create(ctx context.Context, tx Transaction) error {
	txID, err := uuid.Parse(tx.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(tx.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO transactions
        (id, user_id, amount, currency, kind, status, reference, client_ref, tx_hash, wallet_address, counterparty, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12, $12)`,
		txID, userID, tx.Amount.String(), tx.Currency, string(tx.Kind), string(tx.Status), tx.Reference, tx.ClientRef,
		tx.TxHash, tx.WalletAddress, tx.Counterparty, tx.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateTransaction
	}
	return err
}

// FindByClientRef returns the record created for an order.
func (r *PostgresRepository) FindByClientRef(ctx context.Context, clientRef string) (Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE client_ref = $1`, clientRef))
}

// ListByUser returns the most recent records for a user.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx, `SELECT `+txColumns+` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Settle moves a PENDING record identified by its rail reference to a terminal status.
func (r *PostgresRepository) Settle(ctx context.Context, reference string, status Status) (Transaction, error) {
	if !status.Terminal() {
		return Transaction{}, fmt.Errorf("settle to non-terminal status %s", status)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := scanTransaction(tx.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`, reference))
	if err != nil {
		return Transaction{}, err
	}
	if current.Status.Terminal() {
		return current, ErrAlreadySettled
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $1, updated_at = $2 WHERE id = $3`, string(status), now, current.ID); err != nil {
		return Transaction{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}

	current.Status = status
	current.UpdatedAt = now
	return current, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx        Transaction
		id        uuid.UUID
		userID    uuid.UUID
		amount    string
		kind      string
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &userID, &amount, &tx.Currency, &kind, &status, &tx.Reference, &tx.ClientRef,
		&tx.TxHash, &tx.WalletAddress, &tx.Counterparty, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, err
	}
	tx.ID = id.String()
	tx.UserID = userID.String()
	tx.Amount = parsed
	tx.Kind = Kind(kind)
	tx.Status = Status(status)
	tx.CreatedAt = createdAt.UTC()
	tx.UpdatedAt = updatedAt.UTC()
	return tx, nil
}
