package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/khelarena/arena-admin/models"
)

var (
	ErrWalletInsufficientFunds = errors.New("wallet balance is insufficient")
	ErrWalletSerialization     = errors.New("wallet update lost a race, retry")
	ErrWalletKeyReused         = errors.New("idempotency key already used for another wallet")
)

type WalletRepository interface {
	// ApplyCredit adds amount to the user's wallet exactly once per
	// idempotency key and returns the resulting balance. A replayed key
	// returns the balance produced by the first application, with
	// applied == false. The wallet row is created lazily.
	ApplyCredit(ctx context.Context, userID int, amount int64, reason, key string) (balance int64, applied bool, err error)

	// Debit subtracts amount inside the caller's transaction, failing with
	// ErrWalletInsufficientFunds rather than letting the balance go
	// negative. Same idempotency-key semantics as ApplyCredit.
	Debit(ctx context.Context, exec SQLExecutor, userID int, amount int64, reason, key string) (balance int64, err error)

	GetBalance(ctx context.Context, userID int) (int64, error)
	ListEntries(ctx context.Context, userID int) ([]models.LedgerEntry, error)
}

type postgresWalletRepository struct {
	db *sql.DB
}

func NewPostgresWalletRepository(db *sql.DB) WalletRepository {
	return &postgresWalletRepository{db: db}
}

func (r *postgresWalletRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresWalletRepository) ApplyCredit(ctx context.Context, userID int, amount int64, reason, key string) (int64, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin credit transaction: %w", err)
	}
	defer tx.Rollback()

	balance, applied, err := r.applyDelta(ctx, tx, userID, amount, reason, key)
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return 0, false, ErrWalletSerialization
		}
		return 0, false, fmt.Errorf("failed to commit credit transaction: %w", err)
	}
	return balance, applied, nil
}

func (r *postgresWalletRepository) Debit(ctx context.Context, exec SQLExecutor, userID int, amount int64, reason, key string) (int64, error) {
	balance, _, err := r.applyDelta(ctx, exec, userID, -amount, reason, key)
	return balance, err
}

// applyDelta is the single write path for wallet balances. It locks the
// wallet row, claims the idempotency key by inserting the ledger entry,
// and moves the balance, all against the same executor, so the whole
// adjustment commits or rolls back as one.
func (r *postgresWalletRepository) applyDelta(ctx context.Context, exec SQLExecutor, userID int, delta int64, reason, key string) (int64, bool, error) {
	executor := r.getExecutor(exec)

	_, err := executor.ExecContext(ctx,
		`INSERT INTO wallets (user_id, balance) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		if isSerializationFailure(err) {
			return 0, false, ErrWalletSerialization
		}
		return 0, false, fmt.Errorf("failed to materialize wallet for user %d: %w", userID, err)
	}

	var balance int64
	err = executor.QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		if isSerializationFailure(err) {
			return 0, false, ErrWalletSerialization
		}
		return 0, false, fmt.Errorf("failed to lock wallet of user %d: %w", userID, err)
	}

	newBalance := balance + delta
	if newBalance < 0 {
		return 0, false, ErrWalletInsufficientFunds
	}

	var entryID int
	err = executor.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (user_id, amount, reason, idempotency_key, balance)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
		userID, delta, reason, key, newBalance,
	).Scan(&entryID)
	if errors.Is(err, sql.ErrNoRows) {
		// The key was claimed earlier: report the balance that first
		// application produced, without touching the wallet again. A key
		// claimed by a different user's entry is a conflict, not a replay.
		var priorBalance int64
		replayErr := executor.QueryRowContext(ctx,
			`SELECT balance FROM ledger_entries WHERE idempotency_key = $1 AND user_id = $2`,
			key, userID).Scan(&priorBalance)
		if errors.Is(replayErr, sql.ErrNoRows) {
			return 0, false, ErrWalletKeyReused
		}
		if replayErr != nil {
			return 0, false, fmt.Errorf("failed to read replayed ledger entry %q: %w", key, replayErr)
		}
		return priorBalance, false, nil
	}
	if err != nil {
		if isSerializationFailure(err) {
			return 0, false, ErrWalletSerialization
		}
		return 0, false, fmt.Errorf("failed to write ledger entry for user %d: %w", userID, err)
	}

	_, err = executor.ExecContext(ctx,
		`UPDATE wallets SET balance = $1, updated_at = now() WHERE user_id = $2`, newBalance, userID)
	if err != nil {
		if isSerializationFailure(err) {
			return 0, false, ErrWalletSerialization
		}
		return 0, false, fmt.Errorf("failed to update balance of user %d: %w", userID, err)
	}

	return newBalance, true, nil
}

func (r *postgresWalletRepository) GetBalance(ctx context.Context, userID int) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		// Every user logically has a wallet; it just has not been
		// materialized yet.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance of user %d: %w", userID, err)
	}
	return balance, nil
}

func (r *postgresWalletRepository) ListEntries(ctx context.Context, userID int) ([]models.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, amount, reason, idempotency_key, balance, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries of user %d: %w", userID, err)
	}
	defer rows.Close()

	entries := make([]models.LedgerEntry, 0)
	for rows.Next() {
		var e models.LedgerEntry
		if scanErr := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &e.IdempotencyKey, &e.Balance, &e.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
