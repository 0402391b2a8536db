package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/khelarena/arena-admin/models"
	"github.com/khelarena/arena-admin/repositories"
)

// creditRetryLimit bounds how often a credit is retried after losing a
// serialization race before the conflict is surfaced to the caller.
const creditRetryLimit = 3

// LedgerService applies balance deltas to user wallets. All arithmetic is
// in paisa; the repository guarantees atomicity per wallet, this layer
// adds input validation and bounded retry.
type LedgerService interface {
	Credit(ctx context.Context, userID int, amount int64, idempotencyKey string) (int64, error)
	GetBalance(ctx context.Context, userID int) (int64, error)
	ListEntries(ctx context.Context, userID int) ([]models.LedgerEntry, error)
}

type ledgerService struct {
	walletRepo repositories.WalletRepository
}

func NewLedgerService(walletRepo repositories.WalletRepository) LedgerService {
	return &ledgerService{walletRepo: walletRepo}
}

func (s *ledgerService) Credit(ctx context.Context, userID int, amount int64, idempotencyKey string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if idempotencyKey == "" {
		return 0, ErrIdempotencyKeyRequired
	}

	var lastErr error
	for attempt := 0; attempt < creditRetryLimit; attempt++ {
		balance, _, err := s.walletRepo.ApplyCredit(ctx, userID, amount, models.ReasonAdminCredit, idempotencyKey)
		if err == nil {
			return balance, nil
		}
		if errors.Is(err, repositories.ErrWalletKeyReused) {
			return 0, ErrIdempotencyKeyReused
		}
		if !errors.Is(err, repositories.ErrWalletSerialization) {
			return 0, fmt.Errorf("credit user %d: %w", userID, err)
		}
		lastErr = err
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrConcurrencyConflict, lastErr)
}

func (s *ledgerService) GetBalance(ctx context.Context, userID int) (int64, error) {
	return s.walletRepo.GetBalance(ctx, userID)
}

func (s *ledgerService) ListEntries(ctx context.Context, userID int) ([]models.LedgerEntry, error) {
	return s.walletRepo.ListEntries(ctx, userID)
}
