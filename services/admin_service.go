package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/khelarena/arena-admin/models"
)

// AdminService is the single boundary the admin console talks to. It owns
// no state and no rules of its own; it sequences the components and lets
// their typed errors pass through untouched.
type AdminService interface {
	CreateTournament(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	UpdateTournament(ctx context.Context, id int, input UpdateTournamentInput) (*models.Tournament, error)
	DeleteTournament(ctx context.Context, id int) error
	AttachTournamentResult(ctx context.Context, id int, resultRef string) (*models.Tournament, error)
	UploadTournamentResult(ctx context.Context, id int, contentType string, content io.Reader) (*models.Tournament, error)
	ListTournaments(ctx context.Context) ([]models.Tournament, error)
	GetTournament(ctx context.Context, id int) (*models.Tournament, error)
	JoinTournament(ctx context.Context, tournamentID, userID int) (*models.Tournament, error)

	CreditUserWallet(ctx context.Context, userID int, amount int64, idempotencyKey string) (int64, error)
	GetWalletBalance(ctx context.Context, userID int) (int64, error)
	ListWalletEntries(ctx context.Context, userID int) ([]models.LedgerEntry, error)
}

type adminService struct {
	tournaments TournamentService
	ledger      LedgerService
	lifecycle   LifecycleService
	logger      *slog.Logger
}

func NewAdminService(
	tournaments TournamentService,
	ledger LedgerService,
	lifecycle LifecycleService,
	logger *slog.Logger,
) AdminService {
	return &adminService{
		tournaments: tournaments,
		ledger:      ledger,
		lifecycle:   lifecycle,
		logger:      logger,
	}
}

func (s *adminService) CreateTournament(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	return s.tournaments.Create(ctx, input)
}

func (s *adminService) UpdateTournament(ctx context.Context, id int, input UpdateTournamentInput) (*models.Tournament, error) {
	return s.tournaments.Update(ctx, id, input)
}

func (s *adminService) DeleteTournament(ctx context.Context, id int) error {
	return s.tournaments.Delete(ctx, id)
}

func (s *adminService) AttachTournamentResult(ctx context.Context, id int, resultRef string) (*models.Tournament, error) {
	return s.tournaments.AttachResult(ctx, id, resultRef)
}

func (s *adminService) UploadTournamentResult(ctx context.Context, id int, contentType string, content io.Reader) (*models.Tournament, error) {
	return s.tournaments.UploadResult(ctx, id, contentType, content)
}

// ListTournaments reconciles first, so the listing is never staler than
// the last reconciliation attempt. A reconcile failure is logged, not
// returned: a listing with possibly stale statuses beats no listing.
func (s *adminService) ListTournaments(ctx context.Context) ([]models.Tournament, error) {
	if _, err := s.lifecycle.ReconcileAll(ctx, time.Now()); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "pre-listing reconciliation failed", slog.Any("error", err))
		}
	}
	return s.tournaments.List(ctx)
}

func (s *adminService) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	return s.tournaments.GetByID(ctx, id)
}

func (s *adminService) JoinTournament(ctx context.Context, tournamentID, userID int) (*models.Tournament, error) {
	return s.tournaments.Join(ctx, tournamentID, userID)
}

func (s *adminService) CreditUserWallet(ctx context.Context, userID int, amount int64, idempotencyKey string) (int64, error) {
	return s.ledger.Credit(ctx, userID, amount, idempotencyKey)
}

func (s *adminService) GetWalletBalance(ctx context.Context, userID int) (int64, error) {
	return s.ledger.GetBalance(ctx, userID)
}

func (s *adminService) ListWalletEntries(ctx context.Context, userID int) ([]models.LedgerEntry, error) {
	return s.ledger.ListEntries(ctx, userID)
}
