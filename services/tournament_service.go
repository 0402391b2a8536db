package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/khelarena/arena-admin/models"
	"github.com/khelarena/arena-admin/repositories"
	"github.com/khelarena/arena-admin/storage"
)

// StatusNotifier receives lifecycle transitions as they are persisted.
// Implemented by the websocket hub; nil disables notifications.
type StatusNotifier interface {
	NotifyStatusChange(tournamentID int, from, to models.TournamentStatus)
}

// Tx is a transaction the repositories can execute against. *sql.Tx
// satisfies it.
type Tx interface {
	repositories.SQLExecutor
	Commit() error
	Rollback() error
}

// BeginTxFunc starts the transaction used by multi-statement operations
// such as Join. Injected so tests can supply their own.
type BeginTxFunc func(ctx context.Context) (Tx, error)

type CreateTournamentInput struct {
	GameName        string    `json:"game_name"`
	GameCategory    string    `json:"game_category"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	EntryFee        int64     `json:"entry_fee"`
	PrizePool       int64     `json:"prize_pool"`
	MatchDetails    string    `json:"match_details"`
	Rules           string    `json:"rules"`
	MaxParticipants int       `json:"max_participants"`
}

// UpdateTournamentInput carries a partial update; nil fields stay as they
// are. The roster has no field here on purpose.
type UpdateTournamentInput struct {
	GameName        *string                  `json:"game_name"`
	GameCategory    *string                  `json:"game_category"`
	ScheduledAt     *time.Time               `json:"scheduled_at"`
	EntryFee        *int64                   `json:"entry_fee"`
	PrizePool       *int64                   `json:"prize_pool"`
	MatchDetails    *string                  `json:"match_details"`
	Rules           *string                  `json:"rules"`
	MaxParticipants *int                     `json:"max_participants"`
	Status          *models.TournamentStatus `json:"status"`
}

type TournamentService interface {
	Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context) ([]models.Tournament, error)
	Update(ctx context.Context, id int, input UpdateTournamentInput) (*models.Tournament, error)
	AttachResult(ctx context.Context, id int, resultRef string) (*models.Tournament, error)
	UploadResult(ctx context.Context, id int, contentType string, content io.Reader) (*models.Tournament, error)
	Delete(ctx context.Context, id int) error
	Join(ctx context.Context, tournamentID, userID int) (*models.Tournament, error)
}

type tournamentService struct {
	beginTx    BeginTxFunc
	repo       repositories.TournamentRepository
	walletRepo repositories.WalletRepository
	uploader   storage.FileUploader
	notifier   StatusNotifier
}

func NewTournamentService(
	beginTx BeginTxFunc,
	repo repositories.TournamentRepository,
	walletRepo repositories.WalletRepository,
	uploader storage.FileUploader,
	notifier StatusNotifier,
) TournamentService {
	return &tournamentService{
		beginTx:    beginTx,
		repo:       repo,
		walletRepo: walletRepo,
		uploader:   uploader,
		notifier:   notifier,
	}
}

func validateTournamentFields(gameName, gameCategory string, scheduledAt time.Time, entryFee, prizePool int64, maxParticipants int) error {
	if strings.TrimSpace(gameName) == "" {
		return ErrGameNameRequired
	}
	if strings.TrimSpace(gameCategory) == "" {
		return ErrGameCategoryRequired
	}
	if scheduledAt.IsZero() {
		return ErrScheduleRequired
	}
	if entryFee < 0 {
		return ErrInvalidEntryFee
	}
	if prizePool < 0 {
		return ErrInvalidPrizePool
	}
	if maxParticipants < 1 {
		return ErrInvalidCapacity
	}
	return nil
}

func (s *tournamentService) Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	if err := validateTournamentFields(
		input.GameName, input.GameCategory, input.ScheduledAt,
		input.EntryFee, input.PrizePool, input.MaxParticipants,
	); err != nil {
		return nil, err
	}

	t := &models.Tournament{
		GameName:        strings.TrimSpace(input.GameName),
		GameCategory:    strings.TrimSpace(input.GameCategory),
		ScheduledAt:     input.ScheduledAt,
		EntryFee:        input.EntryFee,
		PrizePool:       input.PrizePool,
		MatchDetails:    input.MatchDetails,
		Rules:           input.Rules,
		MaxParticipants: input.MaxParticipants,
		Status:          EvaluateStatus(input.ScheduledAt, time.Now(), models.StatusUpcoming),
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.populateResultURL(t)
	return t, nil
}

func (s *tournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}
	s.populateResultURL(t)
	return t, nil
}

func (s *tournamentService) List(ctx context.Context) ([]models.Tournament, error) {
	tournaments, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tournaments {
		s.populateResultURL(&tournaments[i])
	}
	return tournaments, nil
}

// Update applies a partial edit inside one transaction. The row is
// locked first and the write carries the status that was read, so an
// operator's completion (or a reconciler transition) landing concurrently
// can never be overwritten by a descriptive edit.
func (s *tournamentService) Update(ctx context.Context, id int, input UpdateTournamentInput) (*models.Tournament, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin update transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}

	previousStatus := t.Status

	if input.GameName != nil {
		t.GameName = strings.TrimSpace(*input.GameName)
	}
	if input.GameCategory != nil {
		t.GameCategory = strings.TrimSpace(*input.GameCategory)
	}
	if input.ScheduledAt != nil {
		t.ScheduledAt = *input.ScheduledAt
	}
	if input.EntryFee != nil {
		t.EntryFee = *input.EntryFee
	}
	if input.PrizePool != nil {
		t.PrizePool = *input.PrizePool
	}
	if input.MatchDetails != nil {
		t.MatchDetails = *input.MatchDetails
	}
	if input.Rules != nil {
		t.Rules = *input.Rules
	}
	if input.MaxParticipants != nil {
		t.MaxParticipants = *input.MaxParticipants
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		// The evaluator owns regular transitions. The only manual move an
		// operator gets is finalizing a tournament early.
		if *input.Status != t.Status && *input.Status != models.StatusCompleted {
			return nil, ErrInvalidStatusTransition
		}
		t.Status = *input.Status
	}

	if err := validateTournamentFields(
		t.GameName, t.GameCategory, t.ScheduledAt,
		t.EntryFee, t.PrizePool, t.MaxParticipants,
	); err != nil {
		return nil, err
	}
	count, err := s.repo.CountParticipants(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.MaxParticipants < count {
		return nil, ErrInvalidCapacity
	}

	if err := s.repo.Update(ctx, tx, t, previousStatus); err != nil {
		if errors.Is(err, repositories.ErrTournamentStatusConflict) {
			return nil, ErrConcurrencyConflict
		}
		return nil, mapTournamentRepoError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update transaction: %w", err)
	}

	if s.notifier != nil && t.Status != previousStatus {
		s.notifier.NotifyStatusChange(t.ID, previousStatus, t.Status)
	}
	return s.GetByID(ctx, id)
}

// AttachResult stores an externally obtained result reference. Attaching
// again simply overwrites the prior reference.
func (s *tournamentService) AttachResult(ctx context.Context, id int, resultRef string) (*models.Tournament, error) {
	if strings.TrimSpace(resultRef) == "" {
		return nil, ErrValidationFailed
	}
	if err := s.repo.UpdateResultKey(ctx, id, &resultRef); err != nil {
		return nil, mapTournamentRepoError(err)
	}
	return s.GetByID(ctx, id)
}

// UploadResult pushes a result image to object storage and attaches the
// resulting key. A previously uploaded image is deleted once the new key
// is persisted; a failure to delete only costs storage, not correctness.
func (s *tournamentService) UploadResult(ctx context.Context, id int, contentType string, content io.Reader) (*models.Tournament, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}

	ext, err := extensionFromContentType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	key := fmt.Sprintf("tournament_results/%d_%d%s", t.ID, time.Now().UnixNano(), ext)
	if _, err := s.uploader.Upload(ctx, key, contentType, content); err != nil {
		return nil, fmt.Errorf("failed to upload result image: %w", err)
	}

	if err := s.repo.UpdateResultKey(ctx, id, &key); err != nil {
		// Best effort: do not leave the fresh object orphaned.
		_ = s.uploader.Delete(ctx, key)
		return nil, mapTournamentRepoError(err)
	}

	if t.ResultKey != nil && *t.ResultKey != key {
		_ = s.uploader.Delete(ctx, *t.ResultKey)
	}
	return s.GetByID(ctx, id)
}

func (s *tournamentService) Delete(ctx context.Context, id int) error {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return mapTournamentRepoError(err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapTournamentRepoError(err)
	}
	if t.ResultKey != nil {
		_ = s.uploader.Delete(ctx, *t.ResultKey)
	}
	return nil
}

// Join registers userID for the tournament and charges the entry fee, all
// in one transaction: the roster insert cannot commit without the debit
// and vice versa. The tournament row is locked first, so the capacity
// check and the insert are serialized per tournament.
func (s *tournamentService) Join(ctx context.Context, tournamentID, userID int) (*models.Tournament, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin join transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := s.repo.GetForUpdate(ctx, tx, tournamentID)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}
	if t.Status != models.StatusUpcoming {
		return nil, ErrRegistrationClosed
	}

	count, err := s.repo.CountParticipants(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	if count >= t.MaxParticipants {
		return nil, ErrTournamentFull
	}

	if err := s.repo.AddParticipant(ctx, tx, tournamentID, userID); err != nil {
		if errors.Is(err, repositories.ErrParticipantConflict) {
			return nil, ErrAlreadyJoined
		}
		return nil, mapTournamentRepoError(err)
	}

	if t.EntryFee > 0 {
		key := fmt.Sprintf("entry_fee:t%d:u%d", tournamentID, userID)
		if _, err := s.walletRepo.Debit(ctx, tx, userID, t.EntryFee, models.ReasonEntryFee, key); err != nil {
			if errors.Is(err, repositories.ErrWalletInsufficientFunds) {
				return nil, ErrInsufficientFunds
			}
			if errors.Is(err, repositories.ErrWalletSerialization) {
				return nil, ErrConcurrencyConflict
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit join transaction: %w", err)
	}
	return s.GetByID(ctx, tournamentID)
}

func (s *tournamentService) populateResultURL(t *models.Tournament) {
	if t == nil || t.ResultKey == nil || *t.ResultKey == "" || s.uploader == nil {
		return
	}
	if strings.HasPrefix(*t.ResultKey, "http://") || strings.HasPrefix(*t.ResultKey, "https://") {
		// External reference attached as-is.
		url := *t.ResultKey
		t.ResultURL = &url
		return
	}
	if url := s.uploader.GetPublicURL(*t.ResultKey); url != "" {
		t.ResultURL = &url
	}
}

func mapTournamentRepoError(err error) error {
	if errors.Is(err, repositories.ErrTournamentNotFound) {
		return ErrTournamentNotFound
	}
	return err
}

func extensionFromContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("unsupported result image content type %q", contentType)
	}
}
