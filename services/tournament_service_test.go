package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/khelarena/arena-admin/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tournamentFixture struct {
	svc      TournamentService
	repo     *memoryTournamentRepo
	wallet   *memoryWalletRepo
	uploader *memoryUploader
	notifier *recordingNotifier
}

func newTournamentFixture() *tournamentFixture {
	f := &tournamentFixture{
		repo:     newMemoryTournamentRepo(),
		wallet:   newMemoryWalletRepo(),
		uploader: newMemoryUploader(),
		notifier: &recordingNotifier{},
	}
	f.svc = NewTournamentService(memoryBeginTx(), f.repo, f.wallet, f.uploader, f.notifier)
	return f
}

func validCreateInput() CreateTournamentInput {
	return CreateTournamentInput{
		GameName:        "Erangel Classic Cup",
		GameCategory:    models.CategoryPUBG,
		ScheduledAt:     time.Now().Add(48 * time.Hour),
		EntryFee:        5000,
		PrizePool:       200000,
		MatchDetails:    "Room ID shared 15 minutes before start",
		Rules:           "No emulators, no teaming",
		MaxParticipants: 100,
	}
}

func TestCreateTournamentValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateTournamentInput)
		wantErr error
	}{
		{
			name:    "blank game name",
			mutate:  func(in *CreateTournamentInput) { in.GameName = "   " },
			wantErr: ErrGameNameRequired,
		},
		{
			name:    "blank category",
			mutate:  func(in *CreateTournamentInput) { in.GameCategory = "" },
			wantErr: ErrGameCategoryRequired,
		},
		{
			name:    "missing schedule",
			mutate:  func(in *CreateTournamentInput) { in.ScheduledAt = time.Time{} },
			wantErr: ErrScheduleRequired,
		},
		{
			name:    "negative entry fee",
			mutate:  func(in *CreateTournamentInput) { in.EntryFee = -1 },
			wantErr: ErrInvalidEntryFee,
		},
		{
			name:    "negative prize pool",
			mutate:  func(in *CreateTournamentInput) { in.PrizePool = -100 },
			wantErr: ErrInvalidPrizePool,
		},
		{
			name:    "zero capacity",
			mutate:  func(in *CreateTournamentInput) { in.MaxParticipants = 0 },
			wantErr: ErrInvalidCapacity,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newTournamentFixture()
			input := validCreateInput()
			tc.mutate(&input)

			_, err := f.svc.Create(context.Background(), input)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCreateTournamentDerivesInitialStatus(t *testing.T) {
	f := newTournamentFixture()
	ctx := context.Background()

	future := validCreateInput()
	created, err := f.svc.Create(ctx, future)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUpcoming, created.Status)
	assert.NotZero(t, created.ID)

	past := validCreateInput()
	past.ScheduledAt = time.Now().Add(-time.Hour)
	created, err = f.svc.Create(ctx, past)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLive, created.Status)
}

func TestUpdateTournamentAppliesPartialInput(t *testing.T) {
	f := newTournamentFixture()
	ctx := context.Background()

	created, err := f.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, created.ID, UpdateTournamentInput{
		GameName: ptr("  Erangel Classic Cup II  "),
		EntryFee: ptr(int64(7500)),
	})
	require.NoError(t, err)

	assert.Equal(t, "Erangel Classic Cup II", updated.GameName)
	assert.Equal(t, int64(7500), updated.EntryFee)
	// Untouched fields survive.
	assert.Equal(t, created.GameCategory, updated.GameCategory)
	assert.Equal(t, created.PrizePool, updated.PrizePool)
	assert.Equal(t, created.MaxParticipants, updated.MaxParticipants)
}

func TestUpdateTournamentStatusRules(t *testing.T) {
	ctx := context.Background()

	t.Run("manual completion is allowed and notified", func(t *testing.T) {
		f := newTournamentFixture()
		created, err := f.svc.Create(ctx, validCreateInput())
		require.NoError(t, err)

		updated, err := f.svc.Update(ctx, created.ID, UpdateTournamentInput{
			Status: ptr(models.StatusCompleted),
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, updated.Status)

		changes := f.notifier.recorded()
		require.Len(t, changes, 1)
		assert.Equal(t, statusChange{tournamentID: created.ID, from: models.StatusUpcoming, to: models.StatusCompleted}, changes[0])
	})

	t.Run("restating the current status is a no-op", func(t *testing.T) {
		f := newTournamentFixture()
		created, err := f.svc.Create(ctx, validCreateInput())
		require.NoError(t, err)

		updated, err := f.svc.Update(ctx, created.ID, UpdateTournamentInput{
			Status: ptr(models.StatusUpcoming),
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusUpcoming, updated.Status)
		assert.Empty(t, f.notifier.recorded())
	})

	t.Run("other manual transitions are rejected", func(t *testing.T) {
		f := newTournamentFixture()
		created, err := f.svc.Create(ctx, validCreateInput())
		require.NoError(t, err)

		_, err = f.svc.Update(ctx, created.ID, UpdateTournamentInput{
			Status: ptr(models.StatusLive),
		})
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	})

	t.Run("completed cannot be reopened", func(t *testing.T) {
		f := newTournamentFixture()
		created, err := f.svc.Create(ctx, validCreateInput())
		require.NoError(t, err)

		_, err = f.svc.Update(ctx, created.ID, UpdateTournamentInput{Status: ptr(models.StatusCompleted)})
		require.NoError(t, err)

		_, err = f.svc.Update(ctx, created.ID, UpdateTournamentInput{Status: ptr(models.StatusLive)})
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		f := newTournamentFixture()
		created, err := f.svc.Create(ctx, validCreateInput())
		require.NoError(t, err)

		_, err = f.svc.Update(ctx, created.ID, UpdateTournamentInput{
			Status: ptr(models.TournamentStatus("archived")),
		})
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}

func TestUpdateTournamentPreservesConcurrentCompletion(t *testing.T) {
	f := newTournamentFixture()
	ctx := context.Background()

	created, err := f.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	// An operator finalizes the tournament while a descriptive edit is
	// holding its snapshot of the row.
	f.repo.afterGetForUpdate = func(id int) {
		f.repo.afterGetForUpdate = nil
		require.NoError(t, f.repo.UpdateStatus(ctx, id, models.StatusUpcoming, models.StatusCompleted))
	}

	_, err = f.svc.Update(ctx, created.ID, UpdateTournamentInput{
		Rules: ptr("room password rotates every match"),
	})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	// The terminal status survives the stale edit.
	assert.Equal(t, models.StatusCompleted, f.repo.status(created.ID))
}

func TestUpdateTournamentCannotShrinkBelowRoster(t *testing.T) {
	f := newTournamentFixture()
	ctx := context.Background()

	input := validCreateInput()
	input.EntryFee = 0
	input.MaxParticipants = 3
	created, err := f.svc.Create(ctx, input)
	require.NoError(t, err)

	for userID := 1; userID <= 2; userID++ {
		_, err := f.svc.Join(ctx, created.ID, userID)
		require.NoError(t, err)
	}

	_, err = f.svc.Update(ctx, created.ID, UpdateTournamentInput{MaxParticipants: ptr(1)})
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	// Shrinking to exactly the roster size is fine.
	updated, err := f.svc.Update(ctx, created.ID, UpdateTournamentInput{MaxParticipants: ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MaxParticipants)
}

func TestAttachResult(t *testing.T) {
	f := newTournamentFixture()
	ctx := context.Background()

	created, err := f.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	_, err = f.svc.AttachResult(ctx, created.ID, "   ")
	assert.ErrorIs(t, err, ErrValidationFailed)

	withResult, err := f.svc.AttachResult(ctx, created.ID, "https://res.example.com/standings-v1.png")
	require.NoError(t, err)
	require.NotNil(t, withResult.ResultURL)
	assert.Equal(t, "https://res.example.com/standings-v1.png", *withResult.ResultURL)

	// Attaching again overwrites, it never duplicates or fails.
	replaced, err := f.svc.AttachResult(ctx, created.ID, "https://res.example.com/standings-v2.png")
	require.NoError(t, err)
	require.NotNil(t, replaced.ResultURL)
	assert.Equal(t, "https://res.example.com/standings-v2.png", *replaced.ResultURL)

	_, err = f.svc.AttachResult(ctx, 999, "https://res.example.com/standings.png")
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestUploadResultReplacesPreviousObject(t *testing.T) {
	f := newTournamentFixture()
	ctx := context.Background()

	created, err := f.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	_, err = f.svc.UploadResult(ctx, created.ID, "application/pdf", bytes.NewReader([]byte("nope")))
	assert.ErrorIs(t, err, ErrValidationFailed)

	first, err := f.svc.UploadResult(ctx, created.ID, "image/png", bytes.NewReader([]byte("standings-1")))
	require.NoError(t, err)
	require.NotNil(t, first.ResultKey)
	firstKey := *first.ResultKey

	second, err := f.svc.UploadResult(ctx, created.ID, "image/png", bytes.NewReader([]byte("standings-2")))
	require.NoError(t, err)
	require.NotNil(t, second.ResultKey)
	assert.NotEqual(t, firstKey, *second.ResultKey)
	assert.Contains(t, f.uploader.deleted, firstKey)
	require.NotNil(t, second.ResultURL)
	assert.Equal(t, f.uploader.GetPublicURL(*second.ResultKey), *second.ResultURL)
}

func TestJoinChargesEntryFeeAtomically(t *testing.T) {
	f := newTournamentFixture()
	ctx := context.Background()

	input := validCreateInput()
	input.EntryFee = 5000
	created, err := f.svc.Create(ctx, input)
	require.NoError(t, err)

	f.wallet.setBalance(42, 12000)

	joined, err := f.svc.Join(ctx, created.ID, 42)
	require.NoError(t, err)
	assert.Contains(t, joined.Participants, 42)

	balance, err := f.wallet.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), balance)

	entries, err := f.wallet.ListEntries(ctx, 42)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ReasonEntryFee, entries[0].Reason)
	assert.Equal(t, int64(-5000), entries[0].Amount)

	// Joining twice neither duplicates the roster entry nor double
	// charges.
	_, err = f.svc.Join(ctx, created.ID, 42)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	balance, err = f.wallet.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), balance)
}

func TestJoinRejectsInsufficientFunds(t *testing.T) {
	f := newTournamentFixture()
	ctx := context.Background()

	input := validCreateInput()
	input.EntryFee = 5000
	created, err := f.svc.Create(ctx, input)
	require.NoError(t, err)

	f.wallet.setBalance(7, 4999)

	_, err = f.svc.Join(ctx, created.ID, 7)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	balance, err := f.wallet.GetBalance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4999), balance)
}

func TestJoinEnforcesCapacity(t *testing.T) {
	f := newTournamentFixture()
	ctx := context.Background()

	input := validCreateInput()
	input.EntryFee = 0
	input.MaxParticipants = 2
	created, err := f.svc.Create(ctx, input)
	require.NoError(t, err)

	_, err = f.svc.Join(ctx, created.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, created.ID, 2)
	require.NoError(t, err)

	_, err = f.svc.Join(ctx, created.ID, 3)
	assert.ErrorIs(t, err, ErrTournamentFull)

	joined, err := f.svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, joined.Participants, 2)
}

func TestJoinOnlyWhileUpcoming(t *testing.T) {
	f := newTournamentFixture()
	ctx := context.Background()

	input := validCreateInput()
	input.EntryFee = 0
	input.ScheduledAt = time.Now().Add(-time.Hour)
	created, err := f.svc.Create(ctx, input)
	require.NoError(t, err)
	require.Equal(t, models.StatusLive, created.Status)

	_, err = f.svc.Join(ctx, created.ID, 1)
	assert.ErrorIs(t, err, ErrRegistrationClosed)

	_, err = f.svc.Join(ctx, 999, 1)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestDeleteTournamentRemovesStoredResult(t *testing.T) {
	f := newTournamentFixture()
	ctx := context.Background()

	created, err := f.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	uploaded, err := f.svc.UploadResult(ctx, created.ID, "image/jpeg", bytes.NewReader([]byte("standings")))
	require.NoError(t, err)
	require.NotNil(t, uploaded.ResultKey)

	require.NoError(t, f.svc.Delete(ctx, created.ID))
	assert.Contains(t, f.uploader.deleted, *uploaded.ResultKey)

	_, err = f.svc.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrTournamentNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, 999), ErrTournamentNotFound)
}
