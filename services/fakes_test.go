package services

import (
	"context"
	"database/sql"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/khelarena/arena-admin/models"
	"github.com/khelarena/arena-admin/repositories"
	"github.com/khelarena/arena-admin/storage"
)

func ptr[T any](v T) *T { return &v }

var (
	_ repositories.TournamentRepository = (*memoryTournamentRepo)(nil)
	_ repositories.WalletRepository     = (*memoryWalletRepo)(nil)
	_ storage.FileUploader              = (*memoryUploader)(nil)
	_ StatusNotifier                    = (*recordingNotifier)(nil)
	_ Tx                                = (*memoryTx)(nil)
)

// memoryTx satisfies Tx for the in-memory repositories, which never touch
// the executor they are handed.
type memoryTx struct {
	committed  bool
	rolledBack bool
}

func (t *memoryTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}

func (t *memoryTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}

func (t *memoryTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func (t *memoryTx) Commit() error {
	t.committed = true
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.committed {
		return sql.ErrTxDone
	}
	t.rolledBack = true
	return nil
}

func memoryBeginTx() BeginTxFunc {
	return func(ctx context.Context) (Tx, error) {
		return &memoryTx{}, nil
	}
}

type memoryTournamentRepo struct {
	mu           sync.Mutex
	nextID       int
	tournaments  map[int]*models.Tournament
	participants map[int][]int

	listSchedulesErr error
	updateStatusErrs map[int]error

	// afterGetForUpdate runs after GetForUpdate returns its snapshot,
	// outside the repo lock. Lets tests interleave a concurrent write
	// between a read and the write that follows it.
	afterGetForUpdate func(id int)
}

func newMemoryTournamentRepo() *memoryTournamentRepo {
	return &memoryTournamentRepo{
		tournaments:      make(map[int]*models.Tournament),
		participants:     make(map[int][]int),
		updateStatusErrs: make(map[int]error),
	}
}

func cloneTournament(t *models.Tournament) *models.Tournament {
	cp := *t
	if t.ResultKey != nil {
		cp.ResultKey = ptr(*t.ResultKey)
	}
	cp.Participants = nil
	return &cp
}

func (r *memoryTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	r.tournaments[t.ID] = cloneTournament(t)
	return nil
}

func (r *memoryTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := cloneTournament(t)
	cp.Participants = append([]int(nil), r.participants[id]...)
	return cp, nil
}

func (r *memoryTournamentRepo) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.mu.Lock()
	t, ok := r.tournaments[id]
	if !ok {
		r.mu.Unlock()
		return nil, repositories.ErrTournamentNotFound
	}
	cp := cloneTournament(t)
	r.mu.Unlock()
	if r.afterGetForUpdate != nil {
		r.afterGetForUpdate(id)
	}
	return cp, nil
}

func (r *memoryTournamentRepo) List(ctx context.Context) ([]models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Tournament, 0, len(r.tournaments))
	for id, t := range r.tournaments {
		cp := cloneTournament(t)
		cp.Participants = append([]int(nil), r.participants[id]...)
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryTournamentRepo) ListSchedules(ctx context.Context) ([]repositories.ScheduleRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listSchedulesErr != nil {
		return nil, r.listSchedulesErr
	}
	rows := make([]repositories.ScheduleRow, 0, len(r.tournaments))
	for _, t := range r.tournaments {
		rows = append(rows, repositories.ScheduleRow{ID: t.ID, ScheduledAt: t.ScheduledAt, Status: t.Status})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (r *memoryTournamentRepo) Update(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, expectedStatus models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tournaments[t.ID]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if stored.Status != expectedStatus {
		return repositories.ErrTournamentStatusConflict
	}
	t.UpdatedAt = time.Now()
	r.tournaments[t.ID] = cloneTournament(t)
	return nil
}

func (r *memoryTournamentRepo) UpdateStatus(ctx context.Context, id int, from, to models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updateStatusErrs[id]; err != nil {
		return err
	}
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != from {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return nil
}

func (r *memoryTournamentRepo) UpdateResultKey(ctx context.Context, id int, resultKey *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if resultKey != nil {
		t.ResultKey = ptr(*resultKey)
	} else {
		t.ResultKey = nil
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (r *memoryTournamentRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(r.tournaments, id)
	delete(r.participants, id)
	return nil
}

func (r *memoryTournamentRepo) AddParticipant(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[tournamentID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	for _, existing := range r.participants[tournamentID] {
		if existing == userID {
			return repositories.ErrParticipantConflict
		}
	}
	r.participants[tournamentID] = append(r.participants[tournamentID], userID)
	return nil
}

func (r *memoryTournamentRepo) CountParticipants(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants[tournamentID]), nil
}

func (r *memoryTournamentRepo) ListParticipants(ctx context.Context, tournamentID int) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := append([]int(nil), r.participants[tournamentID]...)
	sort.Ints(users)
	return users, nil
}

func (r *memoryTournamentRepo) status(id int) models.TournamentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tournaments[id].Status
}

type memoryWalletRepo struct {
	mu       sync.Mutex
	nextID   int
	balances map[int]int64
	entries  []models.LedgerEntry
	byKey    map[string]models.LedgerEntry

	// creditErrs is drained one error per ApplyCredit call; a nil slot
	// lets that call through.
	creditErrs []error
}

func newMemoryWalletRepo() *memoryWalletRepo {
	return &memoryWalletRepo{
		balances: make(map[int]int64),
		byKey:    make(map[string]models.LedgerEntry),
	}
}

func (r *memoryWalletRepo) applyDelta(userID int, delta int64, reason, key string) (int64, bool, error) {
	if entry, ok := r.byKey[key]; ok {
		if entry.UserID != userID {
			return 0, false, repositories.ErrWalletKeyReused
		}
		return entry.Balance, false, nil
	}
	newBalance := r.balances[userID] + delta
	if newBalance < 0 {
		return 0, false, repositories.ErrWalletInsufficientFunds
	}
	r.nextID++
	entry := models.LedgerEntry{
		ID:             r.nextID,
		UserID:         userID,
		Amount:         delta,
		Reason:         reason,
		IdempotencyKey: key,
		Balance:        newBalance,
		CreatedAt:      time.Now(),
	}
	r.entries = append(r.entries, entry)
	r.byKey[key] = entry
	r.balances[userID] = newBalance
	return newBalance, true, nil
}

func (r *memoryWalletRepo) ApplyCredit(ctx context.Context, userID int, amount int64, reason, key string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.creditErrs) > 0 {
		err := r.creditErrs[0]
		r.creditErrs = r.creditErrs[1:]
		if err != nil {
			return 0, false, err
		}
	}
	return r.applyDelta(userID, amount, reason, key)
}

func (r *memoryWalletRepo) Debit(ctx context.Context, exec repositories.SQLExecutor, userID int, amount int64, reason, key string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	balance, _, err := r.applyDelta(userID, -amount, reason, key)
	return balance, err
}

func (r *memoryWalletRepo) GetBalance(ctx context.Context, userID int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[userID], nil
}

func (r *memoryWalletRepo) ListEntries(ctx context.Context, userID int) ([]models.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LedgerEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].UserID == userID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *memoryWalletRepo) setBalance(userID int, balance int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] = balance
}

type statusChange struct {
	tournamentID int
	from         models.TournamentStatus
	to           models.TournamentStatus
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []statusChange
}

func (n *recordingNotifier) NotifyStatusChange(tournamentID int, from, to models.TournamentStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, statusChange{tournamentID: tournamentID, from: from, to: to})
}

func (n *recordingNotifier) recorded() []statusChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]statusChange(nil), n.changes...)
}

type memoryUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemoryUploader() *memoryUploader {
	return &memoryUploader{objects: make(map[string][]byte)}
}

func (u *memoryUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[key] = content
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *memoryUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	u.deleted = append(u.deleted, key)
	return nil
}

func (u *memoryUploader) GetPublicURL(key string) string {
	return "https://media.test/" + key
}
