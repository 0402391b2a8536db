package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/khelarena/arena-admin/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentStatusConflict = errors.New("tournament status changed concurrently")
	ErrParticipantConflict      = errors.New("user already registered for this tournament")
)

// ScheduleRow is the lightweight projection the lifecycle reconciler works
// on; it avoids dragging rosters and text fields through every pass.
type ScheduleRow struct {
	ID          int
	ScheduledAt time.Time
	Status      models.TournamentStatus
}

type TournamentRepository interface {
	Create(ctx context.Context, t *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context) ([]models.Tournament, error)
	ListSchedules(ctx context.Context) ([]ScheduleRow, error)
	// Update rewrites the record, guarded by the status the caller read:
	// a row whose status moved since that read is reported as
	// ErrTournamentStatusConflict instead of being overwritten.
	Update(ctx context.Context, exec SQLExecutor, t *models.Tournament, expectedStatus models.TournamentStatus) error
	// UpdateStatus transitions id from the expected current status to the
	// new one. A row that is no longer in `from` is reported as
	// ErrTournamentStatusConflict so the caller can skip or retry.
	UpdateStatus(ctx context.Context, id int, from, to models.TournamentStatus) error
	UpdateResultKey(ctx context.Context, id int, resultKey *string) error
	Delete(ctx context.Context, id int) error
	AddParticipant(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error
	CountParticipants(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	ListParticipants(ctx context.Context, tournamentID int) ([]int, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, game_name, game_category, scheduled_at, entry_fee, prize_pool,
	match_details, rules, max_participants, status, result_key,
	created_at, updated_at`

func scanTournament(row interface{ Scan(dest ...interface{}) error }, t *models.Tournament) error {
	return row.Scan(
		&t.ID, &t.GameName, &t.GameCategory, &t.ScheduledAt, &t.EntryFee, &t.PrizePool,
		&t.MatchDetails, &t.Rules, &t.MaxParticipants, &t.Status, &t.ResultKey,
		&t.CreatedAt, &t.UpdatedAt,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (
			game_name, game_category, scheduled_at, entry_fee, prize_pool,
			match_details, rules, max_participants, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		t.GameName, t.GameCategory, t.ScheduledAt, t.EntryFee, t.PrizePool,
		t.MatchDetails, t.Rules, t.MaxParticipants, t.Status,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	t.Participants = []int{}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	err := scanTournament(r.db.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}

	t.Participants, err = r.ListParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetForUpdate locks the tournament row for the duration of the caller's
// transaction. The roster is intentionally not loaded here.
func (r *postgresTournamentRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`

	t := &models.Tournament{}
	err := scanTournament(executor.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to lock tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	index := make(map[int]int)
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, scanErr
		}
		t.Participants = []int{}
		index[t.ID] = len(tournaments)
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	// Single pass over the roster table instead of a query per tournament.
	rosterRows, err := r.db.QueryContext(ctx,
		`SELECT tournament_id, user_id FROM tournament_participants ORDER BY joined_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rosters: %w", err)
	}
	defer rosterRows.Close()

	for rosterRows.Next() {
		var tournamentID, userID int
		if scanErr := rosterRows.Scan(&tournamentID, &userID); scanErr != nil {
			return nil, scanErr
		}
		if i, ok := index[tournamentID]; ok {
			tournaments[i].Participants = append(tournaments[i].Participants, userID)
		}
	}
	if err = rosterRows.Err(); err != nil {
		return nil, err
	}

	return tournaments, nil
}

func (r *postgresTournamentRepository) ListSchedules(ctx context.Context) ([]ScheduleRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, scheduled_at, status FROM tournaments`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournament schedules: %w", err)
	}
	defer rows.Close()

	var schedules []ScheduleRow
	for rows.Next() {
		var s ScheduleRow
		if scanErr := rows.Scan(&s.ID, &s.ScheduledAt, &s.Status); scanErr != nil {
			return nil, scanErr
		}
		schedules = append(schedules, s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *postgresTournamentRepository) Update(ctx context.Context, exec SQLExecutor, t *models.Tournament, expectedStatus models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments SET
			game_name = $1,
			game_category = $2,
			scheduled_at = $3,
			entry_fee = $4,
			prize_pool = $5,
			match_details = $6,
			rules = $7,
			max_participants = $8,
			status = $9,
			updated_at = now()
		WHERE id = $10 AND status = $11
		RETURNING updated_at`

	err := executor.QueryRowContext(ctx, query,
		t.GameName, t.GameCategory, t.ScheduledAt, t.EntryFee, t.PrizePool,
		t.MatchDetails, t.Rules, t.MaxParticipants, t.Status,
		t.ID, expectedStatus,
	).Scan(&t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a vanished row from a concurrent status change.
			var exists bool
			if checkErr := executor.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM tournaments WHERE id = $1)`, t.ID).Scan(&exists); checkErr != nil {
				return fmt.Errorf("failed to check tournament %d: %w", t.ID, checkErr)
			}
			if !exists {
				return ErrTournamentNotFound
			}
			return ErrTournamentStatusConflict
		}
		return fmt.Errorf("failed to update tournament %d: %w", t.ID, err)
	}
	return nil
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, id int, from, to models.TournamentStatus) error {
	query := `UPDATE tournaments SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update status of tournament %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish a vanished row from a concurrent status change.
		var exists bool
		if checkErr := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM tournaments WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
			return fmt.Errorf("failed to check tournament %d: %w", id, checkErr)
		}
		if !exists {
			return ErrTournamentNotFound
		}
		return ErrTournamentStatusConflict
	}
	return nil
}

func (r *postgresTournamentRepository) UpdateResultKey(ctx context.Context, id int, resultKey *string) error {
	query := `UPDATE tournaments SET result_key = $1, updated_at = now() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, resultKey, id)
	if err != nil {
		return fmt.Errorf("failed to update result key of tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	// Roster rows go with the tournament (ON DELETE CASCADE).
	result, err := r.db.ExecContext(ctx, `DELETE FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) AddParticipant(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error {
	executor := r.getExecutor(exec)
	query := `INSERT INTO tournament_participants (tournament_id, user_id) VALUES ($1, $2)`
	_, err := executor.ExecContext(ctx, query, tournamentID, userID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505":
				return ErrParticipantConflict
			case "23503":
				return ErrTournamentNotFound
			}
		}
		return fmt.Errorf("failed to add participant %d to tournament %d: %w", userID, tournamentID, err)
	}
	return nil
}

func (r *postgresTournamentRepository) CountParticipants(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tournament_participants WHERE tournament_id = $1`, tournamentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants of tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresTournamentRepository) ListParticipants(ctx context.Context, tournamentID int) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM tournament_participants WHERE tournament_id = $1 ORDER BY joined_at`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants of tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]int, 0)
	for rows.Next() {
		var userID int
		if scanErr := rows.Scan(&userID); scanErr != nil {
			return nil, scanErr
		}
		participants = append(participants, userID)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return participants, nil
}
