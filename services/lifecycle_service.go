package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/khelarena/arena-admin/repositories"
	"golang.org/x/sync/errgroup"
)

// reconcileParallelism bounds concurrent status writes during a pass.
const reconcileParallelism = 8

// ReconcileFailure records one tournament whose status write failed
// during a reconciliation pass.
type ReconcileFailure struct {
	TournamentID int    `json:"tournament_id"`
	Err          string `json:"error"`
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked  int                `json:"checked"`
	Updated  int                `json:"updated"`
	Skipped  int                `json:"skipped"`
	Failures []ReconcileFailure `json:"failures,omitempty"`
}

// LifecycleService drives tournament statuses toward what the evaluator
// says they should be. It is invoked both from a background ticker and
// synchronously before listings.
type LifecycleService interface {
	ReconcileAll(ctx context.Context, now time.Time) (ReconcileReport, error)
}

type lifecycleService struct {
	repo     repositories.TournamentRepository
	notifier StatusNotifier
	logger   *slog.Logger
}

func NewLifecycleService(repo repositories.TournamentRepository, notifier StatusNotifier, logger *slog.Logger) LifecycleService {
	return &lifecycleService{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// ReconcileAll recomputes every tournament's status and persists only the
// records that actually changed. One record's failure never aborts the
// pass: failures are collected into the report. The returned error is
// non-nil only when the pass itself could not run (listing failed or the
// context was cancelled); records persisted before a cancellation stay
// persisted, the next pass picks up the rest.
func (s *lifecycleService) ReconcileAll(ctx context.Context, now time.Time) (ReconcileReport, error) {
	report := ReconcileReport{}

	schedules, err := s.repo.ListSchedules(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load tournament schedules: %w", err)
	}
	report.Checked = len(schedules)

	type outcome struct {
		updated bool
		failure *ReconcileFailure
	}
	outcomes := make([]outcome, len(schedules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileParallelism)

	for i, row := range schedules {
		next := EvaluateStatus(row.ScheduledAt, now, row.Status)
		if next == row.Status {
			report.Skipped++
			continue
		}

		i, row, next := i, row, next
		g.Go(func() error {
			// Stop scheduling writes after cancellation; what already
			// committed stays committed.
			if err := gctx.Err(); err != nil {
				return err
			}

			err := s.repo.UpdateStatus(gctx, row.ID, row.Status, next)
			switch {
			case err == nil:
				outcomes[i] = outcome{updated: true}
				if s.notifier != nil {
					s.notifier.NotifyStatusChange(row.ID, row.Status, next)
				}
			case errors.Is(err, repositories.ErrTournamentStatusConflict),
				errors.Is(err, repositories.ErrTournamentNotFound):
				// Someone else moved or removed the record mid-pass; the
				// stored state is authoritative, nothing to repair here.
				if s.logger != nil {
					s.logger.DebugContext(gctx, "reconcile skipped tournament",
						slog.Int("tournament_id", row.ID), slog.Any("reason", err))
				}
			default:
				outcomes[i] = outcome{failure: &ReconcileFailure{TournamentID: row.ID, Err: err.Error()}}
				if s.logger != nil {
					s.logger.ErrorContext(gctx, "reconcile failed to update tournament",
						slog.Int("tournament_id", row.ID), slog.Any("error", err))
				}
			}
			return nil
		})
	}

	waitErr := g.Wait()

	for _, o := range outcomes {
		if o.updated {
			report.Updated++
		}
		if o.failure != nil {
			report.Failures = append(report.Failures, *o.failure)
		}
	}

	if waitErr != nil {
		return report, waitErr
	}
	return report, nil
}
