package services

import (
	"time"

	"github.com/khelarena/arena-admin/models"
)

// EvaluateStatus derives the lifecycle status of a tournament from its
// schedule. completed is terminal: once an operator finalizes a
// tournament, no amount of reconciliation moves it back. There is no
// automatic live -> completed transition because match duration is not
// tracked; only an operator ends a tournament.
//
// Pure function, the single authority for the transition rule.
func EvaluateStatus(scheduledAt, now time.Time, current models.TournamentStatus) models.TournamentStatus {
	if current == models.StatusCompleted {
		return models.StatusCompleted
	}
	if now.Before(scheduledAt) {
		return models.StatusUpcoming
	}
	return models.StatusLive
}
