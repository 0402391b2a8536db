package models

import "time"

// TournamentStatus lifecycle states, matching the ENUM in the DB.
type TournamentStatus string

const (
	StatusUpcoming  TournamentStatus = "upcoming"
	StatusLive      TournamentStatus = "live"
	StatusCompleted TournamentStatus = "completed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s TournamentStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusLive, StatusCompleted:
		return true
	}
	return false
}

// GameCategory values offered by the admin console. "Other" carries an
// operator-typed game name, so free text in GameCategory is accepted too.
const (
	CategoryPUBG     = "PUBG"
	CategoryDeadShot = "Dead Shot"
	CategoryBallPool = "8 Ball Pool"
	CategoryCOD      = "Call of Duty"
	CategoryFreeFire = "Free Fire"
	CategoryOther    = "Other"
)

// Tournament is a scheduled paid competition. Money fields are paisa
// (integer minor units); the UI formats them as rupees.
type Tournament struct {
	ID              int              `json:"id" db:"id"`
	GameName        string           `json:"game_name" db:"game_name"`
	GameCategory    string           `json:"game_category" db:"game_category"`
	ScheduledAt     time.Time        `json:"scheduled_at" db:"scheduled_at"`
	EntryFee        int64            `json:"entry_fee" db:"entry_fee"`
	PrizePool       int64            `json:"prize_pool" db:"prize_pool"`
	MatchDetails    string           `json:"match_details" db:"match_details"`
	Rules           string           `json:"rules" db:"rules"`
	MaxParticipants int              `json:"max_participants" db:"max_participants"`
	Status          TournamentStatus `json:"status" db:"status"`
	ResultKey       *string          `json:"-" db:"result_key"`
	ResultURL       *string          `json:"result_url,omitempty" db:"-"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`

	// Roster, loaded from tournament_participants. Never written through
	// the generic update path.
	Participants []int `json:"participants" db:"-"`
}
