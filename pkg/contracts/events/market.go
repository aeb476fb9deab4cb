package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventCreated struct {
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Date      time.Time `json:"date"`
	CreatedBy string    `json:"created_by"`
}

type EventDeleted struct {
	EventID   string `json:"event_id"`
	DeletedBy string `json:"deleted_by"`
}

// Evento emitido pelo motor de liquidação após resolver um evento.
type EventResolved struct {
	EventID            string          `json:"event_id"`
	WinningOutcomeID   string          `json:"winning_outcome_id"`
	WinningOutcomeName string          `json:"winning_outcome_name"`
	BetsWon            int             `json:"bets_won"`
	BetsLost           int             `json:"bets_lost"`
	TotalPayout        decimal.Decimal `json:"total_payout"`
	ResolvedAt         time.Time       `json:"resolved_at"`
}

type BetPlaced struct {
	BetID     string          `json:"bet_id"`
	UserID    string          `json:"user_id"`
	EventID   string          `json:"event_id"`
	OutcomeID string          `json:"outcome_id"`
	Stake     decimal.Decimal `json:"stake"`
	Odds      decimal.Decimal `json:"odds"`
	PlacedAt  time.Time       `json:"placed_at"`
}
