package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
)

type OutcomeResponse struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Odds decimal.Decimal `json:"odds"`
}

type ResolutionResponse struct {
	WinningOutcomeID   string    `json:"winningOutcomeId"`
	WinningOutcomeName string    `json:"winningOutcomeName"`
	ResolvedAt         time.Time `json:"resolvedAt"`
}

type EventResponse struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Date       time.Time           `json:"date"`
	Category   string              `json:"category"`
	Outcomes   []OutcomeResponse   `json:"outcomes"`
	Status     string              `json:"status"` // open | resolved
	Live       bool                `json:"live"`
	CreatedBy  string              `json:"createdBy,omitempty"`
	Resolution *ResolutionResponse `json:"resolution,omitempty"`
}

type BetResponse struct {
	ID            string          `json:"id"`
	EventID       string          `json:"eventId"`
	EventName     string          `json:"eventName"`
	EventCategory string          `json:"eventCategory"`
	EventDate     time.Time       `json:"eventDate"`
	OutcomeID     string          `json:"outcomeId"`
	OutcomeName   string          `json:"outcomeName"`
	Odds          decimal.Decimal `json:"odds"`
	Amount        decimal.Decimal `json:"amount"`
	Payout        decimal.Decimal `json:"payout"`
	PlacedAt      time.Time       `json:"placedAt"`
	Status        string          `json:"status"`
	SettledAt     *time.Time      `json:"settledAt,omitempty"`
}

type PlaceBetResponse struct {
	Success bool            `json:"success"`
	Bet     BetResponse     `json:"bet"`
	Balance decimal.Decimal `json:"balance"`
}

type UserResponse struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func Event(ev *repo.Event, live bool) EventResponse {
	out := EventResponse{
		ID:        ev.ID,
		Name:      ev.Name,
		Date:      ev.Date,
		Category:  ev.Category,
		Outcomes:  make([]OutcomeResponse, 0, len(ev.Outcomes)),
		Status:    "open",
		Live:      live && !ev.Resolved(),
		CreatedBy: ev.CreatedBy,
	}
	for _, o := range ev.Outcomes {
		out.Outcomes = append(out.Outcomes, OutcomeResponse{ID: o.ID, Name: o.Name, Odds: o.Odds})
	}
	if ev.Resolved() {
		out.Status = "resolved"
		out.Resolution = &ResolutionResponse{ResolvedAt: *ev.ResolvedAt}
		if ev.WinningOutcomeID != nil {
			out.Resolution.WinningOutcomeID = *ev.WinningOutcomeID
		}
		if ev.WinningOutcomeName != nil {
			out.Resolution.WinningOutcomeName = *ev.WinningOutcomeName
		}
	}
	return out
}

func Bet(b *repo.Bet) BetResponse {
	return BetResponse{
		ID:            b.ID,
		EventID:       b.EventID,
		EventName:     b.EventName,
		EventCategory: b.EventCategory,
		EventDate:     b.EventDate,
		OutcomeID:     b.OutcomeID,
		OutcomeName:   b.OutcomeName,
		Odds:          b.Odds,
		Amount:        b.Stake,
		Payout:        b.Payout,
		PlacedAt:      b.PlacedAt,
		Status:        b.Status,
		SettledAt:     b.SettledAt,
	}
}

func User(u *repo.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Balance:   u.Balance,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type LedgerEntryResponse struct {
	Operation     string          `json:"operation"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
	BetID         *string         `json:"betId,omitempty"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func LedgerEntry(e *repo.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		Operation:     e.Operation,
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		BetID:         e.RelatedBetID,
		Description:   e.Description,
		CreatedAt:     e.CreatedAt,
	}
}
