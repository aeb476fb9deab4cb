package betting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
	"github.com/radieske/prediction-market-poc/internal/shared/outbox"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrEventNotFound        = errors.New("event not found")
	ErrOutcomeNotFound      = errors.New("outcome not found")
	ErrEventAlreadyResolved = errors.New("event already resolved")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidStake         = errors.New("stake must be positive")
	ErrOddsChanged          = errors.New("odds changed")
)

type PlaceInput struct {
	UserID    string
	EventID   string
	OutcomeID string
	Stake     decimal.Decimal

	// odd que o cliente viu; nil = aceita a odd atual
	ExpectedOdds *decimal.Decimal
}

type Result struct {
	Bet     repo.Bet
	Balance decimal.Decimal
}

// Placer cria a aposta pendente e debita o saldo na mesma transação
type Placer struct {
	Store *repo.Store
	Log   *zap.Logger
	Topic string

	OnPlaced   func(stake decimal.Decimal)
	OnRejected func(reason string)
}

func NewPlacer(store *repo.Store, log *zap.Logger, topic string) *Placer {
	return &Placer{Store: store, Log: log, Topic: topic}
}

func (p *Placer) PlaceBet(ctx context.Context, in PlaceInput) (*Result, error) {
	in.Stake = in.Stake.Round(2)
	if !in.Stake.IsPositive() {
		p.reject(ErrInvalidStake, in)
		return nil, ErrInvalidStake
	}

	var out Result
	err := p.Store.Tx(ctx, func(tx *gorm.DB) error {
		// lock compartilhado: apostas concorrem entre si, mas esperam uma resolução em andamento
		ev, err := repo.LockEvent(tx, in.EventID, "SHARE")
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		if ev.Resolved() {
			return ErrEventAlreadyResolved
		}
		outcome, ok := ev.Outcome(in.OutcomeID)
		if !ok {
			return ErrOutcomeNotFound
		}
		if in.ExpectedOdds != nil && !in.ExpectedOdds.Equal(outcome.Odds) {
			return ErrOddsChanged
		}

		users, err := repo.LockUsers(tx, []string{in.UserID})
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		user := users[in.UserID]
		if user.Balance.LessThan(in.Stake) {
			return ErrInsufficientFunds
		}

		now := time.Now().UTC()
		bet := repo.Bet{
			ID:            uuid.NewString(),
			UserID:        user.ID,
			EventID:       ev.ID,
			EventName:     ev.Name,
			EventCategory: ev.Category,
			EventDate:     ev.Date,
			OutcomeID:     outcome.ID,
			OutcomeName:   outcome.Name,
			Odds:          outcome.Odds,
			Stake:         in.Stake,
			Payout:        decimal.Zero,
			Status:        repo.BetPending,
			PlacedAt:      now,
		}
		if err := tx.Create(&bet).Error; err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}

		betID := bet.ID
		if err := repo.ApplyBalance(tx, user, bet.Stake.Neg(), repo.OpBetDebit, &betID, "bet:"+ev.ID); err != nil {
			if errors.Is(err, repo.ErrInsufficientFunds) {
				return ErrInsufficientFunds
			}
			return err
		}

		_, err = outbox.Enqueue(tx, p.Topic, events.TypeBetPlaced, ev.ID, events.BetPlaced{
			BetID:     bet.ID,
			UserID:    bet.UserID,
			EventID:   bet.EventID,
			OutcomeID: bet.OutcomeID,
			Stake:     bet.Stake,
			Odds:      bet.Odds,
			PlacedAt:  bet.PlacedAt,
		})
		if err != nil {
			return err
		}

		out = Result{Bet: bet, Balance: user.Balance}
		return nil
	})
	if err != nil {
		p.reject(err, in)
		return nil, err
	}

	p.Log.Info("bet placed",
		zap.String("bet_id", out.Bet.ID),
		zap.String("user_id", in.UserID),
		zap.String("event_id", in.EventID),
		zap.String("outcome_id", in.OutcomeID),
		zap.String("stake", out.Bet.Stake.StringFixed(2)),
	)
	if p.OnPlaced != nil {
		p.OnPlaced(out.Bet.Stake)
	}
	return &out, nil
}

func (p *Placer) reject(err error, in PlaceInput) {
	reason := "internal"
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		reason = "insufficient_funds"
	case errors.Is(err, ErrEventNotFound):
		reason = "event_not_found"
	case errors.Is(err, ErrOutcomeNotFound):
		reason = "outcome_not_found"
	case errors.Is(err, ErrEventAlreadyResolved):
		reason = "event_resolved"
	case errors.Is(err, ErrUserNotFound):
		reason = "user_not_found"
	case errors.Is(err, ErrInvalidStake):
		reason = "invalid_stake"
	case errors.Is(err, ErrOddsChanged):
		reason = "odds_changed"
	}
	if reason == "internal" {
		p.Log.Error("place bet failed", zap.String("event_id", in.EventID), zap.Error(err))
	} else {
		p.Log.Debug("bet rejected", zap.String("event_id", in.EventID), zap.String("reason", reason))
	}
	if p.OnRejected != nil {
		p.OnRejected(reason)
	}
}
