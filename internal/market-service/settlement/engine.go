package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
	"github.com/radieske/prediction-market-poc/internal/shared/outbox"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrAlreadyResolved = errors.New("event already resolved")
	ErrInvalidOutcome  = errors.New("outcome does not belong to event")
)

// Engine aplica a resolução de um evento a todas as apostas dele, numa única transação
// Callbacks de métricas são opcionais
type Engine struct {
	Store *repo.Store
	Log   *zap.Logger
	Topic string // tópico da mensagem event.resolved
	Now   func() time.Time

	OnResolved func(bets int, payout decimal.Decimal, took time.Duration)
	OnError    func(reason string)
}

func NewEngine(store *repo.Store, log *zap.Logger, topic string) *Engine {
	return &Engine{Store: store, Log: log, Topic: topic, Now: time.Now}
}

type summary struct {
	won, lost int
	payout    decimal.Decimal
}

// Resolve marca as apostas no resultado vencedor como won (crédito = stake × odd do snapshot),
// as demais como lost, e grava a resolução no evento. Tudo ou nada.
func (e *Engine) Resolve(ctx context.Context, eventID, outcomeID string) error {
	start := time.Now()
	var sum summary

	err := e.Store.Tx(ctx, func(tx *gorm.DB) error {
		var err error
		sum, err = e.resolveTx(tx, eventID, outcomeID)
		return err
	})
	if err != nil {
		e.fail(err, eventID)
		return err
	}

	e.Log.Info("event resolved",
		zap.String("event_id", eventID),
		zap.String("outcome_id", outcomeID),
		zap.Int("bets_won", sum.won),
		zap.Int("bets_lost", sum.lost),
		zap.String("total_payout", sum.payout.StringFixed(2)),
	)
	if e.OnResolved != nil {
		e.OnResolved(sum.won+sum.lost, sum.payout, time.Since(start))
	}
	return nil
}

func (e *Engine) resolveTx(tx *gorm.DB, eventID, outcomeID string) (summary, error) {
	var sum summary

	// lock exclusivo no evento: outra resolução ou aposta concorrente espera aqui
	ev, err := repo.LockEvent(tx, eventID, "UPDATE")
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return sum, ErrEventNotFound
		}
		return sum, err
	}
	if ev.Resolved() {
		return sum, ErrAlreadyResolved
	}
	winner, ok := ev.Outcome(outcomeID)
	if !ok {
		return sum, ErrInvalidOutcome
	}

	var bets []repo.Bet
	if err := tx.Where("event_id = ? AND status = ?", eventID, repo.BetPending).
		Order("placed_at ASC, id ASC").Find(&bets).Error; err != nil {
		return sum, fmt.Errorf("load bets: %w", err)
	}

	now := e.now()
	payouts := make(map[string]decimal.Decimal) // userID -> total
	userIDs := make([]string, 0, len(bets))

	for i := range bets {
		b := &bets[i]
		if b.OutcomeID == outcomeID {
			b.Status = repo.BetWon
			b.Payout = Payout(b.Stake, b.Odds)
			sum.won++
			sum.payout = sum.payout.Add(b.Payout)
			if _, seen := payouts[b.UserID]; !seen {
				userIDs = append(userIDs, b.UserID)
			}
			payouts[b.UserID] = payouts[b.UserID].Add(b.Payout)
		} else {
			b.Status = repo.BetLost
			b.Payout = decimal.Zero
			sum.lost++
		}
		b.SettledAt = &now

		res := tx.Model(&repo.Bet{}).
			Where("id = ? AND status = ?", b.ID, repo.BetPending).
			Updates(map[string]any{"status": b.Status, "payout": b.Payout, "settled_at": now, "updated_at": now})
		if res.Error != nil {
			return sum, fmt.Errorf("settle bet %s: %w", b.ID, res.Error)
		}
		if res.RowsAffected != 1 {
			return sum, fmt.Errorf("settle bet %s: concurrent update", b.ID)
		}
	}

	// créditos: usuários travados em ordem de id, uma linha de ledger por aposta vencedora
	users, err := repo.LockUsers(tx, userIDs)
	if err != nil {
		return sum, err
	}
	for i := range bets {
		b := &bets[i]
		if b.Status != repo.BetWon {
			continue
		}
		betID := b.ID
		if err := repo.ApplyBalance(tx, users[b.UserID], b.Payout, repo.OpPayoutCredit, &betID,
			"payout:"+eventID); err != nil {
			return sum, err
		}
	}

	res := tx.Model(&repo.Event{}).
		Where("id = ? AND resolved_at IS NULL", eventID).
		Updates(map[string]any{
			"winning_outcome_id":   winner.ID,
			"winning_outcome_name": winner.Name,
			"resolved_at":          now,
			"updated_at":           now,
		})
	if res.Error != nil {
		return sum, fmt.Errorf("write resolution: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return sum, ErrAlreadyResolved
	}

	_, err = outbox.Enqueue(tx, e.Topic, events.TypeEventResolved, eventID, events.EventResolved{
		EventID:            eventID,
		WinningOutcomeID:   winner.ID,
		WinningOutcomeName: winner.Name,
		BetsWon:            sum.won,
		BetsLost:           sum.lost,
		TotalPayout:        sum.payout,
		ResolvedAt:         now,
	})
	if err != nil {
		return sum, err
	}
	return sum, nil
}

// Payout = stake × odd, arredondado para centavos
func Payout(stake, odds decimal.Decimal) decimal.Decimal {
	return stake.Mul(odds).Round(2)
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Engine) fail(err error, eventID string) {
	reason := "internal"
	switch {
	case errors.Is(err, ErrEventNotFound):
		reason = "not_found"
	case errors.Is(err, ErrAlreadyResolved):
		reason = "already_resolved"
	case errors.Is(err, ErrInvalidOutcome):
		reason = "invalid_outcome"
	}
	if reason == "internal" {
		e.Log.Error("resolve failed, rolled back", zap.String("event_id", eventID), zap.Error(err))
	} else {
		e.Log.Info("resolve rejected", zap.String("event_id", eventID), zap.String("reason", reason))
	}
	if e.OnError != nil {
		e.OnError(reason)
	}
}
