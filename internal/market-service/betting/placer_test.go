package betting

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
	"github.com/radieske/prediction-market-poc/internal/market-service/repo/repotest"
	"github.com/radieske/prediction-market-poc/internal/market-service/settlement"
	"github.com/radieske/prediction-market-poc/internal/shared/outbox"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

var stake = repotest.D("100")

func newPlacer(t *testing.T) (*Placer, *repo.Store) {
	store, _ := repotest.NewStore(t)
	return NewPlacer(store, zaptest.NewLogger(t), "market_events"), store
}

func TestPlaceBetDebitsAndSnapshots(t *testing.T) {
	p, store := newPlacer(t)
	db := store.DB(context.Background())
	u := repotest.User(t, db, "ana@example.com", "1000")
	ev := repotest.Event(t, db, "evt-1", "A=2.5", "B=1.8")

	res, err := p.PlaceBet(context.Background(), PlaceInput{UserID: u.ID, EventID: "evt-1", OutcomeID: "outcome-0", Stake: stake})
	require.NoError(t, err)

	assert.True(t, res.Balance.Equal(repotest.D("900")))
	assert.Equal(t, repo.BetPending, res.Bet.Status)
	assert.Equal(t, ev.Name, res.Bet.EventName)
	assert.Equal(t, "Pool", res.Bet.EventCategory)
	assert.Equal(t, "A", res.Bet.OutcomeName)
	assert.True(t, res.Bet.Odds.Equal(repotest.D("2.5")))

	assert.True(t, repotest.Balance(t, db, u.ID).Equal(repotest.D("900")))

	var ledger repo.LedgerEntry
	require.NoError(t, db.Take(&ledger, "user_id = ?", u.ID).Error)
	assert.Equal(t, repo.OpBetDebit, ledger.Operation)
	assert.True(t, ledger.Amount.Equal(stake))
	assert.Equal(t, res.Bet.ID, *ledger.RelatedBetID)

	assert.EqualValues(t, 1, repotest.Count(t, db, &outbox.Message{}, "event_type = ?", events.TypeBetPlaced))
}

func TestPlaceBetInsufficientFunds(t *testing.T) {
	p, store := newPlacer(t)
	db := store.DB(context.Background())
	u := repotest.User(t, db, "ana@example.com", "50")
	repotest.Event(t, db, "evt-1", "A=2", "B=2")

	var reason string
	p.OnRejected = func(r string) { reason = r }

	_, err := p.PlaceBet(context.Background(), PlaceInput{UserID: u.ID, EventID: "evt-1", OutcomeID: "outcome-0", Stake: stake})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "insufficient_funds", reason)

	assert.Zero(t, repotest.Count(t, db, &repo.Bet{}))
	assert.Zero(t, repotest.Count(t, db, &outbox.Message{}))
	assert.True(t, repotest.Balance(t, db, u.ID).Equal(repotest.D("50")))
}

func TestPlaceBetPreconditions(t *testing.T) {
	p, store := newPlacer(t)
	db := store.DB(context.Background())
	u := repotest.User(t, db, "ana@example.com", "1000")
	repotest.Event(t, db, "evt-1", "A=2", "B=2")
	resolved := repotest.Event(t, db, "evt-2", "A=2", "B=2")
	require.NoError(t, settlement.NewEngine(store, zaptest.NewLogger(t), "market_events").
		Resolve(context.Background(), resolved.ID, "outcome-0"))

	odds := repotest.D("3")
	cases := []struct {
		name string
		in   PlaceInput
		want error
	}{
		{"unknown event", PlaceInput{UserID: u.ID, EventID: "evt-x", OutcomeID: "outcome-0", Stake: stake}, ErrEventNotFound},
		{"unknown outcome", PlaceInput{UserID: u.ID, EventID: "evt-1", OutcomeID: "outcome-7", Stake: stake}, ErrOutcomeNotFound},
		{"resolved event", PlaceInput{UserID: u.ID, EventID: "evt-2", OutcomeID: "outcome-0", Stake: stake}, ErrEventAlreadyResolved},
		{"unknown user", PlaceInput{UserID: "nobody", EventID: "evt-1", OutcomeID: "outcome-0", Stake: stake}, ErrUserNotFound},
		{"zero stake", PlaceInput{UserID: u.ID, EventID: "evt-1", OutcomeID: "outcome-0", Stake: decimal.Zero}, ErrInvalidStake},
		{"stake below one cent", PlaceInput{UserID: u.ID, EventID: "evt-1", OutcomeID: "outcome-0", Stake: repotest.D("0.004")}, ErrInvalidStake},
		{"odds moved", PlaceInput{UserID: u.ID, EventID: "evt-1", OutcomeID: "outcome-0", Stake: stake, ExpectedOdds: &odds}, ErrOddsChanged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.PlaceBet(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.Zero(t, repotest.Count(t, db, &repo.Bet{}))
	assert.True(t, repotest.Balance(t, db, u.ID).Equal(repotest.D("1000")))
}

func TestPlaceBetMatchingExpectedOdds(t *testing.T) {
	p, store := newPlacer(t)
	db := store.DB(context.Background())
	u := repotest.User(t, db, "ana@example.com", "1000")
	repotest.Event(t, db, "evt-1", "A=2.00", "B=2")

	odds := repotest.D("2")
	_, err := p.PlaceBet(context.Background(), PlaceInput{UserID: u.ID, EventID: "evt-1", OutcomeID: "outcome-0", Stake: stake, ExpectedOdds: &odds})
	require.NoError(t, err)
}

func TestConcurrentPlacementsNeverOverdraw(t *testing.T) {
	p, store := newPlacer(t)
	db := store.DB(context.Background())
	u := repotest.User(t, db, "ana@example.com", "550")
	repotest.Event(t, db, "evt-1", "A=2", "B=2")

	const attempts = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	placed, rejected := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.PlaceBet(context.Background(), PlaceInput{
				UserID: u.ID, EventID: "evt-1", OutcomeID: []string{"outcome-0", "outcome-1"}[i%2], Stake: stake,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				placed++
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientFunds)
			rejected++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, placed)
	assert.Equal(t, attempts-5, rejected)
	bal := repotest.Balance(t, db, u.ID)
	assert.False(t, bal.IsNegative())
	assert.True(t, bal.Equal(repotest.D("50")))
	assert.EqualValues(t, 5, repotest.Count(t, db, &repo.Bet{}))
}

func TestPlaceThenResolveRoundTrip(t *testing.T) {
	p, store := newPlacer(t)
	db := store.DB(context.Background())
	u := repotest.User(t, db, "ana@example.com", "1000")
	repotest.Event(t, db, "evt-1", "A=2.0", "B=2.0")

	_, err := p.PlaceBet(context.Background(), PlaceInput{UserID: u.ID, EventID: "evt-1", OutcomeID: "outcome-0", Stake: stake})
	require.NoError(t, err)
	_, err = p.PlaceBet(context.Background(), PlaceInput{UserID: u.ID, EventID: "evt-1", OutcomeID: "outcome-1", Stake: stake})
	require.NoError(t, err)
	assert.True(t, repotest.Balance(t, db, u.ID).Equal(repotest.D("800")))

	require.NoError(t, settlement.NewEngine(store, zaptest.NewLogger(t), "market_events").
		Resolve(context.Background(), "evt-1", "outcome-0"))
	assert.True(t, repotest.Balance(t, db, u.ID).Equal(repotest.D("1000")))

	_, err = p.PlaceBet(context.Background(), PlaceInput{UserID: u.ID, EventID: "evt-1", OutcomeID: "outcome-0", Stake: stake})
	assert.ErrorIs(t, err, ErrEventAlreadyResolved)
}
