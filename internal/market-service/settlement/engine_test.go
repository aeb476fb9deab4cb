package settlement

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
	"github.com/radieske/prediction-market-poc/internal/market-service/repo/repotest"
	"github.com/radieske/prediction-market-poc/internal/shared/outbox"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

func newEngine(t *testing.T) (*Engine, *repo.Store) {
	store, _ := repotest.NewStore(t)
	e := NewEngine(store, zaptest.NewLogger(t), "market_events")
	return e, store
}

func loadBet(t *testing.T, store *repo.Store, id string) repo.Bet {
	var b repo.Bet
	require.NoError(t, store.DB(context.Background()).Take(&b, "id = ?", id).Error)
	return b
}

func TestResolveExampleScenario(t *testing.T) {
	e, store := newEngine(t)
	db := store.DB(context.Background())

	// saldo 1000, duas apostas de 100 já debitadas => 800
	u := repotest.User(t, db, "ana@example.com", "800")
	ev := repotest.Event(t, db, "evt-1", "A=2.0", "B=2.0")
	b1 := repotest.Bet(t, db, u, ev, "outcome-0", "100")
	b2 := repotest.Bet(t, db, u, ev, "outcome-1", "100")

	var gotBets int
	var gotPayout decimal.Decimal
	e.OnResolved = func(bets int, payout decimal.Decimal, _ time.Duration) {
		gotBets, gotPayout = bets, payout
	}

	require.NoError(t, e.Resolve(context.Background(), "evt-1", "outcome-0"))

	won := loadBet(t, store, b1.ID)
	lost := loadBet(t, store, b2.ID)
	assert.Equal(t, repo.BetWon, won.Status)
	assert.True(t, won.Payout.Equal(repotest.D("200")), "payout %s", won.Payout)
	require.NotNil(t, won.SettledAt)
	assert.Equal(t, repo.BetLost, lost.Status)
	assert.True(t, lost.Payout.IsZero())

	assert.True(t, repotest.Balance(t, db, u.ID).Equal(repotest.D("1000")))
	assert.Equal(t, 2, gotBets)
	assert.True(t, gotPayout.Equal(repotest.D("200")))

	got, err := repo.FindEvent(db, "evt-1")
	require.NoError(t, err)
	require.True(t, got.Resolved())
	assert.Equal(t, "outcome-0", *got.WinningOutcomeID)
	assert.Equal(t, "A", *got.WinningOutcomeName)

	var ledger []repo.LedgerEntry
	require.NoError(t, db.Where("user_id = ?", u.ID).Find(&ledger).Error)
	require.Len(t, ledger, 1)
	assert.Equal(t, repo.OpPayoutCredit, ledger[0].Operation)
	assert.Equal(t, b1.ID, *ledger[0].RelatedBetID)
	assert.True(t, ledger[0].BalanceAfter.Equal(repotest.D("1000")))

	var msgs []outbox.Message
	require.NoError(t, db.Where("event_type = ?", events.TypeEventResolved).Find(&msgs).Error)
	require.Len(t, msgs, 1)
	var env events.Envelope
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Payload), &env))
	var payload events.EventResolved
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, 1, payload.BetsWon)
	assert.Equal(t, 1, payload.BetsLost)
	assert.True(t, payload.TotalPayout.Equal(repotest.D("200")))
}

func TestResolvePartitionAndPayoutSum(t *testing.T) {
	e, store := newEngine(t)
	db := store.DB(context.Background())

	ev := repotest.Event(t, db, "evt-2", "X=1.5", "Y=3.25", "Z=4")
	users := []*repo.User{
		repotest.User(t, db, "a@example.com", "0"),
		repotest.User(t, db, "b@example.com", "0"),
		repotest.User(t, db, "c@example.com", "0"),
	}
	picks := []string{"outcome-1", "outcome-0", "outcome-1", "outcome-2", "outcome-1", "outcome-0"}
	var bets []*repo.Bet
	for i, p := range picks {
		bets = append(bets, repotest.Bet(t, db, users[i%3], ev, p, "33.33"))
	}

	require.NoError(t, e.Resolve(context.Background(), "evt-2", "outcome-1"))

	expected := decimal.Zero
	for _, b := range bets {
		got := loadBet(t, store, b.ID)
		if b.OutcomeID == "outcome-1" {
			assert.Equal(t, repo.BetWon, got.Status)
			expected = expected.Add(Payout(b.Stake, b.Odds))
		} else {
			assert.Equal(t, repo.BetLost, got.Status)
		}
	}

	credited := decimal.Zero
	for _, u := range users {
		credited = credited.Add(repotest.Balance(t, db, u.ID))
	}
	assert.True(t, credited.Equal(expected), "credited %s expected %s", credited, expected)
	assert.Zero(t, repotest.Count(t, db, &repo.Bet{}, "status = ?", repo.BetPending))
}

func TestResolveTwiceFailsWithoutDoublePay(t *testing.T) {
	e, store := newEngine(t)
	db := store.DB(context.Background())

	u := repotest.User(t, db, "ana@example.com", "900")
	ev := repotest.Event(t, db, "evt-1", "A=2", "B=2")
	repotest.Bet(t, db, u, ev, "outcome-0", "100")

	require.NoError(t, e.Resolve(context.Background(), "evt-1", "outcome-0"))
	assert.True(t, repotest.Balance(t, db, u.ID).Equal(repotest.D("1100")))

	err := e.Resolve(context.Background(), "evt-1", "outcome-1")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	assert.True(t, repotest.Balance(t, db, u.ID).Equal(repotest.D("1100")))
	assert.EqualValues(t, 1, repotest.Count(t, db, &repo.LedgerEntry{}))
	assert.EqualValues(t, 1, repotest.Count(t, db, &outbox.Message{}))
}

func TestResolveConcurrentCallsPayOnce(t *testing.T) {
	e, store := newEngine(t)
	db := store.DB(context.Background())

	u := repotest.User(t, db, "ana@example.com", "0")
	ev := repotest.Event(t, db, "evt-1", "A=2", "B=2")
	repotest.Bet(t, db, u, ev, "outcome-0", "100")

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.Resolve(context.Background(), "evt-1", "outcome-0")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyResolved)
	}
	assert.Equal(t, 1, ok)
	assert.True(t, repotest.Balance(t, db, u.ID).Equal(repotest.D("200")))
}

func TestResolveInvalidOutcomeLeavesBetsUntouched(t *testing.T) {
	e, store := newEngine(t)
	db := store.DB(context.Background())

	u := repotest.User(t, db, "ana@example.com", "900")
	ev := repotest.Event(t, db, "evt-1", "A=2", "B=2")
	b := repotest.Bet(t, db, u, ev, "outcome-0", "100")

	var reason string
	e.OnError = func(r string) { reason = r }

	err := e.Resolve(context.Background(), "evt-1", "outcome-9")
	assert.ErrorIs(t, err, ErrInvalidOutcome)
	assert.Equal(t, "invalid_outcome", reason)
	assert.Equal(t, repo.BetPending, loadBet(t, store, b.ID).Status)

	got, err := repo.FindEvent(db, "evt-1")
	require.NoError(t, err)
	assert.False(t, got.Resolved())
}

func TestResolveUnknownEvent(t *testing.T) {
	e, _ := newEngine(t)
	assert.ErrorIs(t, e.Resolve(context.Background(), "evt-missing", "outcome-0"), ErrEventNotFound)
}

func TestResolveWithoutBets(t *testing.T) {
	e, store := newEngine(t)
	db := store.DB(context.Background())
	repotest.Event(t, db, "evt-1", "A=2", "B=2")

	require.NoError(t, e.Resolve(context.Background(), "evt-1", "outcome-1"))

	got, err := repo.FindEvent(db, "evt-1")
	require.NoError(t, err)
	assert.True(t, got.Resolved())
	assert.Zero(t, repotest.Count(t, db, &repo.LedgerEntry{}))
}

func TestResolveRollsBackOnStorageFailure(t *testing.T) {
	e, store := newEngine(t)
	db := store.DB(context.Background())

	u := repotest.User(t, db, "ana@example.com", "800")
	ev := repotest.Event(t, db, "evt-1", "A=2", "B=2")
	b1 := repotest.Bet(t, db, u, ev, "outcome-0", "100")
	b2 := repotest.Bet(t, db, u, ev, "outcome-1", "100")

	// bets já foram atualizadas quando o crédito do usuário falha
	repotest.FailUpdatesOn(t, db, "users")

	err := e.Resolve(context.Background(), "evt-1", "outcome-0")
	require.Error(t, err)

	assert.Equal(t, repo.BetPending, loadBet(t, store, b1.ID).Status)
	assert.Equal(t, repo.BetPending, loadBet(t, store, b2.ID).Status)
	assert.True(t, repotest.Balance(t, db, u.ID).Equal(repotest.D("800")))
	assert.Zero(t, repotest.Count(t, db, &repo.LedgerEntry{}))
	assert.Zero(t, repotest.Count(t, db, &outbox.Message{}))

	got, err := repo.FindEvent(db, "evt-1")
	require.NoError(t, err)
	assert.False(t, got.Resolved())
}

func TestPayoutRounding(t *testing.T) {
	assert.Equal(t, "200.00", Payout(repotest.D("100"), repotest.D("2")).StringFixed(2))
	assert.Equal(t, "108.32", Payout(repotest.D("33.33"), repotest.D("3.25")).StringFixed(2))
	assert.Equal(t, "0.01", Payout(repotest.D("0.01"), repotest.D("1.4")).StringFixed(2))
}
