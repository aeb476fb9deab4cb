package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/radieske/prediction-market-poc/internal/market-service/betting"
	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
	"github.com/radieske/prediction-market-poc/internal/market-service/repo/repotest"
	"github.com/radieske/prediction-market-poc/internal/shared/outbox"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

type recordingCache struct{ ids []string }

func (r *recordingCache) Invalidate(_ context.Context, id string) { r.ids = append(r.ids, id) }

func newService(t *testing.T) (*Service, *repo.Store, *recordingCache) {
	store, _ := repotest.NewStore(t)
	c := &recordingCache{}
	return NewService(store, zaptest.NewLogger(t), "market_events", c), store, c
}

func odds(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateRoundTripKeepsOrderAndOdds(t *testing.T) {
	s, store, cache := newService(t)
	ctx := context.Background()

	date := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	in := CreateInput{
		CreatorEmail: "Host@Example.com",
		Name:         "  Office Foosball Final ",
		Date:         date,
		Category:     "Foosball",
		Outcomes: []OutcomeInput{
			{Name: "Zebras", Odds: odds("3.75")},
			{Name: "Ants", Odds: odds("1.2")},
			{Name: "Draw", Odds: odds("9")},
		},
	}
	created, err := s.Create(ctx, in)
	require.NoError(t, err)
	assert.Contains(t, created.ID, "evt-")
	assert.Equal(t, "host@example.com", created.CreatedBy)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Office Foosball Final", got.Name)
	assert.True(t, got.Date.Equal(date))
	require.Len(t, got.Outcomes, 3)
	for i, o := range got.Outcomes {
		assert.Equal(t, in.Outcomes[i].Name, o.Name)
		assert.True(t, in.Outcomes[i].Odds.Equal(o.Odds), "odds %d: %s", i, o.Odds)
		assert.Equal(t, i, o.Position)
	}

	assert.Equal(t, []string{created.ID}, cache.ids)
	assert.EqualValues(t, 1, repotest.Count(t, store.DB(ctx), &outbox.Message{}, "event_type = ?", events.TypeEventCreated))
}

func TestCreateBalancedOdds(t *testing.T) {
	s, _, _ := newService(t)
	ev, err := s.Create(context.Background(), CreateInput{
		CreatorEmail: "a@example.com",
		Name:         "Poker night",
		Date:         time.Now(),
		Category:     "Poker",
		Outcomes:     []OutcomeInput{{Name: "P1"}, {Name: "P2"}, {Name: "P3"}, {Name: "P4"}},
	})
	require.NoError(t, err)
	for _, o := range ev.Outcomes {
		assert.True(t, o.Odds.Equal(decimal.NewFromInt(4)))
	}
	assert.Equal(t, "outcome-0", ev.Outcomes[0].ID)
	assert.Equal(t, "outcome-3", ev.Outcomes[3].ID)
}

func TestCreateValidation(t *testing.T) {
	s, store, _ := newService(t)
	base := func() CreateInput {
		return CreateInput{
			CreatorEmail: "a@example.com",
			Name:         "Pool",
			Date:         time.Now(),
			Category:     "Pool",
			Outcomes:     []OutcomeInput{{Name: "A"}, {Name: "B"}},
		}
	}

	cases := map[string]struct {
		mutate func(*CreateInput)
		want   error
	}{
		"no name":       {func(in *CreateInput) { in.Name = " " }, ErrInvalidEvent},
		"no date":       {func(in *CreateInput) { in.Date = time.Time{} }, ErrInvalidEvent},
		"bad category":  {func(in *CreateInput) { in.Category = "Chess" }, ErrInvalidCategory},
		"one outcome":   {func(in *CreateInput) { in.Outcomes = in.Outcomes[:1] }, ErrInvalidEvent},
		"blank outcome": {func(in *CreateInput) { in.Outcomes[1].Name = "" }, ErrInvalidEvent},
		"negative odds": {func(in *CreateInput) { in.Outcomes[0].Odds = odds("-1") }, ErrInvalidEvent},
		"zero odds":     {func(in *CreateInput) { in.Outcomes[0].Odds = odds("0") }, ErrInvalidEvent},
		"tiny odds":     {func(in *CreateInput) { in.Outcomes[0].Odds = odds("0.00004") }, ErrInvalidEvent},
		"huge odds":     {func(in *CreateInput) { in.Outcomes[0].Odds = odds("100000000") }, ErrInvalidEvent},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := base()
			tc.mutate(&in)
			_, err := s.Create(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, repotest.Count(t, store.DB(context.Background()), &repo.Event{}))
}

func TestCreateRoundsOddsToStoredScale(t *testing.T) {
	s, store, _ := newService(t)
	ctx := context.Background()
	u := repotest.User(t, store.DB(ctx), "ana@example.com", "1000")

	ev, err := s.Create(ctx, CreateInput{
		CreatorEmail: "host@example.com",
		Name:         "Pool",
		Date:         time.Now(),
		Category:     "Pool",
		Outcomes:     []OutcomeInput{{Name: "A", Odds: odds("1.23456")}, {Name: "B", Odds: odds("99999999.9999")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "1.2346", ev.Outcomes[0].Odds.String())

	stored, err := s.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, stored.Outcomes[0].Odds.Equal(ev.Outcomes[0].Odds))

	// a odd devolvida na criação é aceita na aposta
	seen := ev.Outcomes[0].Odds
	placer := betting.NewPlacer(store, zaptest.NewLogger(t), "market_events")
	_, err = placer.PlaceBet(ctx, betting.PlaceInput{UserID: u.ID, EventID: ev.ID, OutcomeID: "outcome-0", Stake: repotest.D("100"), ExpectedOdds: &seen})
	assert.NoError(t, err)
}

func TestDeletePolicies(t *testing.T) {
	s, store, _ := newService(t)
	ctx := context.Background()
	db := store.DB(ctx)

	ev := repotest.Event(t, db, "evt-1", "A=2", "B=2")
	withBets := repotest.Event(t, db, "evt-2", "A=2", "B=2")
	u := repotest.User(t, db, "p@example.com", "1000")
	repotest.Bet(t, db, u, withBets, "outcome-0", "100")

	assert.ErrorIs(t, s.Delete(ctx, "intruder@example.com", ev.ID), ErrForbidden)
	assert.ErrorIs(t, s.Delete(ctx, "creator@example.com", withBets.ID), ErrEventHasBets)
	assert.ErrorIs(t, s.Delete(ctx, "creator@example.com", "evt-none"), ErrNotFound)

	require.NoError(t, s.Delete(ctx, "Creator@Example.com", ev.ID))
	_, err := s.Get(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, repotest.Count(t, db, &repo.Outcome{}, "event_id = ?", ev.ID))
	assert.EqualValues(t, 1, repotest.Count(t, db, &outbox.Message{}, "event_type = ?", events.TypeEventDeleted))

	// evento com apostas continua lá
	_, err = s.Get(ctx, withBets.ID)
	assert.NoError(t, err)
}

func TestSeedIsIdempotent(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	n, err := s.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "evt-001", list[0].ID)
	require.Len(t, list[2].Outcomes, 4)
	assert.Equal(t, "Phil Ivey", list[2].Outcomes[0].Name)
	assert.Equal(t, "Phil Hellmuth", list[2].Outcomes[3].Name)
	assert.True(t, list[2].Outcomes[0].Odds.Equal(decimal.NewFromInt(4)))
}

func TestIsLive(t *testing.T) {
	s, _, _ := newService(t)
	now := time.Date(2026, 1, 10, 14, 30, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }

	assert.True(t, s.IsLive(&repo.Event{Date: now.Add(-30 * time.Minute)}))
	assert.True(t, s.IsLive(&repo.Event{Date: now}))
	assert.False(t, s.IsLive(&repo.Event{Date: now.Add(-2 * time.Hour)}))
	assert.False(t, s.IsLive(&repo.Event{Date: now.Add(time.Minute)}))
}
