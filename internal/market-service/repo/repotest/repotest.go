// Package repotest monta fixtures do market-service sobre SQLite em memória.
package repotest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
	"github.com/radieske/prediction-market-poc/internal/shared/db/dbtest"
	"github.com/radieske/prediction-market-poc/internal/shared/outbox"
)

// NewStore devolve um Store migrado e o *gorm.DB por baixo dele
func NewStore(t testing.TB) (*repo.Store, *gorm.DB) {
	t.Helper()
	gdb := dbtest.Open(t, append(repo.Models(), &outbox.Message{})...)
	return repo.NewStore(gdb), gdb
}

func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func User(t testing.TB, db *gorm.DB, email, balance string) *repo.User {
	t.Helper()
	u := &repo.User{ID: uuid.NewString(), Email: email, Balance: D(balance)}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Event cria um evento aberto; odds na forma "nome=odd"
func Event(t testing.TB, db *gorm.DB, id string, odds ...string) *repo.Event {
	t.Helper()
	ev := &repo.Event{
		ID:        id,
		Name:      "Event " + id,
		Date:      time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second),
		Category:  "Pool",
		CreatedBy: "creator@example.com",
	}
	for i, o := range odds {
		var name, odd string
		for j := len(o) - 1; j >= 0; j-- {
			if o[j] == '=' {
				name, odd = o[:j], o[j+1:]
				break
			}
		}
		ev.Outcomes = append(ev.Outcomes, repo.Outcome{
			ID:       fmt.Sprintf("outcome-%d", i),
			Name:     name,
			Odds:     D(odd),
			Position: i,
		})
	}
	require.NoError(t, db.Create(ev).Error)
	return ev
}

// Bet grava uma aposta pendente já debitada (sem mexer no saldo)
func Bet(t testing.TB, db *gorm.DB, u *repo.User, ev *repo.Event, outcomeID, stake string) *repo.Bet {
	t.Helper()
	o, ok := ev.Outcome(outcomeID)
	require.True(t, ok, "outcome %s", outcomeID)
	b := &repo.Bet{
		ID:            uuid.NewString(),
		UserID:        u.ID,
		EventID:       ev.ID,
		EventName:     ev.Name,
		EventCategory: ev.Category,
		EventDate:     ev.Date,
		OutcomeID:     o.ID,
		OutcomeName:   o.Name,
		Odds:          o.Odds,
		Stake:         D(stake),
		Status:        repo.BetPending,
		PlacedAt:      time.Now().UTC(),
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

func Balance(t testing.TB, db *gorm.DB, userID string) decimal.Decimal {
	t.Helper()
	var u repo.User
	require.NoError(t, db.Take(&u, "id = ?", userID).Error)
	return u.Balance
}

func Count(t testing.TB, db *gorm.DB, model any, where ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

// FailUpdatesOn faz todo UPDATE na tabela informada falhar (injeção de falha)
func FailUpdatesOn(t testing.TB, db *gorm.DB, table string) {
	t.Helper()
	name := "test:fail_" + table
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register(name, func(d *gorm.DB) {
		if d.Statement.Table == table {
			_ = d.AddError(fmt.Errorf("injected failure on %s", table))
		}
	}))
	t.Cleanup(func() { _ = db.Callback().Update().Remove(name) })
}
