package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
)

func seedOutcomes(odds float64, names ...string) []repo.Outcome {
	out := make([]repo.Outcome, 0, len(names))
	for i, n := range names {
		out = append(out, repo.Outcome{
			ID:       fmt.Sprintf("player%d", i+1),
			Name:     n,
			Odds:     decimal.NewFromFloat(odds),
			Position: i,
		})
	}
	return out
}

func mustDate(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// eventos de demonstração
func seedEvents() []repo.Event {
	return []repo.Event{
		{
			ID:        "evt-001",
			Name:      "Zhang Jike vs Ma Long",
			Date:      mustDate("2026-01-10T14:00:00Z"),
			Category:  "Table Tennis",
			CreatedBy: "system",
			Outcomes:  seedOutcomes(2.0, "Zhang Jike", "Ma Long"),
		},
		{
			ID:        "evt-002",
			Name:      "Efren Reyes vs Shane Van Boening",
			Date:      mustDate("2026-01-12T19:00:00Z"),
			Category:  "Pool",
			CreatedBy: "system",
			Outcomes:  seedOutcomes(2.0, "Efren Reyes", "Shane Van Boening"),
		},
		{
			ID:        "evt-003",
			Name:      "World Poker Championship - Final Table",
			Date:      mustDate("2026-01-15T20:00:00Z"),
			Category:  "Poker",
			CreatedBy: "system",
			Outcomes:  seedOutcomes(4.0, "Phil Ivey", "Daniel Negreanu", "Vanessa Selbst", "Phil Hellmuth"),
		},
	}
}

// Seed insere os eventos de demonstração que ainda não existem. Idempotente.
func (s *Service) Seed(ctx context.Context) (int, error) {
	inserted := 0
	err := s.Store.Tx(ctx, func(tx *gorm.DB) error {
		for _, ev := range seedEvents() {
			ev := ev
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Omit("Outcomes").Create(&ev)
			if res.Error != nil {
				return fmt.Errorf("seed %s: %w", ev.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}
			for i := range ev.Outcomes {
				ev.Outcomes[i].EventID = ev.ID
			}
			if err := tx.Create(&ev.Outcomes).Error; err != nil {
				return fmt.Errorf("seed outcomes %s: %w", ev.ID, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		s.invalidate(ctx, "")
		s.Log.Info("seeded demo events", zap.Int("inserted", inserted))
	}
	return inserted, nil
}
