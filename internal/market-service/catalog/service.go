package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
	ErrNotFound        = errors.New("event not found")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrForbidden       = errors.New("only the creator can delete this event")
	ErrEventHasBets    = errors.New("event has bets")
	ErrInvalidCategory = errors.New("invalid category")
)

var Categories = []string{"Foosball", "Pool", "Poker", "Table Tennis", "Other"}

// odds ficam em numeric(12,4): 4 casas decimais e menos de 10^8
const oddsScale = 4

var maxOdds = decimal.New(1, 8)

// janela em que um evento já iniciado ainda aparece como "ao vivo"
const liveWindow = time.Hour

type OutcomeInput struct {
	Name string
	Odds *decimal.Decimal // nil = odd balanceada
}

type CreateInput struct {
	CreatorEmail string
	Name         string
	Date         time.Time
	Category     string
	Outcomes     []OutcomeInput
}

// Invalidator é avisado a cada escrita para limpar cache de leitura
type Invalidator interface {
	Invalidate(ctx context.Context, eventID string)
}

type Service struct {
	Store *repo.Store
	Log   *zap.Logger
	Topic string
	Cache Invalidator
	Now   func() time.Time
}

func NewService(store *repo.Store, log *zap.Logger, topic string, cache Invalidator) *Service {
	return &Service{Store: store, Log: log, Topic: topic, Cache: cache, Now: time.Now}
}

func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Create valida e grava o evento com os outcomes na ordem recebida
func (s *Service) Create(ctx context.Context, in CreateInput) (*repo.Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidEvent)
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidEvent)
	}
	if !ValidCategory(in.Category) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, in.Category)
	}
	if len(in.Outcomes) < 2 {
		return nil, fmt.Errorf("%w: at least two outcomes are required", ErrInvalidEvent)
	}

	balanced := decimal.NewFromInt(int64(len(in.Outcomes)))
	ev := &repo.Event{
		ID:        "evt-" + uuid.NewString(),
		Name:      name,
		Date:      in.Date.UTC(),
		Category:  in.Category,
		CreatedBy: strings.ToLower(in.CreatorEmail),
	}
	for i, o := range in.Outcomes {
		oname := strings.TrimSpace(o.Name)
		if oname == "" {
			return nil, fmt.Errorf("%w: outcome %d has no name", ErrInvalidEvent, i+1)
		}
		odds := balanced
		if o.Odds != nil {
			// mesma escala da coluna numeric(12,4): a odd devolvida é a que fica gravada
			odds = o.Odds.Round(oddsScale)
			if !odds.IsPositive() {
				return nil, fmt.Errorf("%w: outcome %q odds must be positive", ErrInvalidEvent, oname)
			}
			if odds.GreaterThanOrEqual(maxOdds) {
				return nil, fmt.Errorf("%w: outcome %q odds must be below %s", ErrInvalidEvent, oname, maxOdds)
			}
		}
		ev.Outcomes = append(ev.Outcomes, repo.Outcome{
			ID:       fmt.Sprintf("outcome-%d", i),
			Name:     oname,
			Odds:     odds,
			Position: i,
		})
	}

	err := s.Store.Tx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(ev).Error; err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		_, err := outbox.Enqueue(tx, s.Topic, events.TypeEventCreated, ev.ID, events.EventCreated{
			EventID:   ev.ID,
			Name:      ev.Name,
			Category:  ev.Category,
			Date:      ev.Date,
			CreatedBy: ev.CreatedBy,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, ev.ID)
	s.Log.Info("event created", zap.String("event_id", ev.ID), zap.String("created_by", ev.CreatedBy))
	return ev, nil
}

func (s *Service) Get(ctx context.Context, id string) (*repo.Event, error) {
	ev, err := repo.FindEvent(s.Store.DB(ctx), id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	return ev, err
}

func (s *Service) List(ctx context.Context) ([]repo.Event, error) {
	return repo.ListEvents(s.Store.DB(ctx))
}

// Delete remove o evento; só o criador pode, e nunca quando já existem apostas
func (s *Service) Delete(ctx context.Context, requesterEmail, id string) error {
	err := s.Store.Tx(ctx, func(tx *gorm.DB) error {
		ev, err := repo.LockEvent(tx, id, "UPDATE")
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !strings.EqualFold(ev.CreatedBy, requesterEmail) {
			return ErrForbidden
		}

		var bets int64
		if err := tx.Model(&repo.Bet{}).Where("event_id = ?", id).Count(&bets).Error; err != nil {
			return fmt.Errorf("count bets: %w", err)
		}
		if bets > 0 {
			return ErrEventHasBets
		}

		if err := tx.Where("event_id = ?", id).Delete(&repo.Outcome{}).Error; err != nil {
			return fmt.Errorf("delete outcomes: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&repo.Event{}).Error; err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		_, err = outbox.Enqueue(tx, s.Topic, events.TypeEventDeleted, id, events.EventDeleted{
			EventID:   id,
			DeletedBy: strings.ToLower(requesterEmail),
		})
		return err
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.Log.Info("event deleted", zap.String("event_id", id))
	return nil
}

// IsLive: começou há menos de uma hora
func (s *Service) IsLive(ev *repo.Event) bool {
	now := s.now()
	return !ev.Date.After(now) && now.Sub(ev.Date) < liveWindow
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, id)
	}
}
