package wallet

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
	"gorm.io/gorm/clause"

	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Service cuida do registro do usuário, saldo e histórico de apostas
type Service struct {
	Store           *repo.Store
	Log             *zap.Logger
	StartingBalance decimal.Decimal
}

func NewService(store *repo.Store, log *zap.Logger, startingBalance decimal.Decimal) *Service {
	return &Service{Store: store, Log: log, StartingBalance: startingBalance}
}

func normalize(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// EnsureUser cria o usuário com o saldo inicial se ainda não existir.
// created=false quando o registro já estava lá.
func (s *Service) EnsureUser(ctx context.Context, email string) (u *repo.User, created bool, err error) {
	email = normalize(email)
	if email == "" {
		return nil, false, fmt.Errorf("%w: empty email", ErrUserNotFound)
	}

	err = s.Store.Tx(ctx, func(tx *gorm.DB) error {
		// nasce com saldo zero; o saldo inicial entra como depósito no ledger
		now := time.Now().UTC()
		nu := repo.User{ID: uuid.NewString(), Email: email, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).Create(&nu)
		if res.Error != nil {
			return fmt.Errorf("insert user: %w", res.Error)
		}
		created = res.RowsAffected == 1

		if created {
			if start := s.StartingBalance.Round(2); start.IsPositive() {
				if err := repo.ApplyBalance(tx, &nu, start, repo.OpDeposit, nil, "starting balance"); err != nil {
					return err
				}
			}
			u = &nu
			return nil
		}

		u, err = repo.FindUserByEmail(tx, email)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.Log.Info("user provisioned", zap.String("user_id", u.ID), zap.String("email", email))
	}
	return u, created, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*repo.User, error) {
	u, err := repo.FindUserByEmail(s.Store.DB(ctx), normalize(email))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// Deposit credita amount no usuário com lock na linha e registro no ledger
func (s *Service) Deposit(ctx context.Context, email string, amount decimal.Decimal, ref string) (*repo.User, error) {
	// valor abaixo de um centavo vira zero e é recusado
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var out *repo.User
	err := s.Store.Tx(ctx, func(tx *gorm.DB) error {
		u, err := repo.FindUserByEmail(tx, normalize(email))
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		users, err := repo.LockUsers(tx, []string{u.ID})
		if err != nil {
			return err
		}
		locked := users[u.ID]
		if err := repo.ApplyBalance(tx, locked, amount, repo.OpDeposit, nil, "deposit:"+ref); err != nil {
			return err
		}
		out = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("deposit", zap.String("user_id", out.ID), zap.String("amount", amount.StringFixed(2)))
	return out, nil
}

// ListBets devolve as apostas do usuário, mais recentes primeiro
func (s *Service) ListBets(ctx context.Context, userID string) ([]repo.Bet, error) {
	var bets []repo.Bet
	if err := s.Store.DB(ctx).Where("user_id = ?", userID).
		Order("placed_at DESC, id DESC").Find(&bets).Error; err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	return bets, nil
}

// Ledger devolve as movimentações do usuário, mais recentes primeiro
func (s *Service) Ledger(ctx context.Context, userID string, limit int) ([]repo.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []repo.LedgerEntry
	if err := s.Store.DB(ctx).Where("user_id = ?", userID).
		Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return out, nil
}
