package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Store concentra o acesso ao banco do market-service via gorm
type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) DB(ctx context.Context) *gorm.DB { return s.db.WithContext(ctx) }

// Migrate cria/atualiza as tabelas do serviço
func (s *Store) Migrate(ctx context.Context, extra ...any) error {
	return s.db.WithContext(ctx).AutoMigrate(append(Models(), extra...)...)
}

// Tx executa fn numa transação; erro retornado por fn faz rollback de tudo
func (s *Store) Tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func withOutcomes(db *gorm.DB) *gorm.DB {
	return db.Preload("Outcomes", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

// FindEvent carrega o evento com os outcomes na ordem de criação
func FindEvent(db *gorm.DB, id string) (*Event, error) {
	var ev Event
	if err := withOutcomes(db).Where("id = ?", id).Take(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &ev, nil
}

// LockEvent é o FindEvent com lock de linha (UPDATE para resolução, SHARE para aposta)
func LockEvent(tx *gorm.DB, id string, strength string) (*Event, error) {
	var ev Event
	err := tx.Clauses(clause.Locking{Strength: strength}).Where("id = ?", id).Take(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}
	if err := tx.Where("event_id = ?", id).Order("position ASC").Find(&ev.Outcomes).Error; err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}
	return &ev, nil
}

// ListEvents devolve todos os eventos ordenados por data
func ListEvents(db *gorm.DB) ([]Event, error) {
	var out []Event
	if err := withOutcomes(db).Order("date ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

func FindUserByEmail(db *gorm.DB, email string) (*User, error) {
	var u User
	if err := db.Where("email = ?", email).Take(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// LockUsers trava as linhas de usuário sempre em ordem crescente de id
func LockUsers(tx *gorm.DB, ids []string) (map[string]*User, error) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)

	out := make(map[string]*User, len(uniq))
	for _, id := range uniq {
		var u User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&u).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
			}
			return nil, fmt.Errorf("lock user: %w", err)
		}
		out[id] = &u
	}
	return out, nil
}

// ApplyBalance soma delta ao saldo (negativo debita) e grava a linha de ledger.
// Nunca deixa o saldo negativo.
func ApplyBalance(tx *gorm.DB, u *User, delta decimal.Decimal, op string, betID *string, desc string) error {
	before := u.Balance
	after := before.Add(delta).Round(2)
	if after.IsNegative() {
		return ErrInsufficientFunds
	}

	now := time.Now().UTC()
	res := tx.Model(&User{}).Where("id = ?", u.ID).
		Updates(map[string]any{"balance": after, "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("update balance: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("update balance %s: %w", u.ID, ErrNotFound)
	}

	entry := LedgerEntry{
		UserID:        u.ID,
		Operation:     op,
		Amount:        delta.Abs().Round(2),
		BalanceBefore: before,
		BalanceAfter:  after,
		RelatedBetID:  betID,
		Description:   desc,
		CreatedAt:     now,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}

	u.Balance = after
	u.UpdatedAt = now
	return nil
}
