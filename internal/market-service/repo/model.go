package repo

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status de aposta
const (
	BetPending = "pending"
	BetWon     = "won"
	BetLost    = "lost"
)

// Operações do ledger
const (
	OpDeposit      = "DEPOSIT"
	OpBetDebit     = "BET_DEBIT"
	OpPayoutCredit = "PAYOUT_CREDIT"
)

// Event é um jogo/partida com resultados mutuamente exclusivos.
// Resolução fica em colunas próprias: nulas enquanto o evento está aberto.
type Event struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Name      string    `gorm:"size:255;not null"`
	Date      time.Time `gorm:"not null;index"`
	Category  string    `gorm:"size:32;not null"`
	CreatedBy string    `gorm:"size:255;index"`

	WinningOutcomeID   *string `gorm:"size:64"`
	WinningOutcomeName *string `gorm:"size:255"`
	ResolvedAt         *time.Time

	Outcomes []Outcome `gorm:"foreignKey:EventID;references:ID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *Event) Resolved() bool { return e.ResolvedAt != nil }

// Outcome procura um resultado pelo id
func (e *Event) Outcome(id string) (Outcome, bool) {
	for _, o := range e.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}

// Outcome: id único dentro do evento; Position preserva a ordem de criação
type Outcome struct {
	EventID  string          `gorm:"primaryKey;size:64"`
	ID       string          `gorm:"primaryKey;size:64"`
	Name     string          `gorm:"size:255;not null"`
	Odds     decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	Position int             `gorm:"not null"`
}

// Bet guarda um snapshot do evento e da odd no momento da aposta
type Bet struct {
	ID            string          `gorm:"primaryKey;size:64"`
	UserID        string          `gorm:"size:64;not null;index"`
	EventID       string          `gorm:"size:64;not null;index"`
	EventName     string          `gorm:"size:255;not null"`
	EventCategory string          `gorm:"size:32;not null"`
	EventDate     time.Time       `gorm:"not null"`
	OutcomeID     string          `gorm:"size:64;not null"`
	OutcomeName   string          `gorm:"size:255;not null"`
	Odds          decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	Stake         decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Payout        decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Status        string          `gorm:"size:16;not null;index"`
	PlacedAt      time.Time       `gorm:"not null;index"`
	SettledAt     *time.Time
	UpdatedAt     time.Time
}

type User struct {
	ID        string          `gorm:"primaryKey;size:64"`
	Email     string          `gorm:"size:255;not null;uniqueIndex"`
	Balance   decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerEntry: uma linha por movimentação de saldo
type LedgerEntry struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	UserID        string          `gorm:"size:64;not null;index"`
	Operation     string          `gorm:"size:32;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	RelatedBetID  *string         `gorm:"size:64"`
	Description   string          `gorm:"size:255"`
	CreatedAt     time.Time
}

func (LedgerEntry) TableName() string { return "wallet_ledger" }

// Models lista o que o AutoMigrate precisa conhecer
func Models() []any {
	return []any{&Event{}, &Outcome{}, &Bet{}, &User{}, &LedgerEntry{}}
}
