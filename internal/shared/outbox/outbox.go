// Package outbox implementa a tabela de saída transacional: a mensagem é gravada
// na mesma transação da mudança de estado e publicada depois pelo outbox-relay.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

const (
	StatusPending   = "PENDING"
	StatusPublished = "PUBLISHED"
	StatusDead      = "DEAD"
)

type Message struct {
	ID          string    `gorm:"primaryKey;size:64"`
	Topic       string    `gorm:"size:128;not null"`
	Key         string    `gorm:"size:128;not null"`
	EventType   string    `gorm:"size:64;not null"`
	Payload     string    `gorm:"type:text;not null"`
	Status      string    `gorm:"size:16;not null;index:idx_outbox_status_created,priority:1"`
	Attempts    int       `gorm:"not null"`
	LastError   string    `gorm:"size:1024"`
	CreatedAt   time.Time `gorm:"not null;index:idx_outbox_status_created,priority:2"`
	PublishedAt *time.Time
}

func (Message) TableName() string { return "outbox_messages" }

// Enqueue monta o envelope e grava a mensagem usando a transação recebida
func Enqueue(tx *gorm.DB, topic, eventType, eventID string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	env := events.Envelope{
		ID:      uuid.NewString(),
		Type:    eventType,
		EventID: eventID,
		Payload: raw,
		Ts:      now,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	msg := &Message{
		ID:        env.ID,
		Topic:     topic,
		Key:       eventID,
		EventType: eventType,
		Payload:   string(body),
		Status:    StatusPending,
		CreatedAt: now,
	}
	if err := tx.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("insert outbox: %w", err)
	}
	return msg, nil
}

// Repo é o lado do relay: busca pendentes e atualiza status
type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// ClaimBatch abre uma transação, trava até limit mensagens pendentes (SKIP LOCKED)
// e entrega para fn. As atualizações feitas por fn via tx são commitadas juntas.
func (r *Repo) ClaimBatch(ctx context.Context, limit int, fn func(tx *gorm.DB, msgs []Message) error) (int, error) {
	var n int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msgs []Message
		err := pendingBatch(tx, limit).Find(&msgs).Error
		if err != nil {
			return fmt.Errorf("select pending: %w", err)
		}
		n = len(msgs)
		if n == 0 {
			return nil
		}
		return fn(tx, msgs)
	})
	return n, err
}

// pendingBatch: linhas travadas por outro relay são puladas, não esperadas
func pendingBatch(tx *gorm.DB, limit int) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", StatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit)
}

func MarkPublished(tx *gorm.DB, id string) error {
	now := time.Now().UTC()
	return mark(tx, id, map[string]any{"status": StatusPublished, "published_at": now, "last_error": ""})
}

// MarkFailed incrementa tentativas e guarda o erro; continua PENDING
func MarkFailed(tx *gorm.DB, id string, cause error) error {
	return mark(tx, id, map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": truncate(cause.Error(), 1024),
	})
}

func MarkDead(tx *gorm.DB, id string, cause error) error {
	return mark(tx, id, map[string]any{
		"status":     StatusDead,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": truncate(cause.Error(), 1024),
	})
}

func mark(tx *gorm.DB, id string, fields map[string]any) error {
	res := tx.Model(&Message{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update outbox %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.New("outbox message not found: " + id)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
