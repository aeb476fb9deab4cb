package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/radieske/prediction-market-poc/internal/shared/outbox"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// Processor lê o outbox em lotes e publica no broker (at-least-once)
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log         *zap.Logger
	Repo        *outbox.Repo
	Pub         Publisher
	DLQTopic    string
	BatchSize   int
	MaxAttempts int
	Interval    time.Duration

	OnPublished func()
	OnFailed    func()
	OnDead      func()
	OnBatch     func(size int)
}

// Run roda até o contexto ser cancelado. Lote cheio e todo publicado dispara a próxima leitura sem esperar o ticker.
func (p *Processor) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, left, err := p.tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("outbox batch failed", zap.Error(err))
		}
		// com falha no lote espera o ticker, senão martela o broker fora do ar
		if err == nil && left == 0 && n >= p.batchSize() {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Processor) batchSize() int {
	if p.BatchSize <= 0 {
		return 50
	}
	return p.BatchSize
}

// Tick processa um lote e devolve quantas mensagens foram lidas.
// Depois de uma falha, as mensagens seguintes com a mesma chave ficam para o próximo
// tick sem contar tentativa, para não chegarem antes da que falhou.
func (p *Processor) Tick(ctx context.Context) (int, error) {
	n, _, err := p.tick(ctx)
	return n, err
}

// tick devolve também quantas mensagens do lote continuam pendentes
func (p *Processor) tick(ctx context.Context) (claimed, left int, err error) {
	claimed, err = p.Repo.ClaimBatch(ctx, p.batchSize(), func(tx *gorm.DB, msgs []outbox.Message) error {
		left = 0
		held := make(map[string]struct{})
		for i := range msgs {
			m := &msgs[i]
			if _, ok := held[m.Key]; ok {
				left++
				continue
			}
			pending, err := p.handle(ctx, tx, m)
			if err != nil {
				return err
			}
			if pending {
				held[m.Key] = struct{}{}
				left++
			}
		}
		return nil
	})
	if claimed > 0 && p.OnBatch != nil {
		p.OnBatch(claimed)
	}
	return claimed, left, err
}

// handle publica uma mensagem e atualiza o status na mesma transação do lote.
// pending=true quando a mensagem continua PENDING; erro retornado aqui é só de banco.
func (p *Processor) handle(ctx context.Context, tx *gorm.DB, m *outbox.Message) (pending bool, err error) {
	headers := map[string]string{"message_id": m.ID, "event_type": m.EventType}

	pubErr := p.Pub.Publish(ctx, m.Topic, m.Key, []byte(m.Payload), headers)
	if pubErr == nil {
		if p.OnPublished != nil {
			p.OnPublished()
		}
		return false, outbox.MarkPublished(tx, m.ID)
	}

	if p.MaxAttempts > 0 && m.Attempts+1 >= p.MaxAttempts && p.DLQTopic != "" {
		headers["error"] = pubErr.Error()
		headers["original_topic"] = m.Topic
		dlqErr := p.Pub.Publish(ctx, p.DLQTopic, m.Key, []byte(m.Payload), headers)
		if dlqErr == nil {
			p.Log.Error("outbox message sent to dlq",
				zap.String("message_id", m.ID),
				zap.Int("attempts", m.Attempts+1),
				zap.Error(pubErr),
			)
			if p.OnDead != nil {
				p.OnDead()
			}
			return false, outbox.MarkDead(tx, m.ID, pubErr)
		}
		pubErr = errors.Join(pubErr, fmt.Errorf("dlq: %w", dlqErr))
	}

	p.Log.Warn("outbox publish failed",
		zap.String("message_id", m.ID),
		zap.String("topic", m.Topic),
		zap.Int("attempts", m.Attempts+1),
		zap.Error(pubErr),
	)
	if p.OnFailed != nil {
		p.OnFailed()
	}
	return true, outbox.MarkFailed(tx, m.ID, pubErr)
}
