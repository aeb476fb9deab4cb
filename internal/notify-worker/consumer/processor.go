package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Broadcaster interface {
	Publish(ctx context.Context, update events.MarketUpdate) (int64, error)
}

// Invalidator derruba o cache de leitura do catálogo quando o evento muda
type Invalidator interface {
	Invalidate(ctx context.Context, eventID string)
}

var errNoEventID = errors.New("envelope without event_id")

// Processor consome o tópico market_events e repassa cada mudança
// para o canal Redis lido pelo hub WebSocket do market-service.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log     *zap.Logger
	Reader  Reader
	DLQ     Writer // opcional
	Pub     Broadcaster
	Cache   Invalidator // opcional
	Timeout time.Duration

	RetryDelay time.Duration

	OnConsumed  func(eventType string)
	OnBroadcast func()
	OnDLQ       func()
	OnError     func(stage string)
}

// Run inicia o loop principal. O offset só é commitado depois do broadcast
// (ou do envio ao DLQ), então uma falha no Redis faz a mensagem ser relida.
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.fail("read")
			sleep(ctx, 500*time.Millisecond)
			continue
		}

		// mesma mensagem até conseguir: FetchMessage não volta o offset
		for {
			err := p.Handle(ctx, m)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("broadcast failed, retrying", zap.Int64("offset", m.Offset), zap.Error(err))
			sleep(ctx, p.retryDelay())
		}

		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed", zap.Error(err))
			p.fail("commit")
		}
	}
}

// Handle processa uma mensagem. Erro de decode vai para o DLQ e não é repassado;
// erro retornado significa que a mensagem deve ser tentada de novo.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) error {
	var env events.Envelope
	err := json.Unmarshal(m.Value, &env)
	if err == nil && env.EventID == "" {
		err = errNoEventID
	}
	if err != nil {
		p.Log.Warn("invalid message", zap.Int64("offset", m.Offset), zap.Error(err))
		p.fail("decode")
		return p.deadLetter(ctx, m, err)
	}

	if p.OnConsumed != nil {
		p.OnConsumed(env.Type)
	}

	if p.Cache != nil && env.Type != events.TypeBetPlaced {
		p.Cache.Invalidate(ctx, env.EventID)
	}

	pctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	update := events.MarketUpdate{Type: env.Type, EventID: env.EventID, Payload: env.Payload}
	n, err := p.Pub.Publish(pctx, update)
	if err != nil {
		p.fail("broadcast")
		return err
	}
	p.Log.Debug("market update broadcast",
		zap.String("type", env.Type),
		zap.String("event_id", env.EventID),
		zap.Int64("receivers", n),
	)
	if p.OnBroadcast != nil {
		p.OnBroadcast()
	}
	return nil
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, cause error) error {
	if p.DLQ == nil {
		return nil
	}
	dlq := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: append(m.Headers,
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "original_topic", Value: []byte(m.Topic)},
		),
		Time: time.Now(),
	}
	if err := p.DLQ.WriteMessages(ctx, dlq); err != nil {
		p.fail("dlq")
		return err
	}
	if p.OnDLQ != nil {
		p.OnDLQ()
	}
	return nil
}

func (p *Processor) retryDelay() time.Duration {
	if p.RetryDelay <= 0 {
		return 500 * time.Millisecond
	}
	return p.RetryDelay
}

func (p *Processor) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return p.Timeout
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
