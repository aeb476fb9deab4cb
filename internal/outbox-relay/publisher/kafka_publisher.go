package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedkafka "github.com/radieske/prediction-market-poc/internal/shared/kafka"
)

// KafkaPublisher encapsula um writer Kafka sem tópico fixo: cada mensagem informa o seu.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher inicializa o writer com timeouts e hash por chave.
// Em ambientes local/dev garante a existência dos tópicos informados.
func NewKafkaPublisher(brokers []string, env string, log *zap.Logger, topics ...string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not provided")
	}

	if env == "local" || env == "dev" {
		if err := ensureTopics(brokers[0], log, topics...); err != nil {
			log.Warn("could not ensure kafka topics", zap.Error(err))
		}
	}

	writer := sharedkafka.NewWriter(strings.Join(brokers, ","), "")
	return &KafkaPublisher{writer: writer, log: log}, nil
}

// ensureTopics usa o controller do cluster para emitir o CreateTopics
func ensureTopics(broker string, log *zap.Logger, topics ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}
	cconn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer cconn.Close()

	for _, t := range topics {
		// partições/replicação compatíveis com single-broker
		err := cconn.CreateTopics(kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
		switch {
		case err == nil:
			log.Info("kafka topic created", zap.String("topic", t))
		case strings.Contains(err.Error(), "already exists"):
		default:
			log.Warn("failed to create kafka topic", zap.String("topic", t), zap.Error(err))
		}
	}
	return nil
}

// Publish envia uma mensagem; a chave (id do evento) mantém a ordem por partição
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	p.log.Debug("published", zap.String("topic", topic), zap.String("key", key))
	return nil
}

// Close finaliza o writer e libera recursos associados.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
