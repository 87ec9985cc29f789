package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/radieske/roulette-vrf-client/internal/shared/kafka"
	"github.com/radieske/roulette-vrf-client/pkg/contracts/events"
)

// KafkaPublisher publica wager_settled e, opcionalmente, envia para a DLQ
type KafkaPublisher struct {
	Settled *kafkago.Writer
	DLQ     *kafkago.Writer
}

func NewKafkaPublisher(settled, dlq *kafkago.Writer) *KafkaPublisher {
	return &KafkaPublisher{Settled: settled, DLQ: dlq}
}

func (p *KafkaPublisher) PublishWagerSettled(ctx context.Context, e events.WagerSettled) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.Settled, e.Wager, b)
}

// PublishDLQ reenvia a mensagem original; sem writer de DLQ é no-op
func (p *KafkaPublisher) PublishDLQ(ctx context.Context, key string, payload []byte) error {
	if p.DLQ == nil {
		return nil
	}
	return kafka.WriteJSON(ctx, p.DLQ, key, payload)
}
