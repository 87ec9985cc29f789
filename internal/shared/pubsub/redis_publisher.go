package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/roulette-vrf-client/pkg/contracts/events"
)

// RedisBroadcaster publica status de aposta no canal consumido pelo Hub do wager-service
type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel}
}

func (b *RedisBroadcaster) PublishStatus(ctx context.Context, st events.WagerStatus) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}
