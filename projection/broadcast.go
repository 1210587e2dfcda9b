package projection

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"roadwatch/domain"
)

// Broadcaster publishes one message per updated incident on the real-time
// channel, payload = the current summary snapshot, after the read model
// committed. The publisher calls sinks sequentially per incident, so
// per-incident messages keep commit order.
type Broadcaster struct {
	redis   *redis.Client
	channel string
}

func NewBroadcaster(client *redis.Client, channel string) *Broadcaster {
	return &Broadcaster{redis: client, channel: channel}
}

func (b *Broadcaster) Name() string { return "broadcast" }

func (b *Broadcaster) Apply(ctx context.Context, sum domain.Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, b.channel, data).Err()
}
