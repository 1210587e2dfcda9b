package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// UpdateBroker fans incident update payloads out to SSE subscribers.
// Fan-out across incidents is unordered, but payloads for one incident are
// delivered in the order they were broadcast.
type UpdateBroker struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewUpdateBroker() *UpdateBroker {
	return &UpdateBroker{subs: make(map[chan []byte]struct{})}
}

func (b *UpdateBroker) subscribe() chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *UpdateBroker) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Notify delivers a payload to every subscriber. Slow subscribers miss
// messages rather than blocking the fan-out.
func (b *UpdateBroker) Notify(payload []byte) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- payload:
		default:
		}
	}
	b.mu.Unlock()
}

// SubscribeUpdates listens on the real-time Redis channel and forwards each
// broadcast summary to connected SSE clients. It reconnects when the
// subscription drops, until ctx is cancelled.
func SubscribeUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, broker *UpdateBroker) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				broker.Notify([]byte(msg.Payload))
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func streamUpdates(broker *UpdateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return nil
			case payload := <-ch:
				if _, err := c.Response().Write([]byte("data: ")); err != nil {
					return err
				}
				if _, err := c.Response().Write(payload); err != nil {
					return err
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return err
				}
				flusher.Flush()
			}
		}
	}
}
