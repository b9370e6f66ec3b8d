package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"github.com/sakif/voteboard/internal/metrics"
	"github.com/sakif/voteboard/internal/model"
)

// RedisRelay lets several server instances share one set of viewers' updates.
//
// Publish sends the event to a Redis channel tagged with this instance's
// origin id. Run subscribes to the same channel and hands events from
// other instances to the local publisher (the hub). Events this instance
// sent itself are skipped: they were already delivered locally.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type relayEnvelope struct {
	Origin string          `json:"origin"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewRedisRelay connects to the Redis server at url (redis://...) and checks
// it with a PING.
func NewRedisRelay(ctx context.Context, url, channel string, m *metrics.Metrics, logger *slog.Logger) (*RedisRelay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("event: parsing redis URL: %w", err)
	}

	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("event: connecting to redis: %w", err)
	}

	return &RedisRelay{
		client:  c,
		channel: channel,
		origin:  xid.New().String(),
		metrics: m,
		logger:  logger,
	}, nil
}

func (r *RedisRelay) Publish(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("event: encoding %s: %w", ev.Name, err)
	}
	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Event: ev.Name, Data: data})
	if err != nil {
		return fmt.Errorf("event: encoding relay envelope: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.metrics.EventsPublished.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("event: publishing %s to redis: %w", ev.Name, err)
	}
	r.metrics.EventsPublished.WithLabelValues("redis", "ok").Inc()
	return nil
}

// Run forwards events from other instances to local until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, local Publisher) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("event: subscribing to %s: %w", r.channel, err)
	}
	r.logger.Info("redis relay subscribed", slog.String("channel", r.channel), slog.String("origin", r.origin))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			ev, forward := r.decode(msg.Payload)
			if !forward {
				continue
			}
			if err := local.Publish(ctx, ev); err != nil {
				r.logger.Warn("relay forward failed", slog.String("event", ev.Name), slog.String("error", err.Error()))
			}
		}
	}
}

// decode turns a channel payload into an event, reporting false for this
// instance's own messages and for payloads it cannot read.
func (r *RedisRelay) decode(payload string) (model.Event, bool) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("dropping malformed relay payload", slog.String("error", err.Error()))
		return model.Event{}, false
	}
	if env.Origin == r.origin || env.Event == "" {
		return model.Event{}, false
	}

	ev := model.Event{Name: env.Event}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		ev.Data = env.Data
	}
	return ev, true
}

func (r *RedisRelay) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("event: closing redis client: %w", err)
	}
	return nil
}
