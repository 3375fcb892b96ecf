package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "retroboard:events"

const (
	reconnectDelay    = time.Second
	maxReconnectDelay = 30 * time.Second
	healthCheckPeriod = time.Minute
)

// RedisBus fans events out through a Redis pub/sub channel so every worker replica
// sees every change. Published events reach local handlers through the subscription.
type RedisBus struct {
	pool     *redis.Pool
	channel  string
	handlers handlers

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRedisBus connects to the Redis server at url and starts the subscriber loop.
func NewRedisBus(ctx context.Context, url, channel string) (*RedisBus, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	pool := &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 4 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, url)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	return newRedisBus(ctx, pool, channel)
}

func newRedisBus(ctx context.Context, pool *redis.Pool, channel string) (*RedisBus, error) {
	conn, err := pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	_, err = conn.Do("PING")
	conn.Close()
	if err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		pool:    pool,
		channel: channel,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go b.run(runCtx)

	log.Info().Str("channel", channel).Msg("Redis event bus started")
	return b, nil
}

// Publish sends ev to the channel.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("get redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := redis.DoContext(conn, ctx, "PUBLISH", b.channel, payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe registers h for every event received from the channel.
func (b *RedisBus) Subscribe(h Handler) {
	b.handlers.add(h)
}

// Close stops the subscriber loop and closes the pool.
func (b *RedisBus) Close() error {
	var err error
	b.once.Do(func() {
		b.cancel()
		<-b.done
		err = b.pool.Close()
	})
	return err
}

// run keeps a subscription open, reconnecting with backoff until ctx is cancelled.
func (b *RedisBus) run(ctx context.Context) {
	defer close(b.done)

	delay := reconnectDelay
	for {
		err := b.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Dur("retry_in", delay).Msg("Redis subscription lost")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// listen subscribes once and delivers messages until the connection fails or ctx ends.
func (b *RedisBus) listen(ctx context.Context) error {
	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	psc := redis.PubSubConn{Conn: conn}
	defer psc.Close()

	if err := psc.Subscribe(b.channel); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		for {
			switch msg := psc.ReceiveContext(ctx).(type) {
			case redis.Message:
				b.dispatch(msg.Data)
			case redis.Subscription:
				if msg.Count == 0 {
					errCh <- errors.New("unsubscribed")
					return
				}
				log.Debug().Str("channel", msg.Channel).Msg("Subscribed to event channel")
			case error:
				errCh <- msg
				return
			}
		}
	}()

	ticker := time.NewTicker(healthCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = psc.Unsubscribe()
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-ticker.C:
			if err := psc.Ping(""); err != nil {
				return err
			}
		}
	}
}

func (b *RedisBus) dispatch(payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Warn().Err(err).Msg("Dropping malformed event")
		return
	}
	b.handlers.deliver(ev)
}
