package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

const DefaultRunChannel = "rollup:runs"

// RunBus publishes finished run summaries and forwards them to subscribers.
type RunBus interface {
	Publish(ctx context.Context, summary types.RunSummary) error
	StartForwarder(ctx context.Context, onMsg func(types.RunSummary)) error
}

type runBus struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
}

func NewRunBus(rdb goredis.UniversalClient, channel string, log *logger.Logger) (RunBus, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultRunChannel
	}
	return &runBus{
		log:     log.With("service", "RedisRunBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *runBus) Publish(ctx context.Context, summary types.RunSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *runBus) StartForwarder(ctx context.Context, onMsg func(types.RunSummary)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var summary types.RunSummary
				if err := json.Unmarshal([]byte(m.Payload), &summary); err != nil {
					b.log.Warn("bad run summary payload", "error", err)
					continue
				}
				onMsg(summary)
			}
		}
	}()

	return nil
}
