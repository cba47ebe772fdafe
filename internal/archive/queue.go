package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"statchat/internal/util"
	"statchat/pkg/domain"
)

type exchangePayload struct {
	SessionID string           `json:"sessionId"`
	Messages  []domain.Message `json:"messages"`
}

// RedisExchangeQueue moves completed exchanges through a Redis stream with a
// consumer group, so archiving survives restarts and slow databases.
type RedisExchangeQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	maxLen       int64
	block        time.Duration
	maxRetries   int
	once         sync.Once
}

// QueueConfig configures the exchange queue. Zero values get sane defaults.
type QueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	MaxLen     int64
	Block      time.Duration
	MaxRetries int
}

// NewRedisExchangeQueue validates config and connects the client lazily.
func NewRedisExchangeQueue(cfg QueueConfig) (*RedisExchangeQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "archivers"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RedisExchangeQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		maxLen:       maxLen,
		block:        block,
		maxRetries:   maxRetries,
	}, nil
}

// Enqueue publishes one exchange to the stream.
func (q *RedisExchangeQueue) Enqueue(ctx context.Context, sessionID string, msgs []domain.Message) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session id required")
	}
	if len(msgs) == 0 {
		return nil
	}
	data, err := json.Marshal(exchangePayload{SessionID: sessionID, Messages: msgs})
	if err != nil {
		return err
	}
	return q.add(ctx, data, 0)
}

func (q *RedisExchangeQueue) add(ctx context.Context, payload []byte, attempts int) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"payload":  string(payload),
			"attempts": strconv.Itoa(attempts),
		},
	}).Err()
}

// Run consumes the stream with the given concurrency until ctx ends, feeding
// each decoded exchange to handler. Handler failures are retried up to
// maxRetries by requeueing.
func (q *RedisExchangeQueue) Run(ctx context.Context, concurrency int, handler func(context.Context, string, []domain.Message) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		g.Go(func() error {
			q.consumeLoop(gctx, consumer, handler)
			return nil
		})
	}
	return g.Wait()
}

func (q *RedisExchangeQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			util.LoggerFromContext(ctx).Warn("create consumer group", "stream", q.stream, "err", err)
		}
	})
}

func (q *RedisExchangeQueue) consumeLoop(ctx context.Context, consumer string, handler func(context.Context, string, []domain.Message) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    q.block,
		}).Result()
		if err != nil {
			if err == redis.Nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.block):
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisExchangeQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler func(context.Context, string, []domain.Message) error) {
	raw, _ := msg.Values["payload"].(string)
	attemptsStr, _ := msg.Values["attempts"].(string)
	attempts, _ := strconv.Atoi(attemptsStr)

	var payload exchangePayload
	if raw == "" || json.Unmarshal([]byte(raw), &payload) != nil || payload.SessionID == "" {
		// Poison message; drop it.
		q.ackAndDel(ctx, msg.ID)
		return
	}

	if err := handler(ctx, payload.SessionID, payload.Messages); err != nil {
		util.LoggerFromContext(ctx).Error("archive handler failed",
			"session_id", payload.SessionID, "attempts", attempts+1, "err", err)
		if attempts+1 < q.maxRetries {
			if addErr := q.add(ctx, []byte(raw), attempts+1); addErr != nil {
				// Leave the message pending so another consumer can claim it.
				return
			}
		}
	}
	q.ackAndDel(ctx, msg.ID)
}

func (q *RedisExchangeQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}
