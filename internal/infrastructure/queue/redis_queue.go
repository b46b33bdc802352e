package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

// DefaultRetryKey ключ sorted set, score: время следующей попытки в миллисекундах.
const DefaultRetryKey = "escrow:message_retry"

// RedisRetryQueue очередь отложенных публикаций системных сообщений.
type RedisRetryQueue struct {
	client *redis.Client
	key    string
}

func NewRedisRetryQueue(client *redis.Client, key string) *RedisRetryQueue {
	if key == "" {
		key = DefaultRetryKey
	}
	return &RedisRetryQueue{client: client, key: key}
}

// NewRedisClient создаёт клиента и проверяет соединение.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (q *RedisRetryQueue) Enqueue(ctx context.Context, msg entity.PendingSystemMessage, at time.Time) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось сериализовать сообщение")
	}
	if err := q.client.ZAdd(ctx, q.key, redis.Z{Score: float64(at.UnixMilli()), Member: data}).Err(); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось поставить сообщение в очередь")
	}
	return nil
}

// Dequeue забирает одно сообщение, срок которого наступил. ZREM делает
// захват атомарным: если два воркера выбрали один элемент, получит его один.
func (q *RedisRetryQueue) Dequeue(ctx context.Context, now time.Time) (*entity.PendingSystemMessage, error) {
	vals, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось прочитать очередь")
	}
	if len(vals) == 0 {
		return nil, nil
	}

	removed, err := q.client.ZRem(ctx, q.key, vals[0]).Result()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось прочитать очередь")
	}
	if removed == 0 {
		return nil, nil
	}

	var msg entity.PendingSystemMessage
	if err := json.Unmarshal([]byte(vals[0]), &msg); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "повреждённое сообщение в очереди")
	}
	return &msg, nil
}

func (q *RedisRetryQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}

func (q *RedisRetryQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
