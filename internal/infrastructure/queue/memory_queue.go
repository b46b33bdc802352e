package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
)

type scheduled struct {
	msg entity.PendingSystemMessage
	at  time.Time
}

// MemoryRetryQueue используется, когда Redis не настроен (локальная разработка, тесты).
// Содержимое теряется при перезапуске.
type MemoryRetryQueue struct {
	mu    sync.Mutex
	items []scheduled
}

func NewMemoryRetryQueue() *MemoryRetryQueue {
	return &MemoryRetryQueue{}
}

func (q *MemoryRetryQueue) Enqueue(_ context.Context, msg entity.PendingSystemMessage, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, scheduled{msg: msg, at: at})
	sort.SliceStable(q.items, func(i, j int) bool { return q.items[i].at.Before(q.items[j].at) })
	return nil
}

func (q *MemoryRetryQueue) Dequeue(_ context.Context, now time.Time) (*entity.PendingSystemMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || q.items[0].at.After(now) {
		return nil, nil
	}
	msg := q.items[0].msg
	q.items = q.items[1:]
	return &msg, nil
}

func (q *MemoryRetryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *MemoryRetryQueue) Ping(context.Context) error {
	return nil
}
