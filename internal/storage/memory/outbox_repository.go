package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// outboxRecord хранит pending-сообщение и время постановки.
type outboxRecord struct {
	msg       domain.OutboxMessage
	createdAt time.Time
	// pos — позиция записи в seq.
	pos int
}

// OutboxRepository — in-memory хранилище outbox с FIFO-порядком выдачи.
// Хранит только pending-сообщения: отправленные и проваленные удаляются сразу,
// в памяти остаются лишь счётчики.
type OutboxRepository struct {
	mu      sync.RWMutex
	records map[string]*outboxRecord
	// seq может содержать устаревшие id; актуальна только позиция rec.pos.
	seq    []string
	sent   int
	failed int
	now    func() time.Time
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		records: make(map[string]*outboxRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := r.now()
	if rec, exists := r.records[msg.ID]; exists {
		rec.msg = msg
		rec.createdAt = now
	} else {
		r.records[msg.ID] = &outboxRecord{msg: msg, createdAt: now, pos: len(r.seq)}
		r.seq = append(r.seq, msg.ID)
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке постановки.
func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.OutboxMessage, 0, limit)
	for pos, id := range r.seq {
		rec, ok := r.records[id]
		if !ok || rec.pos != pos {
			continue
		}
		result = append(result, rec.msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxStats{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.OutboxStats{PendingCount: len(r.records)}
	for _, rec := range r.records {
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

// MarkSent удаляет событие после успешной публикации.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.complete(ctx, id, &r.sent)
}

// MarkFailed удаляет событие, для которого исчерпаны попытки публикации.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.complete(ctx, id, &r.failed)
}

func (r *OutboxRepository) complete(ctx context.Context, id string, counter *int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return domain.ErrOutboxPublish
	}
	delete(r.records, id)
	*counter++
	r.compact()
	return nil
}

// compact убирает из seq удалённые id, когда их становится больше половины.
func (r *OutboxRepository) compact() {
	if len(r.seq) < 2*len(r.records)+16 {
		return
	}
	live := make([]string, 0, len(r.records))
	for pos, id := range r.seq {
		if rec, ok := r.records[id]; ok && rec.pos == pos {
			rec.pos = len(live)
			live = append(live, id)
		}
	}
	r.seq = live
}

// Completed возвращает число отправленных и проваленных сообщений.
func (r *OutboxRepository) Completed() (sent, failed int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sent, r.failed
}

// AllPending возвращает копию всех pending-сообщений (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.OutboxMessage, 0, len(r.records))
	for pos, id := range r.seq {
		if rec, ok := r.records[id]; ok && rec.pos == pos {
			result = append(result, rec.msg)
		}
	}
	return result
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
