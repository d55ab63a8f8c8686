package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// seedLockKey — ключ advisory lock для заполнения демо-данными.
const seedLockKey int64 = 0x6f7264657273

// AdvisoryLock — транзакционный advisory lock PostgreSQL.
// Блокировка живёт в отдельной транзакции и снимается при её завершении,
// поэтому не остаётся за соединением, вернувшимся в пул.
type AdvisoryLock struct {
	db  *sql.DB
	key int64
}

// NewAdvisoryLock создаёт блокировку с заданным ключом.
func NewAdvisoryLock(store *Store, key int64) *AdvisoryLock {
	lock := &AdvisoryLock{key: key}
	if store != nil {
		lock.db = store.db
	}
	return lock
}

// NewSeedLock возвращает блокировку, которой реплики сериализуют Seed.
func NewSeedLock(store *Store) *AdvisoryLock {
	return NewAdvisoryLock(store, seedLockKey)
}

func lockQuery(key int64) sq.SelectBuilder {
	return psql.Select().Column(sq.Expr("pg_advisory_xact_lock(?)", key))
}

// WithLock ждёт блокировку и выполняет fn, удерживая её.
func (l *AdvisoryLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if l == nil || l.db == nil {
		return errors.New("postgres advisory lock is not initialized")
	}

	query, args, err := lockQuery(l.key).ToSql()
	if err != nil {
		return fmt.Errorf("build advisory lock query: %w", err)
	}

	return withTx(ctx, l.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("acquire advisory lock %d: %w", l.key, err)
		}
		return fn(ctx)
	})
}
