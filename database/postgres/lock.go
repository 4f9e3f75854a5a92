package postgres

import (
	"context"
	"database/sql"
	"hash/fnv"
)

// LockKey hashes an advisory-lock name down to the 64-bit key
// pg_advisory_lock expects. The same name always yields the same key,
// so concurrent invocations sharing a name serialize on it.
func LockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// TryAdvisoryLock attempts a non-blocking session-level advisory lock
func TryAdvisoryLock(ctx context.Context, db *sql.DB, key int64) (bool, error) {
	var acquired bool
	err := db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired)
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// ReleaseAdvisoryLock releases a session-level advisory lock
func ReleaseAdvisoryLock(ctx context.Context, db *sql.DB, key int64) error {
	var released bool
	return db.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&released)
}
