package auditlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/schedule-dispatch/internal/model"
)

const logKey = "dispatch:audit_log"

// RedisAuditLog keeps entries in a Redis list, newest first, trimmed to cap.
type RedisAuditLog struct {
	rdb *redis.Client
	cap int64
}

func NewRedisAuditLog(rdb *redis.Client, cap int64) *RedisAuditLog {
	if cap <= 0 {
		cap = 1000
	}
	return &RedisAuditLog{rdb: rdb, cap: cap}
}

func (l *RedisAuditLog) Record(ctx context.Context, entry model.LogEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}

	pipe := l.rdb.TxPipeline()
	pipe.LPush(ctx, logKey, b)
	pipe.LTrim(ctx, logKey, 0, l.cap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record log entry: %w", err)
	}
	return nil
}

func (l *RedisAuditLog) List(ctx context.Context) ([]model.LogEntry, error) {
	raw, err := l.rdb.LRange(ctx, logKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}

	entries := make([]model.LogEntry, 0, len(raw))
	for _, r := range raw {
		var e model.LogEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *RedisAuditLog) Clear(ctx context.Context) error {
	if err := l.rdb.Del(ctx, logKey).Err(); err != nil {
		return fmt.Errorf("clear log: %w", err)
	}
	return nil
}
