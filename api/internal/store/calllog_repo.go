package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"grader-proxy/api/internal/calllog"
)

// execer: то, что нужно репозиторию от *sql.DB.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type CallLogRepo struct{ DB execer }

func NewCallLogRepo(db *sql.DB) *CallLogRepo { return &CallLogRepo{DB: db} }

const createCallLog = `
create table if not exists ai_call_log (
  id             uuid primary key,
  created_at     timestamptz not null default now(),
  task_type      text not null,
  model_id       text not null,
  provider       text not null default '',
  prompt         text not null default '',
  response       text not null default '',
  normalized     jsonb,
  started_at     timestamptz not null,
  duration_ms    bigint not null,
  prompt_bytes   integer not null default 0,
  response_bytes integer not null default 0,
  image_count    integer not null default 0,
  error          text not null default ''
)`

// Migrate создаёт таблицу журнала, если её нет.
func (r *CallLogRepo) Migrate(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, createCallLog)
	return err
}

// Write сохраняет одну запись. Нормализованный объект кладётся в jsonb,
// если он не сериализуется, колонка остаётся null.
func (r *CallLogRepo) Write(ctx context.Context, rec calllog.Record) error {
	var normalized []byte
	if rec.Normalized != nil {
		if js, err := json.Marshal(rec.Normalized); err == nil {
			normalized = js
		}
	}
	const q = `
insert into ai_call_log (
  id, task_type, model_id, provider,
  prompt, response, normalized,
  started_at, duration_ms, prompt_bytes, response_bytes, image_count, error
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.DB.ExecContext(ctx, q,
		rec.ID.String(), rec.TaskType, rec.ModelID, rec.Provider,
		rec.Prompt, rec.Response, normalized,
		rec.StartedAt, rec.Duration.Milliseconds(), rec.PromptBytes, rec.ResponseBytes, rec.ImageCount, rec.Err,
	)
	if err != nil {
		return fmt.Errorf("insert ai_call_log: %w", err)
	}
	return nil
}

// PurgeOlderThan удаляет старые записи журнала, чтобы не раздувать БД.
func (r *CallLogRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	const q = `delete from ai_call_log where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
