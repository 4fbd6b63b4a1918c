package kg

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
)

type SyncEventRepo interface {
	Append(dbc dbctx.Context, rows []*types.GraphSyncEvent) error

	// GetPending returns unprocessed events whose backoff window has passed
	// and whose attempt budget is not exhausted, oldest first.
	GetPending(dbc dbctx.Context, limit int, maxAttempts int) ([]*types.GraphSyncEvent, error)

	MarkProcessed(dbc dbctx.Context, id uuid.UUID) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, attempts int, lastError string, availableAt time.Time) error

	CountPending(dbc dbctx.Context, maxAttempts int) (int64, error)
	PurgeProcessed(dbc dbctx.Context, olderThan time.Time) (int64, error)
}

type syncEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSyncEventRepo(db *gorm.DB, baseLog *logger.Logger) SyncEventRepo {
	return &syncEventRepo{db: db, log: baseLog.With("repo", "SyncEventRepo")}
}

func (r *syncEventRepo) Append(dbc dbctx.Context, rows []*types.GraphSyncEvent) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *syncEventRepo) GetPending(dbc dbctx.Context, limit int, maxAttempts int) ([]*types.GraphSyncEvent, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 64
	}
	var out []*types.GraphSyncEvent
	if err := t.WithContext(dbc.Ctx).
		Where("processed_at IS NULL").
		Where("attempts < ?", maxAttempts).
		Where("available_at <= ?", time.Now().UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *syncEventRepo) MarkProcessed(dbc dbctx.Context, id uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return t.WithContext(dbc.Ctx).
		Model(&types.GraphSyncEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at": &now,
			"last_error":   "",
			"updated_at":   now,
		}).Error
}

func (r *syncEventRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, attempts int, lastError string, availableAt time.Time) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.GraphSyncEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":     attempts,
			"last_error":   lastError,
			"available_at": availableAt,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *syncEventRepo) CountPending(dbc dbctx.Context, maxAttempts int) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).
		Model(&types.GraphSyncEvent{}).
		Where("processed_at IS NULL").
		Where("attempts < ?", maxAttempts).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *syncEventRepo) PurgeProcessed(dbc dbctx.Context, olderThan time.Time) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(dbc.Ctx).
		Where("processed_at IS NOT NULL AND processed_at < ?", olderThan).
		Delete(&types.GraphSyncEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
