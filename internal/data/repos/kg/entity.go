package kg

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
)

type EntityRepo interface {
	Create(dbc dbctx.Context, rows []*types.Entity) ([]*types.Entity, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Entity, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Entity, error)
	GetByDocument(dbc dbctx.Context, documentID string) ([]*types.Entity, error)
	ListAll(dbc dbctx.Context) ([]*types.Entity, error)

	// SearchByName is a case-insensitive substring match on name, valid
	// entities only, ordered by confidence descending.
	SearchByName(dbc dbctx.Context, query string, limit int) ([]*types.Entity, error)

	Update(dbc dbctx.Context, row *types.Entity) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error

	Count(dbc dbctx.Context) (int64, error)
}

type entityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntityRepo(db *gorm.DB, baseLog *logger.Logger) EntityRepo {
	return &entityRepo{db: db, log: baseLog.With("repo", "EntityRepo")}
}

func (r *entityRepo) Create(dbc dbctx.Context, rows []*types.Entity) ([]*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Entity{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *entityRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Entity, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *entityRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Entity
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entityRepo) GetByDocument(dbc dbctx.Context, documentID string) ([]*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Entity
	if documentID == "" {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entityRepo) ListAll(dbc dbctx.Context) ([]*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Entity
	if err := t.WithContext(dbc.Ctx).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entityRepo) SearchByName(dbc dbctx.Context, query string, limit int) ([]*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Entity
	query = strings.TrimSpace(query)
	if query == "" {
		return out, nil
	}
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(query) + "%"
	if err := t.WithContext(dbc.Ctx).
		Where("LOWER(name) LIKE ?", pattern).
		Where("is_valid = ?", true).
		Order("confidence DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entityRepo) Update(dbc dbctx.Context, row *types.Entity) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Save(row).Error
}

func (r *entityRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.Entity{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *entityRepo) Count(dbc dbctx.Context) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).Model(&types.Entity{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
