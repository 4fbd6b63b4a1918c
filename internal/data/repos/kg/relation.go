package kg

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
)

type RelationRepo interface {
	Create(dbc dbctx.Context, rows []*types.Relation) ([]*types.Relation, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Relation, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Relation, error)
	GetByDocument(dbc dbctx.Context, documentID string) ([]*types.Relation, error)
	GetByEntityID(dbc dbctx.Context, entityID uuid.UUID) ([]*types.Relation, error)
	ListAll(dbc dbctx.Context) ([]*types.Relation, error)

	Update(dbc dbctx.Context, row *types.Relation) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error

	Count(dbc dbctx.Context) (int64, error)
}

type relationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationRepo(db *gorm.DB, baseLog *logger.Logger) RelationRepo {
	return &relationRepo{db: db, log: baseLog.With("repo", "RelationRepo")}
}

func (r *relationRepo) Create(dbc dbctx.Context, rows []*types.Relation) ([]*types.Relation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Relation{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *relationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Relation, error) {
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

func (r *relationRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Relation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Relation
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *relationRepo) GetByDocument(dbc dbctx.Context, documentID string) ([]*types.Relation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Relation
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

func (r *relationRepo) GetByEntityID(dbc dbctx.Context, entityID uuid.UUID) ([]*types.Relation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Relation
	if entityID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("source_entity_id = ? OR target_entity_id = ?", entityID, entityID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *relationRepo) ListAll(dbc dbctx.Context) ([]*types.Relation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Relation
	if err := t.WithContext(dbc.Ctx).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *relationRepo) Update(dbc dbctx.Context, row *types.Relation) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Save(row).Error
}

func (r *relationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Relation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *relationRepo) Count(dbc dbctx.Context) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).Model(&types.Relation{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
