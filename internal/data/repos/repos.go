package repos

import (
	"gorm.io/gorm"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos/kg"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
)

type EntityRepo = kg.EntityRepo
type RelationRepo = kg.RelationRepo
type SyncEventRepo = kg.SyncEventRepo

func NewEntityRepo(db *gorm.DB, baseLog *logger.Logger) EntityRepo {
	return kg.NewEntityRepo(db, baseLog)
}

func NewRelationRepo(db *gorm.DB, baseLog *logger.Logger) RelationRepo {
	return kg.NewRelationRepo(db, baseLog)
}

func NewSyncEventRepo(db *gorm.DB, baseLog *logger.Logger) SyncEventRepo {
	return kg.NewSyncEventRepo(db, baseLog)
}
