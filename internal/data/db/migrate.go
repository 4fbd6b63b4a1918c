package db

import (
	"gorm.io/gorm"

	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
)

func AutoMigrateAll(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&types.Entity{},
		&types.Relation{},
		&types.GraphSyncEvent{},
	)
}

func (s *PostgresService) AutoMigrateAll() error {
	return AutoMigrateAll(s.db)
}
