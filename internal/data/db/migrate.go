package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.RollupRecord{},
		&types.SourceDocument{},
	); err != nil {
		return err
	}
	return EnsureIndexes(db)
}

// EnsureIndexes adds the Postgres-only indexes AutoMigrate cannot express.
func EnsureIndexes(db *gorm.DB) error {
	if db.Dialector.Name() != DriverPostgres {
		return nil
	}
	stmts := []struct{ name, sql string }{
		{"idx_source_documents_collection_id", `CREATE INDEX IF NOT EXISTS idx_source_documents_collection_id ON source_documents(collection, id);`},
		{"idx_source_documents_doc", `CREATE INDEX IF NOT EXISTS idx_source_documents_doc ON source_documents USING GIN (doc jsonb_path_ops);`},
	}
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return nil
}
