package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
// Statements are limited to SQL both PostgreSQL and SQLite accept.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables (retrospectives, cards, card_groups)
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				// AutoMigrate creates tables with all indexes from struct tags
				if err := tx.AutoMigrate(&Retrospective{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Card{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&CardGroup{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("card_groups", "cards", "retrospectives")
			},
		},

		// Migration 002: Member lookup by group, in display order
		{
			ID: "002_cards_group_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_cards_group ON cards(group_id, group_order)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_cards_group`).Error
			},
		},

		// Migration 003: Per-column card ordering
		{
			ID: "003_cards_order_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_cards_column_order ON cards(retrospective_id, board_column, card_order)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_cards_column_order`).Error
			},
		},
	})

	return m.Migrate()
}
