package migration

import (
	"gorm.io/gorm"

	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
)

// DefaultSteps returns the schema history of the relational store.
func DefaultSteps() []Step {
	return []Step{
		{
			Version:     1,
			Description: "create local, synced and attachment tables",
			Up: func(tx *gorm.DB) error {
				return tx.AutoMigrate(models.All()...)
			},
		},
		{
			Version:     2,
			Description: "index ready attachments",
			Up: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_attachments_ready
					ON attachments(queue, state, next_attempt_at)`).Error
			},
		},
		{
			Version:     3,
			Description: "index assets by quest order",
			Up: func(tx *gorm.DB) error {
				for _, table := range []string{models.TableAssetLocal, models.TableAssetSynced} {
					stmt := "CREATE INDEX IF NOT EXISTS idx_" + table + "_order ON " + table + "(quest_id, order_index)"
					if err := tx.Exec(stmt).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
