package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_quotations",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.Quotation{}, &domain.LineItem{}); err != nil {
					return err
				}
				indexes := []string{
					// Collision safety for the document sequence lives here,
					// not in application code.
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_quotations_document_number ON quotations (document_number) WHERE document_number <> ''`,
					`CREATE INDEX IF NOT EXISTS idx_quotations_status_valid_until ON quotations (status, valid_until)`,
					`CREATE INDEX IF NOT EXISTS idx_quotations_owner_id ON quotations (owner_id)`,
					`CREATE INDEX IF NOT EXISTS idx_line_items_quotation_id ON line_items (quotation_id)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&domain.LineItem{}, &domain.Quotation{})
			},
		},
		{
			ID: "000002_create_access_links",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.AccessLink{}, &domain.PageView{}); err != nil {
					return err
				}
				indexes := []string{
					// At most one active link per quotation.
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_access_links_active_quotation ON access_links (quotation_id) WHERE active`,
					`CREATE INDEX IF NOT EXISTS idx_access_links_quotation_id ON access_links (quotation_id)`,
					`CREATE INDEX IF NOT EXISTS idx_page_views_access_link_id ON page_views (access_link_id)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&domain.PageView{}, &domain.AccessLink{})
			},
		},
		{
			ID: "000003_create_one_time_passcodes",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.OneTimePasscode{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_passcodes_link_email_unused ON one_time_passcodes (access_link_id, email, created_at DESC) WHERE NOT used`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&domain.OneTimePasscode{})
			},
		},
		{
			ID: "000004_create_status_history",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.StatusHistoryEntry{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_status_history_quotation_created ON status_history_entries (quotation_id, created_at)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&domain.StatusHistoryEntry{})
			},
		},
		{
			ID: "000005_create_discount_approvals",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.DiscountApproval{}); err != nil {
					return err
				}
				// One open approval per quotation.
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_approvals_pending_quotation ON discount_approvals (quotation_id) WHERE status = 'PENDING'`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&domain.DiscountApproval{})
			},
		},
		{
			ID: "000006_create_dispatch_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.DispatchAttempt{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_quotation_id ON dispatch_attempts (quotation_id)`,
					`CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_retry ON dispatch_attempts (next_retry_at) WHERE status = 'FAILED' AND next_retry_at IS NOT NULL`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&domain.DispatchAttempt{})
			},
		},
	})

	return m.Migrate()
}
