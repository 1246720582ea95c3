package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mdscolour/clawfactory/internal/domain"
)

// MigrateDB creates or updates every table the marketplace uses.
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("setup: cannot migrate database with nil DB connection")
	}

	err := db.AutoMigrate(
		&domain.User{},
		&domain.Copy{},
		&domain.VersionEntry{},
		&domain.ForkRecord{},
		&domain.Rating{},
		&domain.Comment{},
		&domain.Star{},
		&domain.Contributor{},
		&domain.ChangeEntry{},
	)
	if err != nil {
		return fmt.Errorf("setup: auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed")
	return nil
}
