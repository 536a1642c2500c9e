package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/wookja-0/messenger-service/internal/domain"
)

// MigrateDB reconciles the schema this service reads and writes. The user,
// room and membership tables are owned by the other services; AutoMigrate is
// idempotent against their existing definitions and only creates what is
// missing in a fresh environment.
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	err := db.AutoMigrate(
		&domain.User{},
		&domain.Room{},
		&domain.Membership{},
		&domain.Message{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate chat tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
