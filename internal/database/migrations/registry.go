package migrations

import (
	"gorm.io/gorm"

	"github.com/jmylchreest/loopcast/internal/models"
)

// AllMigrations returns every migration in version order.
//   - 001: stream_definitions
//   - 002: session_histories
func AllMigrations() []Migration {
	return []Migration{
		migration001StreamDefinitions(),
		migration002SessionHistory(),
	}
}

func migration001StreamDefinitions() Migration {
	return Migration{
		Version:     "001",
		Description: "Create stream_definitions table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.StreamDefinition{})
		},
		Down: func(tx *gorm.DB) error {
			return dropIfExists(tx, "stream_definitions")
		},
	}
}

func migration002SessionHistory() Migration {
	return Migration{
		Version:     "002",
		Description: "Create session_histories table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.SessionHistory{})
		},
		Down: func(tx *gorm.DB) error {
			return dropIfExists(tx, "session_histories")
		},
	}
}

func dropIfExists(tx *gorm.DB, table string) error {
	if !tx.Migrator().HasTable(table) {
		return nil
	}
	return tx.Migrator().DropTable(table)
}
