package repository

import (
	"fmt"
	"strings"
	"testing"

	"postflow/internal/config"
	"postflow/internal/database"
	"postflow/pkg/logger"

	"gorm.io/gorm"
)

func init() {
	logger.InitLogger("test")
}

// newTestDB opens a private in-memory database per test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
