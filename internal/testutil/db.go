// Package testutil builds in-memory databases and wiring for service tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/pipetrade/internal/config"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	"github.com/smallbiznis/pipetrade/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns a private in-memory sqlite database with the engine schema.
// A single connection serializes writers, standing in for row locks.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func Node(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// Registry returns the compiled-in document type registry.
func Registry(t *testing.T) *doctype.Registry {
	t.Helper()
	return RegistryIn(t, config.DefaultTimezone)
}

// RegistryIn returns the compiled-in registry read in the given business
// timezone.
func RegistryIn(t *testing.T, timezone string) *doctype.Registry {
	t.Helper()
	cfg := config.DefaultDocumentsConfig()
	cfg.Timezone = timezone
	registry, err := doctype.NewRegistry(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return registry
}
