package database_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/bigkaa/goartstore/meeting-module/internal/database"
	"github.com/bigkaa/goartstore/meeting-module/internal/database/dbtest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// TestMigrate_Idempotent проверяет, что повторное применение миграций — no-op.
func TestMigrate_Idempotent(t *testing.T) {
	cfg := dbtest.Config(t)

	if err := database.Migrate(cfg, testLogger()); err != nil {
		t.Fatalf("Migrate() ошибка: %v", err)
	}
	if err := database.Migrate(cfg, testLogger()); err != nil {
		t.Fatalf("повторный Migrate() ошибка: %v", err)
	}
}

// TestSchema проверяет наличие таблиц после миграций.
func TestSchema(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()

	for _, table := range []string{"users", "meetings", "meeting_logs", "blob_owners"} {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table,
		).Scan(&exists)
		if err != nil {
			t.Fatalf("ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("таблица %s не создана", table)
		}
	}
}

func TestReadinessChecker(t *testing.T) {
	pool := dbtest.Pool(t)

	status, msg := database.NewReadinessChecker(pool).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() = %s (%s), хотели ok", status, msg)
	}
}
