package wal

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNew_CreatesDirectory(t *testing.T) {
	walDir := filepath.Join(t.TempDir(), "wal")

	w, err := New(walDir, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}
	if w.Dir() != walDir {
		t.Errorf("Dir() = %s, хотели %s", w.Dir(), walDir)
	}
	if info, err := os.Stat(walDir); err != nil || !info.IsDir() {
		t.Fatalf("директория WAL не создана: %v", err)
	}
}

func TestBeginCommit(t *testing.T) {
	w, err := New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}

	entry, err := w.Begin(OpCompress, "document", "meeting_1_1.txt", "meeting_1_1.txt.gz")
	if err != nil {
		t.Fatalf("Begin() ошибка: %v", err)
	}
	if entry.TransactionID == "" || entry.Status != StatusPending {
		t.Fatalf("неверная запись: %+v", entry)
	}

	if err := w.Commit(entry.TransactionID); err != nil {
		t.Fatalf("Commit() ошибка: %v", err)
	}

	got, err := w.Get(entry.TransactionID)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.Status != StatusCommitted {
		t.Errorf("Status = %s, хотели %s", got.Status, StatusCommitted)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt не установлен")
	}
	if got.Source != "meeting_1_1.txt" || got.Target != "meeting_1_1.txt.gz" || got.Namespace != "document" {
		t.Errorf("поля записи не сохранены: %+v", got)
	}

	// Повторное закрытие запрещено
	if err := w.Rollback(entry.TransactionID); err == nil {
		t.Error("Rollback() закрытой транзакции должен вернуть ошибку")
	}
}

func TestPendingAndPrune(t *testing.T) {
	w, err := New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}

	open, _ := w.Begin(OpCompress, "document", "a.txt", "a.txt.gz")
	done, _ := w.Begin(OpCompress, "document", "b.txt", "b.txt.gz")
	rolled, _ := w.Begin(OpCompress, "document", "c.txt", "c.txt.gz")
	if err := w.Commit(done.TransactionID); err != nil {
		t.Fatal(err)
	}
	if err := w.Rollback(rolled.TransactionID); err != nil {
		t.Fatal(err)
	}

	pending, err := w.Pending()
	if err != nil {
		t.Fatalf("Pending() ошибка: %v", err)
	}
	if len(pending) != 1 || pending[0].TransactionID != open.TransactionID {
		t.Fatalf("Pending() = %d записей, хотели одну незавершённую", len(pending))
	}

	cleaned, err := w.Prune()
	if err != nil {
		t.Fatalf("Prune() ошибка: %v", err)
	}
	if cleaned != 2 {
		t.Errorf("Prune() = %d, хотели 2", cleaned)
	}
	if _, err := w.Get(open.TransactionID); err != nil {
		t.Errorf("незавершённая запись удалена: %v", err)
	}
}

func TestPending_SkipsCorrupted(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.wal.json"), []byte("{не json"), 0o640); err != nil {
		t.Fatal(err)
	}

	pending, err := w.Pending()
	if err != nil {
		t.Fatalf("Pending() ошибка: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Pending() = %d, хотели 0", len(pending))
	}
}
