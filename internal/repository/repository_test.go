package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/meeting-module/internal/database/dbtest"
	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

func createUser(t *testing.T, pool *pgxpool.Pool, email string) *model.User {
	t.Helper()
	u := &model.User{FirstName: "Анна", LastName: "Петрова", Email: email, IsActive: true}
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (first_name, last_name, email, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		u.FirstName, u.LastName, u.Email, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		t.Fatalf("вставка пользователя: %v", err)
	}
	return u
}

func createMeeting(t *testing.T, pool *pgxpool.Pool, userID int64, doc string) *model.Meeting {
	t.Helper()
	start := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	m := &model.Meeting{
		Title:        "Планёрка",
		StartDate:    start,
		EndDate:      start.Add(time.Hour),
		DocumentPath: doc,
		UserID:       userID,
	}
	if err := NewMeetingRepository(pool).Create(context.Background(), m); err != nil {
		t.Fatalf("Create meeting: %v", err)
	}
	return m
}

func TestUserRepository(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	u := createUser(t, pool, "anna@example.com")
	if u.ID == 0 {
		t.Fatal("ID не заполнен после вставки")
	}

	got, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.FullName() != "Анна Петрова" {
		t.Errorf("FullName = %q", got.FullName())
	}

	if _, err := repo.GetByID(ctx, 999999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(несуществующий): ошибка = %v, хотели ErrNotFound", err)
	}
}

func TestMeetingLifecycle(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	repo := NewMeetingRepository(pool)

	owner := createUser(t, pool, "owner@example.com")
	other := createUser(t, pool, "other@example.com")
	m := createMeeting(t, pool, owner.ID, "documents/meeting_1_1.pdf")

	if m.IsCancelled || m.CancelledAt != nil {
		t.Fatal("новая встреча должна быть активной")
	}

	// Update активной встречи
	m.Title = "Планёрка (перенос)"
	if err := repo.Update(ctx, m); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Чужой владелец не может отменить
	if _, err := repo.Cancel(ctx, m.ID, other.ID, time.Now()); !errors.Is(err, ErrPrecondition) {
		t.Errorf("Cancel чужой встречи: ошибка = %v, хотели ErrPrecondition", err)
	}

	cancelled, err := repo.Cancel(ctx, m.ID, owner.ID, time.Now())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !cancelled.IsCancelled || cancelled.CancelledAt == nil {
		t.Error("после Cancel флаг и время отмены должны быть установлены")
	}
	if cancelled.Title != "Планёрка (перенос)" {
		t.Errorf("Title = %q после Cancel", cancelled.Title)
	}

	// Повторная отмена и изменение отменённой встречи
	if _, err := repo.Cancel(ctx, m.ID, owner.ID, time.Now()); !errors.Is(err, ErrPrecondition) {
		t.Errorf("повторный Cancel: ошибка = %v, хотели ErrPrecondition", err)
	}
	if err := repo.Update(ctx, m); !errors.Is(err, ErrPrecondition) {
		t.Errorf("Update отменённой: ошибка = %v, хотели ErrPrecondition", err)
	}

	expired, err := repo.ListCancelledBefore(ctx, time.Now().Add(time.Minute), 100)
	if err != nil {
		t.Fatalf("ListCancelledBefore: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != m.ID {
		t.Errorf("ListCancelledBefore вернул %d записей, хотели 1", len(expired))
	}
	early, _ := repo.ListCancelledBefore(ctx, time.Now().Add(-time.Hour), 100)
	if len(early) != 0 {
		t.Errorf("ListCancelledBefore(в прошлом) вернул %d записей, хотели 0", len(early))
	}

	if err := repo.Delete(ctx, m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete: ошибка = %v, хотели ErrNotFound", err)
	}
	if _, err := repo.GetByID(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID после Delete: ошибка = %v, хотели ErrNotFound", err)
	}
}

// Активную встречу удалить нельзя.
func TestMeetingDelete_RequiresCancelled(t *testing.T) {
	pool := dbtest.Pool(t)
	owner := createUser(t, pool, "active@example.com")
	m := createMeeting(t, pool, owner.ID, "")

	if err := NewMeetingRepository(pool).Delete(context.Background(), m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete активной: ошибка = %v, хотели ErrNotFound", err)
	}
}

func TestExistsOwnedDocument(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	repo := NewMeetingRepository(pool)

	owner := createUser(t, pool, "doc@example.com")
	other := createUser(t, pool, "nodoc@example.com")
	createMeeting(t, pool, owner.ID, "documents/meeting_5_100.txt.gz")

	tests := []struct {
		name   string
		userID int64
		names  []string
		want   bool
	}{
		{"сжатое имя", owner.ID, []string{"meeting_5_100.txt.gz"}, true},
		{"исходное имя", owner.ID, []string{"meeting_5_100.txt"}, true},
		{"чужой владелец", other.ID, []string{"meeting_5_100.txt"}, false},
		{"подчёркивание не метасимвол", owner.ID, []string{"meeting%5%100"}, false},
		{"пустое имя", owner.ID, []string{""}, false},
		{"без имён", owner.ID, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ExistsOwnedDocument(ctx, tt.userID, tt.names...)
			if err != nil {
				t.Fatalf("ExistsOwnedDocument: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExistsOwnedDocument = %v, хотели %v", got, tt.want)
			}
		})
	}
}

func TestRewriteDocumentPath(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	repo := NewMeetingRepository(pool)

	owner := createUser(t, pool, "rewrite@example.com")
	m := createMeeting(t, pool, owner.ID, "documents/meeting_7_1.pdf")

	n, err := repo.RewriteDocumentPath(ctx, "meeting_7_1.pdf", "meeting_7_1.pdf.gz")
	if err != nil {
		t.Fatalf("RewriteDocumentPath: %v", err)
	}
	if n != 1 {
		t.Errorf("обновлено %d строк, хотели 1", n)
	}

	// Повторный вызов не добавляет второй суффикс
	n, _ = repo.RewriteDocumentPath(ctx, "meeting_7_1.pdf", "meeting_7_1.pdf.gz")
	if n != 0 {
		t.Errorf("повторно обновлено %d строк, хотели 0", n)
	}

	got, _ := repo.GetByID(ctx, m.ID)
	if got.DocumentPath != "documents/meeting_7_1.pdf.gz" {
		t.Errorf("DocumentPath = %q", got.DocumentPath)
	}
}

func TestAuditRepository(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	repo := NewAuditRepository(pool)

	owner := createUser(t, pool, "audit@example.com")
	m := createMeeting(t, pool, owner.ID, "")

	e := model.SnapshotMeeting(m, model.AuditOperationDelete, "scheduler", time.Now())
	if err := repo.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.ID == 0 {
		t.Error("ID не заполнен после Append")
	}

	// Запись переживает удаление встречи
	if _, err := pool.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, m.ID); err != nil {
		t.Fatal(err)
	}

	entries, err := repo.ListByMeeting(ctx, m.ID)
	if err != nil {
		t.Fatalf("ListByMeeting: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ListByMeeting вернул %d записей, хотели 1", len(entries))
	}
	if entries[0].Operation != model.AuditOperationDelete || entries[0].UserID != owner.ID {
		t.Errorf("запись = %+v", entries[0])
	}
}

func TestBlobOwnerRepository(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	repo := NewBlobOwnerRepository(pool)

	if err := repo.Register(ctx, model.NamespaceProfile, "profile_3_1.png", 3); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := repo.Register(ctx, model.NamespaceProfile, "profile_3_1.png", 4); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Register: ошибка = %v, хотели ErrConflict", err)
	}

	owner, err := repo.Owner(ctx, model.NamespaceProfile, "profile_3_1.png")
	if err != nil || owner != 3 {
		t.Errorf("Owner = %d, %v; хотели 3", owner, err)
	}
	// Разделы независимы
	if _, err := repo.Owner(ctx, model.NamespaceDocument, "profile_3_1.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Owner в другом разделе: ошибка = %v, хотели ErrNotFound", err)
	}

	if err := repo.Rename(ctx, model.NamespaceProfile, "profile_3_1.png", "profile_3_1.png.gz"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if err := repo.Delete(ctx, model.NamespaceProfile, "profile_3_1.png.gz"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, model.NamespaceProfile, "profile_3_1.png.gz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete: ошибка = %v, хотели ErrNotFound", err)
	}
}

// Откат транзакции отменяет все изменения внутри неё.
func TestTxRunner_Rollback(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	boom := errors.New("сбой внутри транзакции")

	err := NewTxRunner(pool).RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewBlobOwnerRepository(tx).Register(ctx, model.NamespaceDocument, "meeting_1_1.pdf", 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx: ошибка = %v, хотели %v", err, boom)
	}

	if _, err := NewBlobOwnerRepository(pool).Owner(ctx, model.NamespaceDocument, "meeting_1_1.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("после отката запись осталась: %v", err)
	}
}
