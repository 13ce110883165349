// Пакет repository — хранение встреч, журнала удалений, владельцев файлов
// и пользователей в PostgreSQL. Запросы пишутся вручную на SQL поверх pgx.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Коды SQLSTATE, которые репозитории переводят в доменные ошибки.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var (
	// ErrNotFound — встречи, пользователя или владельца файла нет в базе.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — имя файла или email уже заняты.
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrPrecondition — условный UPDATE/DELETE не затронул ни одной строки:
	// встреча отсутствует, принадлежит другому пользователю или уже отменена.
	ErrPrecondition = errors.New("условие изменения записи не выполнено")
)

// DBTX — общее подмножество *pgxpool.Pool и pgx.Tx. Через него удаление
// встречи и запись аудита выполняются одной транзакцией теми же репозиториями.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner открывает транзакции на пуле.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx фиксирует транзакцию, если fn вернула nil; любая ошибка fn
// откатывает все её изменения и возвращается без обёртки.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // после Commit откат ничего не делает

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// pgCode возвращает SQLSTATE ошибки PostgreSQL или пустую строку.
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isUniqueViolation — повтор уникального ключа (stored_name, email).
func isUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

// isForeignKeyViolation — встреча ссылается на несуществующего пользователя.
func isForeignKeyViolation(err error) bool {
	return pgCode(err) == pgForeignKeyViolation
}
