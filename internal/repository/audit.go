package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

// AuditRepository — журнал аудита (таблица meeting_logs).
// Записи только добавляются: методов изменения и удаления нет.
type AuditRepository interface {
	// Append добавляет запись и заполняет её ID.
	Append(ctx context.Context, e *model.AuditEntry) error
	// ListByMeeting возвращает записи встречи в порядке добавления.
	ListByMeeting(ctx context.Context, meetingID int64) ([]*model.AuditEntry, error)
}

type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала аудита.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(ctx context.Context, e *model.AuditEntry) error {
	query := `
		INSERT INTO meeting_logs (meeting_id, title, description, start_date, end_date,
			document_path, user_id, operation, logged_at, logged_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		e.MeetingID, e.Title, e.Description, e.StartDate, e.EndDate,
		e.DocumentPath, e.UserID, e.Operation, e.LoggedAt, e.LoggedBy,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи аудита: %w", err)
	}
	return nil
}

func (r *auditRepo) ListByMeeting(ctx context.Context, meetingID int64) ([]*model.AuditEntry, error) {
	query := `
		SELECT id, meeting_id, title, description, start_date, end_date,
			document_path, user_id, operation, logged_at, logged_by
		FROM meeting_logs
		WHERE meeting_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditEntry
	for rows.Next() {
		e := &model.AuditEntry{}
		if err := rows.Scan(
			&e.ID, &e.MeetingID, &e.Title, &e.Description, &e.StartDate, &e.EndDate,
			&e.DocumentPath, &e.UserID, &e.Operation, &e.LoggedAt, &e.LoggedBy,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи аудита: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
