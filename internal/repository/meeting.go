package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

// MeetingRepository — операции над таблицей meetings.
type MeetingRepository interface {
	// Create создаёт встречу в состоянии Active.
	Create(ctx context.Context, m *model.Meeting) error
	// GetByID возвращает встречу по ID.
	GetByID(ctx context.Context, id int64) (*model.Meeting, error)
	// Update изменяет поля активной встречи владельца.
	// ErrPrecondition — встреча отсутствует, чужая или отменена.
	Update(ctx context.Context, m *model.Meeting) error
	// Cancel атомарно переводит активную встречу владельца в Cancelled.
	// ErrPrecondition — встреча отсутствует, чужая или уже отменена.
	Cancel(ctx context.Context, id, userID int64, at time.Time) (*model.Meeting, error)
	// Delete удаляет отменённую встречу. ErrNotFound — строки нет или она не отменена.
	Delete(ctx context.Context, id int64) error
	// ListCancelledBefore возвращает отменённые встречи с cancelled_at <= cutoff.
	ListCancelledBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.Meeting, error)
	// ExistsOwnedDocument сообщает, есть ли у владельца встреча,
	// путь документа которой содержит одно из имён.
	ExistsOwnedDocument(ctx context.Context, userID int64, names ...string) (bool, error)
	// RewriteDocumentPath заменяет oldName на newName в путях документов.
	RewriteDocumentPath(ctx context.Context, oldName, newName string) (int64, error)
}

type meetingRepo struct {
	db DBTX
}

// NewMeetingRepository создаёт репозиторий встреч.
func NewMeetingRepository(db DBTX) MeetingRepository {
	return &meetingRepo{db: db}
}

const meetingColumns = `id, title, description, start_date, end_date, document_path,
	is_cancelled, cancelled_at, created_at, updated_at, user_id`

func scanMeeting(row pgx.Row) (*model.Meeting, error) {
	m := &model.Meeting{}
	err := row.Scan(
		&m.ID, &m.Title, &m.Description, &m.StartDate, &m.EndDate, &m.DocumentPath,
		&m.IsCancelled, &m.CancelledAt, &m.CreatedAt, &m.UpdatedAt, &m.UserID,
	)
	return m, err
}

func (r *meetingRepo) Create(ctx context.Context, m *model.Meeting) error {
	query := `
		INSERT INTO meetings (title, description, start_date, end_date, document_path, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_cancelled, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		m.Title, m.Description, m.StartDate, m.EndDate, m.DocumentPath, m.UserID,
	).Scan(&m.ID, &m.IsCancelled, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: пользователь %d", ErrNotFound, m.UserID)
		}
		return fmt.Errorf("ошибка создания встречи: %w", err)
	}
	m.CancelledAt = nil
	return nil
}

func (r *meetingRepo) GetByID(ctx context.Context, id int64) (*model.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE id = $1`

	m, err := scanMeeting(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения встречи: %w", err)
	}
	return m, nil
}

func (r *meetingRepo) Update(ctx context.Context, m *model.Meeting) error {
	query := `
		UPDATE meetings
		SET title = $3, description = $4, start_date = $5, end_date = $6,
			document_path = $7, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND NOT is_cancelled
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		m.ID, m.UserID, m.Title, m.Description, m.StartDate, m.EndDate, m.DocumentPath,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPrecondition
		}
		return fmt.Errorf("ошибка обновления встречи: %w", err)
	}
	return nil
}

func (r *meetingRepo) Cancel(ctx context.Context, id, userID int64, at time.Time) (*model.Meeting, error) {
	query := `
		UPDATE meetings
		SET is_cancelled = TRUE, cancelled_at = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND NOT is_cancelled
		RETURNING ` + meetingColumns

	m, err := scanMeeting(r.db.QueryRow(ctx, query, id, userID, at.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrecondition
		}
		return nil, fmt.Errorf("ошибка отмены встречи: %w", err)
	}
	return m, nil
}

func (r *meetingRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM meetings WHERE id = $1 AND is_cancelled`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления встречи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *meetingRepo) ListCancelledBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.Meeting, error) {
	query := `SELECT ` + meetingColumns + `
		FROM meetings
		WHERE is_cancelled AND cancelled_at <= $1
		ORDER BY cancelled_at
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения отменённых встреч: %w", err)
	}
	defer rows.Close()

	var result []*model.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования встречи: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ExistsOwnedDocument использует strpos вместо LIKE: "_" в сгенерированных
// именах является метасимволом LIKE.
func (r *meetingRepo) ExistsOwnedDocument(ctx context.Context, userID int64, names ...string) (bool, error) {
	if len(names) == 0 {
		return false, nil
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM meetings m, unnest($2::text[]) AS n(name)
			WHERE m.user_id = $1 AND n.name <> '' AND strpos(m.document_path, n.name) > 0
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, names).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки владельца документа: %w", err)
	}
	return exists, nil
}

// RewriteDocumentPath не трогает пути, уже содержащие newName,
// поэтому повторный вызов не даёт двойного суффикса.
func (r *meetingRepo) RewriteDocumentPath(ctx context.Context, oldName, newName string) (int64, error) {
	query := `
		UPDATE meetings
		SET document_path = replace(document_path, $1, $2), updated_at = NOW()
		WHERE strpos(document_path, $1) > 0 AND strpos(document_path, $2) = 0`

	tag, err := r.db.Exec(ctx, query, oldName, newName)
	if err != nil {
		return 0, fmt.Errorf("ошибка обновления пути документа: %w", err)
	}
	return tag.RowsAffected(), nil
}
