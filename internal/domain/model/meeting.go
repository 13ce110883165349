// Пакет model — доменные модели Meeting Module.
package model

import (
	"time"
)

// LifecycleState — состояние встречи в жизненном цикле.
// Deleted существует только концептуально: строка удалена,
// след остаётся лишь в журнале аудита.
type LifecycleState string

const (
	// StateActive — встреча активна, допускает изменения
	StateActive LifecycleState = "active"
	// StateCancelled — встреча отменена, ожидает окончательного удаления
	StateCancelled LifecycleState = "cancelled"
	// StateDeleted — встреча удалена (терминальное состояние)
	StateDeleted LifecycleState = "deleted"
)

// Ограничения длины полей встречи.
const (
	MaxTitleLength        = 200
	MaxDescriptionLength  = 1000
	MaxDocumentPathLength = 255
)

// Meeting — встреча, которой принадлежат документы.
// Инвариант: CancelledAt != nil тогда и только тогда, когда IsCancelled.
type Meeting struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	// DocumentPath — путь к прикреплённому документу (может содержать суффикс .gz)
	DocumentPath string     `json:"document_path,omitempty"`
	IsCancelled  bool       `json:"is_cancelled"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	// UserID — владелец встречи
	UserID int64 `json:"user_id"`
}

// State возвращает состояние жизненного цикла встречи.
// Для существующей строки — Active или Cancelled.
func (m *Meeting) State() LifecycleState {
	if m.IsCancelled {
		return StateCancelled
	}
	return StateActive
}

// MeetingFields — изменяемые поля встречи (создание и обновление).
type MeetingFields struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	DocumentPath string    `json:"document_path"`
}
