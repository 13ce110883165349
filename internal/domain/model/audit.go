package model

import "time"

// Операции, фиксируемые в журнале аудита.
const (
	AuditOperationDelete = "DELETE"
)

// AuditEntry — неизменяемая запись журнала аудита.
// Содержит полный снимок встречи на момент операции и переживает
// удаление самой встречи.
type AuditEntry struct {
	ID           int64     `json:"id"`
	MeetingID    int64     `json:"meeting_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	DocumentPath string    `json:"document_path,omitempty"`
	UserID       int64     `json:"user_id"`
	Operation    string    `json:"operation"`
	LoggedAt     time.Time `json:"logged_at"`
	LoggedBy     string    `json:"logged_by"`
}

// SnapshotMeeting формирует запись аудита из текущего состояния встречи.
func SnapshotMeeting(m *Meeting, operation, loggedBy string, at time.Time) *AuditEntry {
	return &AuditEntry{
		MeetingID:    m.ID,
		Title:        m.Title,
		Description:  m.Description,
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
		DocumentPath: m.DocumentPath,
		UserID:       m.UserID,
		Operation:    operation,
		LoggedAt:     at.UTC(),
		LoggedBy:     loggedBy,
	}
}
