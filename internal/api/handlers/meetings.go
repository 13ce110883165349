// meetings.go — HTTP handlers жизненного цикла встречи.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/meeting-module/internal/api/errors"
	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

// maxMeetingBody — максимальный размер JSON тела запроса встречи.
const maxMeetingBody = 64 << 10

// MeetingOperations — операции сервиса встреч.
type MeetingOperations interface {
	Create(ctx context.Context, ownerID int64, fields model.MeetingFields) (*model.Meeting, error)
	Update(ctx context.Context, id, ownerID int64, fields model.MeetingFields) (*model.Meeting, error)
	Cancel(ctx context.Context, id, ownerID int64) (*model.Meeting, error)
	AuditTrail(ctx context.Context, id, ownerID int64) ([]*model.AuditEntry, error)
}

// MeetingsHandler — обработчик endpoints встреч.
type MeetingsHandler struct {
	meetings MeetingOperations
}

// NewMeetingsHandler создаёт обработчик endpoints встреч.
func NewMeetingsHandler(meetings MeetingOperations) *MeetingsHandler {
	return &MeetingsHandler{meetings: meetings}
}

// auditTrailResponse — ответ GET /api/v1/meetings/{id}/audit.
type auditTrailResponse struct {
	Items []*model.AuditEntry `json:"items"`
	Total int                 `json:"total"`
}

// CreateMeeting обрабатывает POST /api/v1/meetings.
func (h *MeetingsHandler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	m, err := h.meetings.Create(r.Context(), owner, fields)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMeeting обрабатывает PUT /api/v1/meetings/{id}.
func (h *MeetingsHandler) UpdateMeeting(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	m, err := h.meetings.Update(r.Context(), id, owner, fields)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CancelMeeting обрабатывает PATCH /api/v1/meetings/{id}/cancel.
func (h *MeetingsHandler) CancelMeeting(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	m, err := h.meetings.Cancel(r.Context(), id, owner)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetMeetingAudit обрабатывает GET /api/v1/meetings/{id}/audit.
func (h *MeetingsHandler) GetMeetingAudit(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	entries, err := h.meetings.AuditTrail(r.Context(), id, owner)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	if entries == nil {
		entries = []*model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditTrailResponse{Items: entries, Total: len(entries)})
}

func decodeFields(w http.ResponseWriter, r *http.Request) (model.MeetingFields, bool) {
	var fields model.MeetingFields
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMeetingBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fields); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: ожидается JSON встречи")
		return fields, false
	}
	return fields, true
}
