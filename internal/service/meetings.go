// meetings.go — жизненный цикл встречи: создание, изменение, отмена.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/lifecycle"
	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
	"github.com/bigkaa/goartstore/meeting-module/internal/repository"
)

// MeetingStore — хранилище встреч.
type MeetingStore interface {
	Create(ctx context.Context, m *model.Meeting) error
	GetByID(ctx context.Context, id int64) (*model.Meeting, error)
	Update(ctx context.Context, m *model.Meeting) error
	Cancel(ctx context.Context, id, userID int64, at time.Time) (*model.Meeting, error)
}

// AuditReader — чтение журнала аудита.
type AuditReader interface {
	ListByMeeting(ctx context.Context, meetingID int64) ([]*model.AuditEntry, error)
}

// UserLookup — получение адресата уведомлений.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// DeleteScheduler — постановка отложенного удаления.
type DeleteScheduler interface {
	ScheduleDelete(ctx context.Context, targetID int64) error
}

// MeetingService — операции жизненного цикла встречи.
type MeetingService struct {
	meetings MeetingStore
	audit    AuditReader
	users    UserLookup
	deleter  DeleteScheduler
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewMeetingService создаёт сервис встреч.
func NewMeetingService(
	meetings MeetingStore,
	audit AuditReader,
	users UserLookup,
	deleter DeleteScheduler,
	notifier Notifier,
	logger *slog.Logger,
) *MeetingService {
	return &MeetingService{
		meetings: meetings,
		audit:    audit,
		users:    users,
		deleter:  deleter,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "meetings")),
	}
}

// Create создаёт активную встречу владельца ownerID.
func (s *MeetingService) Create(ctx context.Context, ownerID int64, fields model.MeetingFields) (*model.Meeting, error) {
	fields = normalizeFields(fields)
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	if fields.StartDate.Before(s.now()) {
		return nil, validationError("дата начала не может быть в прошлом")
	}

	m := &model.Meeting{
		Title:        fields.Title,
		Description:  fields.Description,
		StartDate:    fields.StartDate.UTC(),
		EndDate:      fields.EndDate.UTC(),
		DocumentPath: fields.DocumentPath,
		UserID:       ownerID,
	}
	if err := s.meetings.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("пользователь не найден")
		}
		return nil, ioError(err)
	}

	s.logger.Info("Встреча создана",
		slog.Int64("meeting_id", m.ID),
		slog.Int64("owner_id", ownerID),
	)
	s.notify(ctx, NotifyCreated, m)
	return m, nil
}

// Update изменяет поля активной встречи. Отменённая встреча неизменяема.
func (s *MeetingService) Update(ctx context.Context, id, ownerID int64, fields model.MeetingFields) (*model.Meeting, error) {
	m, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CheckOperation(m.State(), lifecycle.OpUpdate); err != nil {
		return nil, transitionError(err)
	}

	fields = normalizeFields(fields)
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	m.Title = fields.Title
	m.Description = fields.Description
	m.StartDate = fields.StartDate.UTC()
	m.EndDate = fields.EndDate.UTC()
	m.DocumentPath = fields.DocumentPath

	if err := s.meetings.Update(ctx, m); err != nil {
		if errors.Is(err, repository.ErrPrecondition) {
			// Встречу отменили между чтением и записью
			return nil, s.classifyRace(ctx, id, ownerID, lifecycle.OpUpdate)
		}
		return nil, ioError(err)
	}

	s.notify(ctx, NotifyUpdated, m)
	return m, nil
}

// Cancel отменяет встречу и планирует её окончательное удаление.
// Сбой планирования логируется и не откатывает отмену.
func (s *MeetingService) Cancel(ctx context.Context, id, ownerID int64) (*model.Meeting, error) {
	m, err := s.meetings.Cancel(ctx, id, ownerID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrPrecondition) {
			return nil, s.classifyRace(ctx, id, ownerID, "")
		}
		return nil, ioError(err)
	}

	s.logger.Info("Встреча отменена",
		slog.Int64("meeting_id", m.ID),
		slog.Int64("owner_id", ownerID),
	)

	if err := s.deleter.ScheduleDelete(ctx, m.ID); err != nil {
		s.logger.Error("Не удалось запланировать удаление отменённой встречи",
			slog.Int64("meeting_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	s.notify(ctx, NotifyCancelled, m)
	return m, nil
}

// AuditTrail возвращает журнал аудита встречи. Доступен тому, кто
// владел встречей: после удаления владелец определяется по записям журнала.
func (s *MeetingService) AuditTrail(ctx context.Context, id, ownerID int64) ([]*model.AuditEntry, error) {
	m, err := s.meetings.GetByID(ctx, id)
	switch {
	case err == nil:
		if m.UserID != ownerID {
			return nil, notFound("встреча не найдена")
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, ioError(err)
	}

	entries, err := s.audit.ListByMeeting(ctx, id)
	if err != nil {
		return nil, ioError(err)
	}
	if m == nil {
		if len(entries) == 0 || entries[0].UserID != ownerID {
			return nil, notFound("встреча не найдена")
		}
	}
	return entries, nil
}

// owned возвращает встречу, если она существует и принадлежит ownerID.
func (s *MeetingService) owned(ctx context.Context, id, ownerID int64) (*model.Meeting, error) {
	m, err := s.meetings.GetByID(ctx, id)
	if err != nil {
		return nil, recordError(err)
	}
	if m.UserID != ownerID {
		return nil, notFound("встреча не найдена")
	}
	return m, nil
}

// classifyRace определяет причину несработавшего условного UPDATE:
// встречи нет либо она чужая — NotFound, иначе — ошибка перехода.
func (s *MeetingService) classifyRace(ctx context.Context, id, ownerID int64, op lifecycle.Operation) error {
	m, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if op != "" {
		if err := lifecycle.CheckOperation(m.State(), op); err != nil {
			return transitionError(err)
		}
	}
	if _, err := lifecycle.Transition(m.State(), lifecycle.EventCancel); err != nil {
		return transitionError(err)
	}
	return newError(KindConflict, CodeConcurrentUpdate, "встреча изменена параллельно, повторите запрос", nil)
}

func (s *MeetingService) notify(ctx context.Context, event NotifyEvent, m *model.Meeting) {
	user, err := s.users.GetByID(ctx, m.UserID)
	if err != nil {
		s.logger.Warn("Не удалось получить адресата уведомления",
			slog.Int64("user_id", m.UserID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.notifier.Notify(ctx, event, user, m); err != nil {
		s.logger.Warn("Не удалось отправить уведомление",
			slog.String("event", string(event)),
			slog.Int64("meeting_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func normalizeFields(f model.MeetingFields) model.MeetingFields {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.DocumentPath = strings.TrimSpace(f.DocumentPath)
	return f
}

func validateFields(f model.MeetingFields) error {
	switch {
	case f.Title == "":
		return validationError("название встречи обязательно")
	case utf8.RuneCountInString(f.Title) > model.MaxTitleLength:
		return validationError("название встречи длиннее 200 символов")
	case utf8.RuneCountInString(f.Description) > model.MaxDescriptionLength:
		return validationError("описание встречи длиннее 1000 символов")
	case utf8.RuneCountInString(f.DocumentPath) > model.MaxDocumentPathLength:
		return validationError("путь документа длиннее 255 символов")
	case f.StartDate.IsZero() || f.EndDate.IsZero():
		return validationError("даты начала и окончания обязательны")
	case !f.StartDate.Before(f.EndDate):
		return validationError("дата начала должна быть раньше даты окончания")
	}
	return nil
}
