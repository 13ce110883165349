// notify.go — уведомления владельца о событиях встречи.
package service

import (
	"context"
	"log/slog"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

// NotifyEvent — событие, о котором уведомляется владелец.
type NotifyEvent string

const (
	NotifyCreated   NotifyEvent = "created"
	NotifyUpdated   NotifyEvent = "updated"
	NotifyCancelled NotifyEvent = "cancelled"
)

// Notifier — внешний канал уведомлений (почта и т.п.).
// Ошибка уведомления логируется и не влияет на операцию.
type Notifier interface {
	Notify(ctx context.Context, event NotifyEvent, user *model.User, m *model.Meeting) error
}

// LogNotifier — уведомитель по умолчанию: пишет событие в журнал.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(slog.String("component", "notifier"))}
}

func (n *LogNotifier) Notify(_ context.Context, event NotifyEvent, user *model.User, m *model.Meeting) error {
	n.logger.Info("Уведомление о встрече",
		slog.String("event", string(event)),
		slog.Int64("meeting_id", m.ID),
		slog.String("title", m.Title),
		slog.String("recipient", user.Email),
		slog.String("recipient_name", user.FullName()),
		slog.Time("start_date", m.StartDate),
	)
	return nil
}
