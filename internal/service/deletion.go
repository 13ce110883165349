// deletion.go — отложенное окончательное удаление отменённых встреч.
//
// Тело задачи перечитывает встречу и действует только если она всё ещё
// отменена: повторное выполнение той же задачи — no-op. Периодический sweep
// подбирает встречи, задачи которых потеряны (рестарт, сбой планирования).
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/lifecycle"
	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
	"github.com/bigkaa/goartstore/meeting-module/internal/repository"
	"github.com/bigkaa/goartstore/meeting-module/internal/scheduler"
)

// auditLoggedBy — значение logged_by для записей, созданных удалением.
const auditLoggedBy = "deletion-service"

// sweepBatchSize — количество встреч, выбираемых за один запрос sweep.
const sweepBatchSize = 500

// Prometheus метрики удаления
var (
	hardDeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_hard_deletes_total",
		Help: "Выполнения задачи окончательного удаления по результату",
	}, []string{"result"})

	auditFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_audit_failures_total",
		Help: "Количество неудавшихся записей аудита",
	})

	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_sweep_runs_total",
		Help: "Общее количество запусков sweep",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mm_sweep_duration_seconds",
		Help:    "Длительность выполнения sweep в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// DeleteOutcome — итог выполнения задачи удаления.
type DeleteOutcome string

const (
	// OutcomeDeleted — встреча удалена
	OutcomeDeleted DeleteOutcome = "deleted"
	// OutcomeNoop — встреча отсутствует или не отменена
	OutcomeNoop DeleteOutcome = "noop"
)

// MeetingDeleter — операции над встречами, нужные удалению.
type MeetingDeleter interface {
	GetByID(ctx context.Context, id int64) (*model.Meeting, error)
	Delete(ctx context.Context, id int64) error
	ListCancelledBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.Meeting, error)
}

// AuditAppender — запись в журнал аудита.
type AuditAppender interface {
	Append(ctx context.Context, e *model.AuditEntry) error
}

// DocumentRemover — удаление документа удалённой встречи её владельцем.
type DocumentRemover interface {
	RemoveDocument(ctx context.Context, documentPath string, ownerID int64) error
}

// DeleteTx выполняет fn в одной транзакции БД: запись аудита и удаление
// встречи фиксируются вместе.
type DeleteTx func(ctx context.Context, fn func(meetings MeetingDeleter, audit AuditAppender) error) error

// NewPgDeleteTx создаёт DeleteTx поверх транзакций PostgreSQL.
func NewPgDeleteTx(runner *repository.TxRunner) DeleteTx {
	return func(ctx context.Context, fn func(MeetingDeleter, AuditAppender) error) error {
		return runner.RunInTx(ctx, func(tx pgx.Tx) error {
			return fn(repository.NewMeetingRepository(tx), repository.NewAuditRepository(tx))
		})
	}
}

// DeletionConfig — параметры удаления.
type DeletionConfig struct {
	// Delay — задержка удаления после отмены
	Delay time.Duration
	// SweepInterval — период sweep (0 — отключён)
	SweepInterval time.Duration
	// SweepConcurrency — параллельно обрабатываемые встречи в sweep
	SweepConcurrency int
}

// SweepResult — результат одного запуска sweep.
type SweepResult struct {
	Found    int
	Deleted  int
	Noop     int
	Errors   int
	Duration time.Duration
}

// DeletionService — планирование и выполнение окончательного удаления.
type DeletionService struct {
	meetings  MeetingDeleter
	audit     AuditAppender
	documents DocumentRemover
	sched     scheduler.Scheduler
	tx        DeleteTx
	cfg       DeletionConfig
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDeletionService создаёт сервис удаления. tx == nil — аудит
// пишется отдельно от удаления, его сбой не блокирует удаление.
func NewDeletionService(
	meetings MeetingDeleter,
	audit AuditAppender,
	documents DocumentRemover,
	sched scheduler.Scheduler,
	tx DeleteTx,
	cfg DeletionConfig,
	logger *slog.Logger,
) *DeletionService {
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 1
	}
	return &DeletionService{
		meetings:  meetings,
		audit:     audit,
		documents: documents,
		sched:     sched,
		tx:        tx,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "deletion")),
	}
}

// ScheduleDelete ставит задачу удаления через cfg.Delay.
func (d *DeletionService) ScheduleDelete(ctx context.Context, targetID int64) error {
	job, err := d.sched.Schedule(ctx, targetID, d.now().Add(d.cfg.Delay))
	if err != nil {
		return err
	}
	d.logger.Info("Удаление встречи запланировано",
		slog.Int64("meeting_id", targetID),
		slog.Time("fire_at", job.FireAt),
	)
	return nil
}

// HandleJob — обработчик задач планировщика.
func (d *DeletionService) HandleJob(ctx context.Context, job model.DeleteJob) error {
	_, err := d.ExecuteDelete(ctx, job.TargetID)
	return err
}

// ExecuteDelete окончательно удаляет отменённую встречу targetID.
//
// Встреча отсутствует или не отменена — no-op без ошибки. Иначе:
// снимок в журнал аудита, удаление строки, удаление документа.
// Ошибка возвращается только при сбое чтения или удаления строки.
func (d *DeletionService) ExecuteDelete(ctx context.Context, targetID int64) (DeleteOutcome, error) {
	m, err := d.meetings.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return d.noop(targetID, "встреча не найдена"), nil
		}
		hardDeletesTotal.WithLabelValues("error").Inc()
		return "", ioError(err)
	}
	if _, err := lifecycle.Transition(m.State(), lifecycle.EventHardDelete); err != nil {
		return d.noop(targetID, "встреча не отменена"), nil
	}

	entry := model.SnapshotMeeting(m, model.AuditOperationDelete, auditLoggedBy, d.now())

	if d.tx != nil {
		err = d.tx(ctx, func(meetings MeetingDeleter, audit AuditAppender) error {
			if err := audit.Append(ctx, entry); err != nil {
				return newError(KindInternalAudit, CodeAuditFailed, "не удалось записать аудит", err)
			}
			return meetings.Delete(ctx, targetID)
		})
	} else {
		if auditErr := d.audit.Append(ctx, entry); auditErr != nil {
			auditFailuresTotal.Inc()
			d.logger.Warn("Не удалось записать аудит, удаление продолжается",
				slog.Int64("meeting_id", targetID),
				slog.String("error", auditErr.Error()),
			)
		}
		err = d.meetings.Delete(ctx, targetID)
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Параллельное выполнение уже удалило встречу
			return d.noop(targetID, "встреча удалена параллельно"), nil
		}
		if KindOf(err) == KindInternalAudit {
			auditFailuresTotal.Inc()
		}
		hardDeletesTotal.WithLabelValues("error").Inc()
		return "", ioError(err)
	}

	if err := d.documents.RemoveDocument(ctx, m.DocumentPath, m.UserID); err != nil {
		d.logger.Warn("Не удалось удалить документ удалённой встречи",
			slog.Int64("meeting_id", targetID),
			slog.String("error", err.Error()),
		)
	}

	hardDeletesTotal.WithLabelValues(string(OutcomeDeleted)).Inc()
	d.logger.Info("Встреча окончательно удалена",
		slog.Int64("meeting_id", targetID),
		slog.Int64("owner_id", m.UserID),
	)
	return OutcomeDeleted, nil
}

func (d *DeletionService) noop(targetID int64, reason string) DeleteOutcome {
	hardDeletesTotal.WithLabelValues(string(OutcomeNoop)).Inc()
	d.logger.Info("Удаление пропущено",
		slog.Int64("meeting_id", targetID),
		slog.String("reason", reason),
	)
	return OutcomeNoop
}

// Sweep удаляет все отменённые встречи с cancelled_at <= cutoff.
func (d *DeletionService) Sweep(ctx context.Context, cutoff time.Time) (*SweepResult, error) {
	start := time.Now()
	result := &SweepResult{}

	var mu sync.Mutex
	for {
		batch, err := d.meetings.ListCancelledBefore(ctx, cutoff, sweepBatchSize)
		if err != nil {
			return result, ioError(err)
		}
		result.Found += len(batch)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.cfg.SweepConcurrency)
		progress := 0

		for _, m := range batch {
			id := m.ID
			g.Go(func() error {
				outcome, err := d.ExecuteDelete(gctx, id)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					result.Errors++
					d.logger.Error("Sweep: ошибка удаления встречи",
						slog.Int64("meeting_id", id),
						slog.String("error", err.Error()),
					)
				case outcome == OutcomeDeleted:
					result.Deleted++
					progress++
				default:
					result.Noop++
					progress++
				}
				return nil
			})
		}
		_ = g.Wait()

		// Неполная выборка или отсутствие прогресса — выходим
		if len(batch) < sweepBatchSize || progress == 0 || ctx.Err() != nil {
			break
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// RunOnce выполняет один sweep с cutoff = now - Delay.
func (d *DeletionService) RunOnce(ctx context.Context) *SweepResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.Sweep(ctx, d.now().Add(-d.cfg.Delay))
	sweepRunsTotal.Inc()
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	if err != nil {
		d.logger.Error("Sweep завершён с ошибкой", slog.String("error", err.Error()))
		return result
	}

	level := slog.LevelDebug
	if result.Found > 0 {
		level = slog.LevelInfo
	}
	d.logger.Log(ctx, level, "Sweep завершён",
		slog.Int("found", result.Found),
		slog.Int("deleted", result.Deleted),
		slog.Int("noop", result.Noop),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
	return result
}

// Start запускает обработчик планировщика и периодический sweep.
func (d *DeletionService) Start(ctx context.Context) error {
	if err := d.sched.Start(ctx, d.HandleJob); err != nil {
		return err
	}

	if d.cfg.SweepInterval <= 0 {
		d.logger.Info("Периодический sweep отключён")
		return nil
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(sweepCtx)

	d.logger.Info("Sweep запущен",
		slog.String("interval", d.cfg.SweepInterval.String()),
		slog.String("delay", d.cfg.Delay.String()),
	)
	return nil
}

// Stop останавливает sweep и планировщик.
func (d *DeletionService) Stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
	d.sched.Stop()
	d.logger.Info("Сервис удаления остановлен")
}

// run — основной цикл sweep. Первый запуск — сразу после старта.
func (d *DeletionService) run(ctx context.Context) {
	defer close(d.done)

	d.RunOnce(ctx)

	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}
