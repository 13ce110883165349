package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

const (
	backendRedis = "redis"

	// TaskTypeDelete — тип задачи окончательного удаления встречи.
	TaskTypeDelete = "meeting:delete"

	queueName = "meetings"
)

// RedisConfig — параметры подключения asynq-планировщика.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Workers  int
	MaxRetry int
}

// deletePayload — JSON-представление задачи в Redis.
type deletePayload struct {
	TargetID int64     `json:"target_id"`
	FireAt   time.Time `json:"fire_at"`
}

// AsynqScheduler — планировщик поверх hibiken/asynq (Redis).
// Задачи переживают рестарт процесса.
type AsynqScheduler struct {
	cfg      RedisConfig
	redisOpt asynq.RedisClientOpt
	client   *asynq.Client
	server   *asynq.Server
	logger   *slog.Logger
}

// NewAsynqScheduler создаёт клиента asynq. Сервер создаётся в Start.
func NewAsynqScheduler(cfg RedisConfig, logger *slog.Logger) *AsynqScheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return &AsynqScheduler{
		cfg:      cfg,
		redisOpt: redisOpt,
		client:   asynq.NewClient(redisOpt),
		logger:   logger.With(slog.String("component", "scheduler"), slog.String("backend", backendRedis)),
	}
}

// TaskID возвращает детерминированный идентификатор задачи для цели.
func TaskID(targetID int64) string {
	return "meeting-delete:" + strconv.FormatInt(targetID, 10)
}

// NewDeleteTask формирует задачу asynq и её опции.
func NewDeleteTask(targetID int64, fireAt time.Time, maxRetry int) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(deletePayload{TargetID: targetID, FireAt: fireAt.UTC()})
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка сериализации задачи: %w", err)
	}
	opts := []asynq.Option{
		asynq.TaskID(TaskID(targetID)),
		asynq.ProcessAt(fireAt),
		asynq.MaxRetry(maxRetry),
		asynq.Queue(queueName),
	}
	return asynq.NewTask(TaskTypeDelete, payload), opts, nil
}

// DecodeDeleteTask восстанавливает DeleteJob из задачи asynq.
func DecodeDeleteTask(t *asynq.Task) (model.DeleteJob, error) {
	var p deletePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return model.DeleteJob{}, fmt.Errorf("некорректная задача %s: %w", t.Type(), err)
	}
	if p.TargetID <= 0 {
		return model.DeleteJob{}, fmt.Errorf("некорректная задача %s: target_id=%d", t.Type(), p.TargetID)
	}
	return model.DeleteJob{
		ID:       TaskID(p.TargetID),
		TargetID: p.TargetID,
		FireAt:   p.FireAt,
	}, nil
}

// Schedule ставит задачу в Redis. Конфликт TaskID означает, что задача
// для этой цели уже ожидает выполнения.
func (s *AsynqScheduler) Schedule(ctx context.Context, targetID int64, fireAt time.Time) (model.DeleteJob, error) {
	task, opts, err := NewDeleteTask(targetID, fireAt, s.cfg.MaxRetry)
	if err != nil {
		return model.DeleteJob{}, err
	}
	job := model.DeleteJob{ID: TaskID(targetID), TargetID: targetID, FireAt: fireAt.UTC()}

	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			s.logger.Debug("Задача удаления уже запланирована", slog.Int64("target_id", targetID))
			return job, nil
		}
		jobsTotal.WithLabelValues(backendRedis, "enqueue_error").Inc()
		return model.DeleteJob{}, fmt.Errorf("ошибка постановки задачи в очередь: %w", err)
	}

	jobsTotal.WithLabelValues(backendRedis, "scheduled").Inc()
	s.logger.Debug("Задача удаления запланирована",
		slog.Int64("target_id", targetID),
		slog.Time("fire_at", job.FireAt),
	)
	return job, nil
}

// Start запускает asynq-сервер с обработчиком задач удаления.
func (s *AsynqScheduler) Start(_ context.Context, h Handler) error {
	s.server = asynq.NewServer(s.redisOpt, asynq.Config{
		Concurrency: s.cfg.Workers,
		Queues:      map[string]int{queueName: 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return Backoff(n)
		},
		Logger: newAsynqLogger(s.logger),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDelete, s.handler(h))

	if err := s.server.Start(mux); err != nil {
		return fmt.Errorf("ошибка запуска asynq-сервера: %w", err)
	}
	s.logger.Info("Планировщик запущен",
		slog.String("redis_addr", s.cfg.Addr),
		slog.Int("workers", s.cfg.Workers),
	)
	return nil
}

// handler адаптирует Handler к asynq. Некорректная задача не повторяется.
func (s *AsynqScheduler) handler(h Handler) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		job, err := DecodeDeleteTask(t)
		if err != nil {
			jobsTotal.WithLabelValues(backendRedis, "failed").Inc()
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		if n, ok := asynq.GetRetryCount(ctx); ok {
			job.Attempt = n
		}

		started := time.Now()
		err = h(ctx, job)
		observe(backendRedis, started, err, err != nil && job.Attempt < s.cfg.MaxRetry)
		if err != nil {
			s.logger.Warn("Ошибка задачи удаления",
				slog.Int64("target_id", job.TargetID),
				slog.Int("attempt", job.Attempt),
				slog.String("error", err.Error()),
			)
		}
		return err
	}
}

// Stop останавливает сервер и закрывает клиента.
func (s *AsynqScheduler) Stop() {
	if s.server != nil {
		s.server.Shutdown()
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn("Ошибка закрытия asynq-клиента", slog.String("error", err.Error()))
	}
	s.logger.Info("Планировщик остановлен")
}

// asynqLogger направляет журнал asynq в slog.
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(logger *slog.Logger) *asynqLogger {
	return &asynqLogger{logger: logger.With(slog.String("source", "asynq"))}
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
