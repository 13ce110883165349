// Пакет scheduler — отложенное выполнение задач окончательного удаления.
//
// Задача — сериализуемое значение model.DeleteJob{TargetID, FireAt},
// а не замыкание: её можно сохранить, просмотреть и повторить.
// Гарантия выполнения — at-least-once, тело задачи обязано быть идемпотентным.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

// ErrStopped — планировщик остановлен, новые задачи не принимаются.
var ErrStopped = errors.New("планировщик остановлен")

// Prometheus метрики планировщика
var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_scheduler_jobs_total",
		Help: "Задачи планировщика по результатам",
	}, []string{"backend", "result"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mm_scheduler_job_duration_seconds",
		Help:    "Длительность выполнения задачи",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})
)

// Handler — тело задачи. Ошибка приводит к повторной попытке.
type Handler func(ctx context.Context, job model.DeleteJob) error

// Scheduler — очередь отложенных задач удаления.
type Scheduler interface {
	// Schedule ставит задачу удаления targetID на момент fireAt.
	// Повторная постановка задачи для той же цели, пока она ожидает, — no-op.
	Schedule(ctx context.Context, targetID int64, fireAt time.Time) (model.DeleteJob, error)
	// Start запускает обработку задач обработчиком h.
	Start(ctx context.Context, h Handler) error
	// Stop останавливает обработку и дожидается выполняющихся задач.
	Stop()
}

// Backoff возвращает задержку перед попыткой attempt: 1s, 2s, 4s... не более 5 минут.
func Backoff(attempt int) time.Duration {
	const maxDelay = 5 * time.Minute
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		return maxDelay
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func observe(backend string, started time.Time, err error, willRetry bool) {
	jobDuration.WithLabelValues(backend).Observe(time.Since(started).Seconds())
	switch {
	case err == nil:
		jobsTotal.WithLabelValues(backend, "done").Inc()
	case willRetry:
		jobsTotal.WithLabelValues(backend, "retry").Inc()
	default:
		jobsTotal.WithLabelValues(backend, "failed").Inc()
	}
}
