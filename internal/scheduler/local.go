package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

const backendLocal = "local"

// LocalConfig — параметры in-process планировщика.
type LocalConfig struct {
	// Workers — количество воркеров
	Workers int
	// MaxRetry — число повторов после первой неудачной попытки
	MaxRetry int
	// Backoff — задержка перед повтором; по умолчанию Backoff
	Backoff func(attempt int) time.Duration
}

// LocalScheduler — in-process планировщик: min-heap задач по FireAt,
// одна горутина-таймер, очередь и пул воркеров.
// Задачи не переживают рестарт процесса: их восстанавливает периодический sweep.
type LocalScheduler struct {
	cfg    LocalConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	jobs     jobHeap
	byTarget map[int64]*model.DeleteJob
	stopped  bool

	wake   chan struct{}
	queue  chan model.DeleteJob
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLocalScheduler создаёт LocalScheduler.
func NewLocalScheduler(cfg LocalConfig, logger *slog.Logger) *LocalScheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxRetry < 0 {
		cfg.MaxRetry = 0
	}
	if cfg.Backoff == nil {
		cfg.Backoff = Backoff
	}
	return &LocalScheduler{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scheduler"), slog.String("backend", backendLocal)),
		now:      time.Now,
		byTarget: make(map[int64]*model.DeleteJob),
		wake:     make(chan struct{}, 1),
		queue:    make(chan model.DeleteJob),
	}
}

// Schedule добавляет задачу в очередь. Если для targetID уже есть ожидающая
// задача, возвращается она.
func (s *LocalScheduler) Schedule(_ context.Context, targetID int64, fireAt time.Time) (model.DeleteJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return model.DeleteJob{}, ErrStopped
	}
	if existing, ok := s.byTarget[targetID]; ok {
		return *existing, nil
	}

	job := &model.DeleteJob{
		ID:       uuid.New().String(),
		TargetID: targetID,
		FireAt:   fireAt.UTC(),
	}
	s.push(job)
	jobsTotal.WithLabelValues(backendLocal, "scheduled").Inc()

	s.logger.Debug("Задача удаления запланирована",
		slog.String("job_id", job.ID),
		slog.Int64("target_id", targetID),
		slog.Time("fire_at", job.FireAt),
	)
	return *job, nil
}

// Pending возвращает копии ожидающих задач в порядке срабатывания.
func (s *LocalScheduler) Pending() []model.DeleteJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]model.DeleteJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		result = append(result, *j)
	}
	slices.SortFunc(result, func(a, b model.DeleteJob) int {
		return a.FireAt.Compare(b.FireAt)
	})
	return result
}

// Start запускает таймер и воркеры.
func (s *LocalScheduler) Start(ctx context.Context, h Handler) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatchLoop(ctx)
	}()

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.worker(ctx, h)
		}()
	}

	s.logger.Info("Планировщик запущен", slog.Int("workers", s.cfg.Workers))
	return nil
}

// Stop останавливает горутины. Ожидающие задачи отбрасываются.
func (s *LocalScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	pending := len(s.jobs)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Планировщик остановлен", slog.Int("dropped", pending))
}

// dispatchLoop ждёт ближайшую задачу и передаёт её воркерам.
func (s *LocalScheduler) dispatchLoop(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		job, wait := s.next()
		if job != nil {
			select {
			case s.queue <- *job:
			case <-ctx.Done():
				return
			}
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// next извлекает задачу, время которой наступило, либо возвращает
// время ожидания до ближайшей.
func (s *LocalScheduler) next() (*model.DeleteJob, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) == 0 {
		return nil, time.Hour
	}
	head := s.jobs[0]
	if wait := head.FireAt.Sub(s.now()); wait > 0 {
		return nil, wait
	}

	heap.Pop(&s.jobs)
	if s.byTarget[head.TargetID] == head {
		delete(s.byTarget, head.TargetID)
	}
	return head, 0
}

func (s *LocalScheduler) worker(ctx context.Context, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.run(ctx, h, job)
		}
	}
}

// run выполняет задачу и при ошибке ставит повтор с задержкой.
func (s *LocalScheduler) run(ctx context.Context, h Handler, job model.DeleteJob) {
	started := time.Now()
	err := h(ctx, job)

	willRetry := err != nil && job.Attempt < s.cfg.MaxRetry && ctx.Err() == nil
	observe(backendLocal, started, err, willRetry)

	if err == nil {
		return
	}

	if !willRetry {
		s.logger.Error("Задача удаления не выполнена",
			slog.String("job_id", job.ID),
			slog.Int64("target_id", job.TargetID),
			slog.Int("attempt", job.Attempt),
			slog.String("error", err.Error()),
		)
		return
	}

	retry := job
	retry.Attempt++
	retry.FireAt = s.now().Add(s.cfg.Backoff(retry.Attempt)).UTC()

	s.logger.Warn("Ошибка задачи удаления, повтор",
		slog.String("job_id", job.ID),
		slog.Int64("target_id", job.TargetID),
		slog.Int("attempt", retry.Attempt),
		slog.Time("retry_at", retry.FireAt),
		slog.String("error", err.Error()),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, ok := s.byTarget[retry.TargetID]; ok {
		return
	}
	s.push(&retry)
}

// push добавляет задачу в кучу и будит таймер. Вызывается под s.mu.
func (s *LocalScheduler) push(job *model.DeleteJob) {
	heap.Push(&s.jobs, job)
	s.byTarget[job.TargetID] = job

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// jobHeap — min-heap задач по FireAt.
type jobHeap []*model.DeleteJob

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].FireAt.Before(h[j].FireAt) }
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(*model.DeleteJob))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
