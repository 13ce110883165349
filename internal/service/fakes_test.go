package service

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
	"github.com/bigkaa/goartstore/meeting-module/internal/repository"
	"github.com/bigkaa/goartstore/meeting-module/internal/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memMeetings — in-memory реализация репозитория встреч.
type memMeetings struct {
	mu     sync.Mutex
	rows   map[int64]*model.Meeting
	nextID int64
	getErr error
}

func newMemMeetings() *memMeetings {
	return &memMeetings{rows: make(map[int64]*model.Meeting)}
}

func (r *memMeetings) Create(_ context.Context, m *model.Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	m.CreatedAt = time.Now().UTC()
	m.UpdatedAt = m.CreatedAt
	cp := *m
	r.rows[m.ID] = &cp
	return nil
}

func (r *memMeetings) GetByID(_ context.Context, id int64) (*model.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	m, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMeetings) Update(_ context.Context, m *model.Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[m.ID]
	if !ok || row.UserID != m.UserID || row.IsCancelled {
		return repository.ErrPrecondition
	}
	m.UpdatedAt = time.Now().UTC()
	cp := *m
	r.rows[m.ID] = &cp
	return nil
}

func (r *memMeetings) Cancel(_ context.Context, id, userID int64, at time.Time) (*model.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.UserID != userID || row.IsCancelled {
		return nil, repository.ErrPrecondition
	}
	at = at.UTC()
	row.IsCancelled = true
	row.CancelledAt = &at
	cp := *row
	return &cp, nil
}

func (r *memMeetings) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || !row.IsCancelled {
		return repository.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memMeetings) ListCancelledBefore(_ context.Context, cutoff time.Time, limit int) ([]*model.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*model.Meeting
	for _, m := range r.rows {
		if m.IsCancelled && !m.CancelledAt.After(cutoff) {
			cp := *m
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *model.Meeting) int { return a.CancelledAt.Compare(*b.CancelledAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memMeetings) ExistsOwnedDocument(_ context.Context, userID int64, names ...string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rows {
		if m.UserID != userID {
			continue
		}
		for _, n := range names {
			if n != "" && strings.Contains(m.DocumentPath, n) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *memMeetings) RewriteDocumentPath(_ context.Context, oldName, newName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.rows {
		if strings.Contains(m.DocumentPath, oldName) && !strings.Contains(m.DocumentPath, newName) {
			m.DocumentPath = strings.ReplaceAll(m.DocumentPath, oldName, newName)
			n++
		}
	}
	return n, nil
}

func (r *memMeetings) exists(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	return ok
}

// memAudit — in-memory журнал аудита.
type memAudit struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
	err     error
}

func (a *memAudit) Append(_ context.Context, e *model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	e.ID = int64(len(a.entries) + 1)
	cp := *e
	a.entries = append(a.entries, &cp)
	return nil
}

func (a *memAudit) ListByMeeting(_ context.Context, meetingID int64) ([]*model.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var result []*model.AuditEntry
	for _, e := range a.entries {
		if e.MeetingID == meetingID {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (a *memAudit) count(meetingID int64) int {
	entries, _ := a.ListByMeeting(context.Background(), meetingID)
	return len(entries)
}

// memUsers — пользователи по ID.
type memUsers map[int64]*model.User

func (u memUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, repository.ErrNotFound
}

// memOwners — соответствие файл → владелец.
type memOwners struct {
	mu     sync.Mutex
	owners map[string]int64
	err    error
}

func newMemOwners() *memOwners {
	return &memOwners{owners: make(map[string]int64)}
}

func ownerKey(ns model.Namespace, name string) string { return string(ns) + "/" + name }

func (o *memOwners) Register(_ context.Context, ns model.Namespace, name string, ownerID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.owners[ownerKey(ns, name)]; ok {
		return repository.ErrConflict
	}
	o.owners[ownerKey(ns, name)] = ownerID
	return nil
}

func (o *memOwners) Owner(_ context.Context, ns model.Namespace, name string) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return 0, o.err
	}
	owner, ok := o.owners[ownerKey(ns, name)]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return owner, nil
}

func (o *memOwners) Rename(_ context.Context, ns model.Namespace, oldName, newName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	owner, ok := o.owners[ownerKey(ns, oldName)]
	if !ok {
		return repository.ErrNotFound
	}
	delete(o.owners, ownerKey(ns, oldName))
	o.owners[ownerKey(ns, newName)] = owner
	return nil
}

func (o *memOwners) Delete(_ context.Context, ns model.Namespace, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.owners[ownerKey(ns, name)]; !ok {
		return repository.ErrNotFound
	}
	delete(o.owners, ownerKey(ns, name))
	return nil
}

// recordingNotifier запоминает события.
type recordingNotifier struct {
	mu     sync.Mutex
	events []NotifyEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event NotifyEvent, _ *model.User, _ *model.Meeting) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// fakeScheduler запоминает задачи и не выполняет их.
type fakeScheduler struct {
	mu   sync.Mutex
	jobs []model.DeleteJob
	err  error
}

var _ scheduler.Scheduler = (*fakeScheduler)(nil)

func (s *fakeScheduler) Schedule(_ context.Context, targetID int64, fireAt time.Time) (model.DeleteJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return model.DeleteJob{}, s.err
	}
	job := model.DeleteJob{ID: "job", TargetID: targetID, FireAt: fireAt}
	s.jobs = append(s.jobs, job)
	return job, nil
}

func (s *fakeScheduler) Start(context.Context, scheduler.Handler) error { return nil }
func (s *fakeScheduler) Stop()                                          {}

// noDocuments — удаление документов без файлового хранилища.
type noDocuments struct {
	mu     sync.Mutex
	paths  []string
	owners []int64
}

func (d *noDocuments) RemoveDocument(_ context.Context, path string, ownerID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paths = append(d.paths, path)
	d.owners = append(d.owners, ownerID)
	return nil
}

// clock — управляемое время.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
