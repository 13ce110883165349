package service

import (
	"sync"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

// blobLocks — реестр RW-блокировок по файлам в пределах процесса.
// Сжатая и исходная формы имени разделяют одну блокировку, поэтому
// чтение не видит файл в середине замены сжатой копией.
type blobLocks struct {
	mu    sync.Mutex
	locks map[string]*blobLock
}

type blobLock struct {
	sync.RWMutex
	refs int
}

func newBlobLocks() *blobLocks {
	return &blobLocks{locks: make(map[string]*blobLock)}
}

// RLock захватывает блокировку на чтение и возвращает функцию освобождения.
func (r *blobLocks) RLock(ns model.Namespace, storedName string) func() {
	key, l := r.acquire(ns, storedName)
	l.RLock()
	return func() {
		l.RUnlock()
		r.release(key, l)
	}
}

// Lock захватывает эксклюзивную блокировку и возвращает функцию освобождения.
func (r *blobLocks) Lock(ns model.Namespace, storedName string) func() {
	key, l := r.acquire(ns, storedName)
	l.Lock()
	return func() {
		l.Unlock()
		r.release(key, l)
	}
}

func (r *blobLocks) acquire(ns model.Namespace, storedName string) (string, *blobLock) {
	key := string(ns) + "/" + model.UncompressedName(storedName)

	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &blobLock{}
		r.locks[key] = l
	}
	l.refs++
	return key, l
}

func (r *blobLocks) release(key string, l *blobLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
}

// size возвращает количество активных записей реестра.
func (r *blobLocks) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
