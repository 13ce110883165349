// Пакет access — проверка прав доступа к файлам хранилища.
//
// Любая внутренняя ошибка при проверке (сбой запроса к БД, недопустимое
// имя) приводит к отказу в доступе.
package access

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
	"github.com/bigkaa/goartstore/meeting-module/internal/repository"
	"github.com/bigkaa/goartstore/meeting-module/internal/storage/objectstore"
)

var decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mm_access_decisions_total",
	Help: "Решения проверки доступа к файлам",
}, []string{"namespace", "action", "result"})

// OwnerLookup — источник явного соответствия файл → владелец.
type OwnerLookup interface {
	Owner(ctx context.Context, ns model.Namespace, storedName string) (int64, error)
}

// DocumentLookup — поиск встреч владельца по пути документа.
type DocumentLookup interface {
	ExistsOwnedDocument(ctx context.Context, userID int64, names ...string) (bool, error)
}

// Gate — решение о доступе к файлу на чтение и удаление.
type Gate struct {
	owners    OwnerLookup
	documents DocumentLookup
	cache     *ownerCache
	logger    *slog.Logger
}

// NewGate создаёт Gate с LRU-кэшем владельцев размера cacheSize и временем жизни ttl.
func NewGate(owners OwnerLookup, documents DocumentLookup, cacheSize int, ttl time.Duration, logger *slog.Logger) *Gate {
	return &Gate{
		owners:    owners,
		documents: documents,
		cache:     newOwnerCache(cacheSize, ttl),
		logger:    logger.With(slog.String("component", "access_gate")),
	}
}

// CanAccess сообщает, может ли requesterID читать файл storedName.
//
// profile: владелец берётся из явного соответствия файл → владелец.
// document: нужна встреча requesterID, путь документа которой содержит
// имя файла в сжатой или исходной форме.
func (g *Gate) CanAccess(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) bool {
	allowed := g.canAccess(ctx, ns, storedName, requesterID)
	decisionsTotal.WithLabelValues(string(ns), "read", result(allowed)).Inc()
	return allowed
}

func (g *Gate) canAccess(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) bool {
	if objectstore.ValidateName(storedName) != nil {
		return false
	}

	switch ns {
	case model.NamespaceProfile:
		owner, err := g.owner(ctx, ns, storedName)
		if err != nil {
			return false
		}
		return owner == requesterID

	case model.NamespaceDocument:
		names := []string{storedName}
		if model.IsCompressedName(storedName) {
			names = append(names, model.UncompressedName(storedName))
		}
		ok, err := g.documents.ExistsOwnedDocument(ctx, requesterID, names...)
		if err != nil {
			g.logger.Error("Ошибка проверки владельца документа, доступ запрещён",
				slog.String("name", storedName),
				slog.Int64("requester_id", requesterID),
				slog.String("error", err.Error()),
			)
			return false
		}
		return ok
	}
	return false
}

// CanDelete — более строгая проверка на удаление: имя должно содержать
// токен _<requesterID>_, а зарегистрированный владелец (если он есть)
// должен совпадать с requesterID.
func (g *Gate) CanDelete(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) bool {
	allowed := g.canDelete(ctx, ns, storedName, requesterID)
	decisionsTotal.WithLabelValues(string(ns), "delete", result(allowed)).Inc()
	return allowed
}

func (g *Gate) canDelete(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) bool {
	if !ns.Valid() || objectstore.ValidateName(storedName) != nil {
		return false
	}
	if !strings.Contains(storedName, "_"+strconv.FormatInt(requesterID, 10)+"_") {
		return false
	}

	owner, err := g.owner(ctx, ns, storedName)
	switch {
	case err == nil:
		return owner == requesterID
	case errors.Is(err, repository.ErrNotFound):
		return true
	default:
		return false
	}
}

// Forget сбрасывает закэшированного владельца файла (после удаления или переименования).
func (g *Gate) Forget(ns model.Namespace, storedName string) {
	g.cache.remove(ns, storedName)
}

// owner возвращает владельца файла из кэша или репозитория.
func (g *Gate) owner(ctx context.Context, ns model.Namespace, storedName string) (int64, error) {
	if owner, ok := g.cache.get(ns, storedName); ok {
		return owner, nil
	}

	owner, err := g.owners.Owner(ctx, ns, storedName)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			g.logger.Error("Ошибка получения владельца файла, доступ запрещён",
				slog.String("namespace", string(ns)),
				slog.String("name", storedName),
				slog.String("error", err.Error()),
			)
		}
		return 0, err
	}

	g.cache.set(ns, storedName, owner)
	return owner, nil
}

func result(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
