// files.go — загрузка, выдача, удаление и сжатие файлов.
//
// Порядок проверок: имя → существование → доступ → операция.
// Ошибки валидации и отказ в доступе возникают до обращения к данным файла.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
	"github.com/bigkaa/goartstore/meeting-module/internal/repository"
	"github.com/bigkaa/goartstore/meeting-module/internal/storage/codec"
	"github.com/bigkaa/goartstore/meeting-module/internal/storage/objectstore"
)

// Prometheus метрики файловых операций
var (
	filesOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_files_operations_total",
		Help: "Файловые операции по типу и результату",
	}, []string{"operation", "namespace", "result"})

	// filesStored — количество файлов в разделе на момент последнего подсчёта
	filesStored = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mm_files_stored",
		Help: "Количество файлов в разделе хранилища",
	}, []string{"namespace"})
)

// AccessGate — решение о доступе к файлу.
type AccessGate interface {
	CanAccess(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) bool
	CanDelete(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) bool
	Forget(ns model.Namespace, storedName string)
}

// BlobOwners — запись соответствия файл → владелец.
type BlobOwners interface {
	Register(ctx context.Context, ns model.Namespace, storedName string, ownerID int64) error
	Rename(ctx context.Context, ns model.Namespace, oldName, newName string) error
	Delete(ctx context.Context, ns model.Namespace, storedName string) error
}

// DocumentPaths — обновление ссылок встреч на документ.
type DocumentPaths interface {
	RewriteDocumentPath(ctx context.Context, oldName, newName string) (int64, error)
}

// FileConfig — лимиты файловых операций.
type FileConfig struct {
	// MaxUploadSize — максимальный размер загрузки в байтах
	MaxUploadSize int64
	// CompressThreshold — документы больше порога сжимаются при загрузке
	CompressThreshold int64
}

// UploadResult — результат загрузки.
type UploadResult struct {
	StoredPath       string `json:"stored_path"`
	StoredName       string `json:"stored_name"`
	OriginalFileName string `json:"original_file_name"`
	SizeBytes        int64  `json:"size_bytes"`
	ContentType      string `json:"content_type"`
	IsCompressed     bool   `json:"is_compressed"`
}

// FileContent — содержимое файла для ответа клиенту.
type FileContent struct {
	Data        []byte
	ContentType string
	// DisplayName — имя для Content-Disposition (пусто для preview)
	DisplayName string
}

// CompressResult — результат явного сжатия.
type CompressResult struct {
	NewStoredName  string  `json:"new_stored_name"`
	OriginalSize   int64   `json:"original_size"`
	CompressedSize int64   `json:"compressed_size"`
	RatioPercent   float64 `json:"ratio_percent"`
	// RewrittenRecords — количество встреч, ссылка которых обновлена
	RewrittenRecords int64 `json:"rewritten_records"`
}

// FileService — файловые операции поверх объектного хранилища.
type FileService struct {
	store     *objectstore.Store
	codec     *codec.Codec
	gate      AccessGate
	owners    BlobOwners
	documents DocumentPaths
	cfg       FileConfig
	locks     *blobLocks
	logger    *slog.Logger
}

// NewFileService создаёт файловый сервис.
func NewFileService(
	store *objectstore.Store,
	c *codec.Codec,
	gate AccessGate,
	owners BlobOwners,
	documents DocumentPaths,
	cfg FileConfig,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		store:     store,
		codec:     c,
		gate:      gate,
		owners:    owners,
		documents: documents,
		cfg:       cfg,
		locks:     newBlobLocks(),
		logger:    logger.With(slog.String("component", "files")),
	}
}

// StoredPath возвращает публичный путь файла, сохраняемый в записи встречи.
func StoredPath(ns model.Namespace, storedName string) string {
	return "/uploads/" + ns.Dir() + "/" + storedName
}

// Upload сохраняет файл владельца ownerID.
// size — размер из заголовка загрузки (-1 если неизвестен).
// Документы больше порога сжимаются сразу; сбой сжатия не отменяет загрузку.
func (s *FileService) Upload(ctx context.Context, ns model.Namespace, ownerID int64, r io.Reader, size int64, fileName string) (*UploadResult, error) {
	if r == nil || fileName == "" || size == 0 {
		return nil, newError(KindValidation, CodeNoFile, "файл не передан", nil)
	}

	ref, err := s.store.Put(ns, ownerID, r, size, fileName, s.cfg.MaxUploadSize)
	if err != nil {
		filesOpsTotal.WithLabelValues("upload", string(ns), "rejected").Inc()
		return nil, storeError(err)
	}
	if ref.SizeBytes == 0 {
		s.discard(ns, ref.StoredName)
		return nil, newError(KindValidation, CodeNoFile, "файл пуст", nil)
	}

	if err := s.owners.Register(ctx, ns, ref.StoredName, ownerID); err != nil {
		s.discard(ns, ref.StoredName)
		filesOpsTotal.WithLabelValues("upload", string(ns), "error").Inc()
		return nil, ioError(err)
	}

	if ns == model.NamespaceDocument && ref.SizeBytes > s.cfg.CompressThreshold {
		s.autoCompress(ctx, ref)
	}

	filesOpsTotal.WithLabelValues("upload", string(ns), "ok").Inc()
	s.logger.Info("Файл загружен",
		slog.String("namespace", string(ns)),
		slog.String("name", ref.StoredName),
		slog.Int64("owner_id", ownerID),
		slog.Int64("size", ref.SizeBytes),
	)

	return &UploadResult{
		StoredPath:       StoredPath(ns, ref.StoredName),
		StoredName:       ref.StoredName,
		OriginalFileName: ref.OriginalName,
		SizeBytes:        ref.SizeBytes,
		ContentType:      ref.ContentType,
		IsCompressed:     ref.IsCompressed(),
	}, nil
}

// autoCompress заменяет только что загруженный документ сжатой копией
// и обновляет ref. При ошибке документ остаётся несжатым.
func (s *FileService) autoCompress(ctx context.Context, ref *model.BlobReference) {
	unlock := s.locks.Lock(ref.Namespace, ref.StoredName)
	defer unlock()

	res, err := s.codec.Compress(ref.Namespace, ref.StoredName)
	if err != nil {
		s.logger.Warn("Автоматическое сжатие не выполнено",
			slog.String("name", ref.StoredName),
			slog.String("error", err.Error()),
		)
		return
	}
	s.renameOwner(ctx, ref.Namespace, ref.StoredName, res.NewName)
	ref.StoredName = res.NewName
	ref.SizeBytes = res.CompressedSize
}

// Download возвращает исходное содержимое файла: сжатые файлы распаковываются.
func (s *FileService) Download(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) (*FileContent, error) {
	if err := s.checkRead(ctx, ns, storedName, requesterID); err != nil {
		filesOpsTotal.WithLabelValues("download", string(ns), "rejected").Inc()
		return nil, err
	}

	unlock := s.locks.RLock(ns, storedName)
	defer unlock()

	data, err := s.codec.Read(ns, storedName)
	if err != nil {
		filesOpsTotal.WithLabelValues("download", string(ns), "error").Inc()
		return nil, storeError(err)
	}

	filesOpsTotal.WithLabelValues("download", string(ns), "ok").Inc()
	return &FileContent{
		Data:        data,
		ContentType: model.ContentTypeFor(storedName),
		DisplayName: displayName(ns, storedName),
	}, nil
}

// Preview возвращает содержимое изображения без имени для скачивания.
func (s *FileService) Preview(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) (*FileContent, error) {
	if err := s.checkRead(ctx, ns, storedName, requesterID); err != nil {
		filesOpsTotal.WithLabelValues("preview", string(ns), "rejected").Inc()
		return nil, err
	}
	if !model.IsImageExtension(model.LogicalExtension(storedName)) {
		return nil, newError(KindValidation, CodePreviewNotAllowed, "предпросмотр доступен только для изображений", nil)
	}

	unlock := s.locks.RLock(ns, storedName)
	defer unlock()

	data, err := s.codec.Read(ns, storedName)
	if err != nil {
		filesOpsTotal.WithLabelValues("preview", string(ns), "error").Inc()
		return nil, storeError(err)
	}

	filesOpsTotal.WithLabelValues("preview", string(ns), "ok").Inc()
	return &FileContent{Data: data, ContentType: model.ContentTypeFor(storedName)}, nil
}

// DeleteBlob удаляет файл и соответствие владельца.
func (s *FileService) DeleteBlob(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) error {
	if err := s.checkExists(ns, storedName); err != nil {
		return err
	}
	if !s.gate.CanDelete(ctx, ns, storedName, requesterID) {
		filesOpsTotal.WithLabelValues("delete", string(ns), "forbidden").Inc()
		return forbidden()
	}

	unlock := s.locks.Lock(ns, storedName)
	defer unlock()

	if err := s.store.Delete(ns, storedName); err != nil {
		filesOpsTotal.WithLabelValues("delete", string(ns), "error").Inc()
		return storeError(err)
	}
	s.forgetOwner(ctx, ns, storedName)

	filesOpsTotal.WithLabelValues("delete", string(ns), "ok").Inc()
	s.logger.Info("Файл удалён",
		slog.String("namespace", string(ns)),
		slog.String("name", storedName),
		slog.Int64("requester_id", requesterID),
	)
	return nil
}

// CompressBlob сжимает файл по запросу владельца и переписывает ссылки
// встреч на новое имя.
func (s *FileService) CompressBlob(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) (*CompressResult, error) {
	if err := objectstore.ValidateName(storedName); err != nil {
		return nil, storeError(err)
	}
	if model.IsCompressedName(storedName) {
		return nil, storeError(codec.ErrAlreadyCompressed)
	}
	if err := s.checkRead(ctx, ns, storedName, requesterID); err != nil {
		filesOpsTotal.WithLabelValues("compress", string(ns), "rejected").Inc()
		return nil, err
	}

	unlock := s.locks.Lock(ns, storedName)
	defer unlock()

	res, err := s.codec.Compress(ns, storedName)
	if err != nil {
		filesOpsTotal.WithLabelValues("compress", string(ns), "error").Inc()
		return nil, storeError(err)
	}
	s.renameOwner(ctx, ns, storedName, res.NewName)

	rewritten := int64(0)
	if ns == model.NamespaceDocument {
		n, err := s.documents.RewriteDocumentPath(ctx, storedName, res.NewName)
		if err != nil {
			// Доступ сохраняется: проверка документа учитывает обе формы имени.
			s.logger.Warn("Не удалось обновить ссылки встреч на сжатый документ",
				slog.String("name", res.NewName),
				slog.String("error", err.Error()),
			)
		}
		rewritten = n
	}

	filesOpsTotal.WithLabelValues("compress", string(ns), "ok").Inc()
	return &CompressResult{
		NewStoredName:    res.NewName,
		OriginalSize:     res.OriginalSize,
		CompressedSize:   res.CompressedSize,
		RatioPercent:     res.RatioPercent,
		RewrittenRecords: rewritten,
	}, nil
}

// RemoveDocument удаляет документ встречи ownerID при её окончательном удалении.
// Документ удаляется только если ownerID проходит проверку CanDelete, иначе
// файл остаётся на месте: ссылка встречи на чужой документ его не удаляет.
// Отсутствующий файл не считается ошибкой.
func (s *FileService) RemoveDocument(ctx context.Context, documentPath string, ownerID int64) error {
	name := documentName(documentPath)
	if name == "" {
		return nil
	}
	if err := objectstore.ValidateName(name); err != nil {
		return nil
	}

	unlock := s.locks.Lock(model.NamespaceDocument, name)
	defer unlock()

	if !s.gate.CanDelete(ctx, model.NamespaceDocument, name, ownerID) {
		filesOpsTotal.WithLabelValues("remove_document", string(model.NamespaceDocument), "forbidden").Inc()
		s.logger.Warn("Документ не принадлежит владельцу встречи, удаление пропущено",
			slog.String("name", name),
			slog.Int64("owner_id", ownerID),
		)
		return nil
	}

	if err := s.store.Delete(model.NamespaceDocument, name); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		return storeError(err)
	}
	s.forgetOwner(ctx, model.NamespaceDocument, name)
	return nil
}

// checkRead проверяет имя, существование и право чтения.
func (s *FileService) checkRead(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) error {
	if err := s.checkExists(ns, storedName); err != nil {
		return err
	}
	if !s.gate.CanAccess(ctx, ns, storedName, requesterID) {
		return forbidden()
	}
	return nil
}

func (s *FileService) checkExists(ns model.Namespace, storedName string) error {
	exists, err := s.store.Exists(ns, storedName)
	if err != nil {
		return storeError(err)
	}
	if !exists {
		return newError(KindNotFound, CodeNotFound, "файл не найден", nil)
	}
	return nil
}

func (s *FileService) renameOwner(ctx context.Context, ns model.Namespace, oldName, newName string) {
	s.gate.Forget(ns, oldName)
	if err := s.owners.Rename(ctx, ns, oldName, newName); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Не удалось перенести владельца на сжатый файл",
			slog.String("name", newName),
			slog.String("error", err.Error()),
		)
	}
}

func (s *FileService) forgetOwner(ctx context.Context, ns model.Namespace, storedName string) {
	s.gate.Forget(ns, storedName)
	if err := s.owners.Delete(ctx, ns, storedName); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Не удалось удалить владельца файла",
			slog.String("name", storedName),
			slog.String("error", err.Error()),
		)
	}
}

func (s *FileService) discard(ns model.Namespace, storedName string) {
	if err := s.store.Delete(ns, storedName); err != nil {
		s.logger.Warn("Не удалось удалить отклонённый файл",
			slog.String("name", storedName),
			slog.String("error", err.Error()),
		)
	}
}

// displayName формирует имя для скачивания: document<ext> или profile<ext>,
// где ext — расширение без суффикса сжатия.
func displayName(ns model.Namespace, storedName string) string {
	base := "document"
	if ns == model.NamespaceProfile {
		base = "profile"
	}
	return base + model.LogicalExtension(storedName)
}

// documentName извлекает имя файла из пути документа встречи.
func documentName(documentPath string) string {
	return documentPath[strings.LastIndexByte(documentPath, '/')+1:]
}

// ReportStored пересчитывает файлы каждого раздела хранилища и обновляет
// метрику mm_files_stored. Вызывается при старте после восстановления сжатий.
func (s *FileService) ReportStored() (map[model.Namespace]int, error) {
	counts := make(map[model.Namespace]int, 2)
	for _, ns := range []model.Namespace{model.NamespaceProfile, model.NamespaceDocument} {
		names, err := s.store.List(ns)
		if err != nil {
			return nil, err
		}
		counts[ns] = len(names)
		filesStored.WithLabelValues(string(ns)).Set(float64(len(names)))
	}
	s.logger.Info("Содержимое хранилища подсчитано",
		slog.String("root", s.store.Root()),
		slog.Int("profiles", counts[model.NamespaceProfile]),
		slog.Int("documents", counts[model.NamespaceDocument]),
	)
	return counts, nil
}
