// Пакет codec — обратимое сжатие файлов объектного хранилища (gzip).
//
// Сжатый файл хранится под исходным именем с суффиксом .gz; признак
// сжатия выводится только из имени. Замена исходного файла сжатой копией
// журналируется в WAL: исходный файл удаляется только после того, как
// сжатая копия полностью записана и переименована на место.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
	"github.com/bigkaa/goartstore/meeting-module/internal/storage/objectstore"
	"github.com/bigkaa/goartstore/meeting-module/internal/storage/wal"
)

// Prometheus метрики кодека
var (
	compressTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_codec_compress_total",
		Help: "Общее количество операций сжатия",
	}, []string{"result"})

	compressSavedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_codec_saved_bytes_total",
		Help: "Суммарный объём, сэкономленный сжатием, в байтах",
	})
)

// Ошибки кодека.
var (
	// ErrAlreadyCompressed — файл уже хранится в сжатом виде
	ErrAlreadyCompressed = errors.New("файл уже сжат")
	// ErrNotCompressed — файл не сжат, распаковка невозможна
	ErrNotCompressed = errors.New("файл не сжат")
)

// Result — результат сжатия.
type Result struct {
	OriginalName   string  `json:"original_name"`
	NewName        string  `json:"new_name"`
	OriginalSize   int64   `json:"original_size"`
	CompressedSize int64   `json:"compressed_size"`
	RatioPercent   float64 `json:"ratio_percent"`
}

// RecoveryResult — итог разбора незавершённых транзакций при старте.
type RecoveryResult struct {
	RolledBack    int
	RolledForward int
	TempCleaned   int
}

// Codec — сжатие и распаковка файлов хранилища.
type Codec struct {
	store   *objectstore.Store
	journal *wal.WAL
	level   int
	logger  *slog.Logger
}

// New создаёт кодек со стандартным уровнем сжатия.
func New(store *objectstore.Store, journal *wal.WAL, logger *slog.Logger) *Codec {
	return &Codec{
		store:   store,
		journal: journal,
		level:   gzip.DefaultCompression,
		logger:  logger.With(slog.String("component", "codec")),
	}
}

// Compress заменяет файл его сжатой копией и возвращает новое имя.
//
// При ошибке частичная сжатая копия удаляется, исходный файл остаётся
// нетронутым. Исходный файл удаляется только после успешной записи копии.
func (c *Codec) Compress(ns model.Namespace, storedName string) (*Result, error) {
	if err := objectstore.ValidateName(storedName); err != nil {
		return nil, err
	}
	if model.IsCompressedName(storedName) {
		return nil, ErrAlreadyCompressed
	}

	originalSize, err := c.store.Size(ns, storedName)
	if err != nil {
		return nil, err
	}

	target := model.CompressedName(storedName)
	exists, err := c.store.Exists(ns, target)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyCompressed
	}

	tx, err := c.journal.Begin(wal.OpCompress, string(ns), storedName, target)
	if err != nil {
		return nil, err
	}

	compressedSize, err := c.store.Write(ns, target, func(w io.Writer) error {
		return c.encode(ns, storedName, w)
	})
	if err != nil {
		c.rollback(tx.TransactionID)
		compressTotal.WithLabelValues("error").Inc()
		if errors.Is(err, objectstore.ErrExists) {
			return nil, ErrAlreadyCompressed
		}
		return nil, fmt.Errorf("ошибка записи сжатой копии: %w", err)
	}

	// Копия подтверждена на диске — удаляем исходный файл
	if err := c.store.Delete(ns, storedName); err != nil {
		if rmErr := c.store.Delete(ns, target); rmErr != nil {
			c.logger.Error("Не удалось удалить сжатую копию после сбоя",
				slog.String("name", target),
				slog.String("error", rmErr.Error()),
			)
		}
		c.rollback(tx.TransactionID)
		compressTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ошибка удаления исходного файла: %w", err)
	}

	if err := c.journal.Commit(tx.TransactionID); err != nil {
		c.logger.Warn("Не удалось закоммитить WAL-транзакцию сжатия",
			slog.String("tx_id", tx.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	compressTotal.WithLabelValues("ok").Inc()
	if saved := originalSize - compressedSize; saved > 0 {
		compressSavedBytes.Add(float64(saved))
	}

	result := &Result{
		OriginalName:   storedName,
		NewName:        target,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		RatioPercent:   Ratio(originalSize, compressedSize),
	}

	c.logger.Info("Файл сжат",
		slog.String("namespace", string(ns)),
		slog.String("name", target),
		slog.Int64("original_size", originalSize),
		slog.Int64("compressed_size", compressedSize),
		slog.Float64("ratio_percent", result.RatioPercent),
	)
	return result, nil
}

// Decompress возвращает распакованное содержимое сжатого файла.
// Результат не сохраняется в хранилище.
func (c *Codec) Decompress(ns model.Namespace, storedName string) ([]byte, error) {
	if err := objectstore.ValidateName(storedName); err != nil {
		return nil, err
	}
	if !model.IsCompressedName(storedName) {
		return nil, ErrNotCompressed
	}

	f, err := c.store.Open(ns, storedName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("повреждённый сжатый файл %s: %w", storedName, err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, fmt.Errorf("ошибка распаковки %s: %w", storedName, err)
	}
	return buf.Bytes(), nil
}

// Read возвращает исходное содержимое файла: сжатые файлы распаковываются,
// остальные читаются как есть.
func (c *Codec) Read(ns model.Namespace, storedName string) ([]byte, error) {
	if model.IsCompressedName(storedName) {
		return c.Decompress(ns, storedName)
	}
	return c.store.Get(ns, storedName)
}

// Recover разбирает незавершённые транзакции сжатия после рестарта.
//
// Если исходный файл на месте — сжатая копия удаляется (откат).
// Если остался только сжатый файл — транзакция коммитится.
func (c *Codec) Recover() (*RecoveryResult, error) {
	result := &RecoveryResult{}

	for _, ns := range []model.Namespace{model.NamespaceProfile, model.NamespaceDocument} {
		n, err := c.store.CleanTemp(ns)
		if err != nil {
			return result, err
		}
		result.TempCleaned += n
	}

	pending, err := c.journal.Pending()
	if err != nil {
		return result, err
	}

	for _, entry := range pending {
		if entry.Operation != wal.OpCompress {
			continue
		}
		ns := model.Namespace(entry.Namespace)

		sourceExists, err := c.store.Exists(ns, entry.Source)
		if err != nil {
			c.logger.Error("Ошибка проверки исходного файла при восстановлении",
				slog.String("tx_id", entry.TransactionID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if sourceExists {
			if err := c.store.Delete(ns, entry.Target); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
				c.logger.Error("Не удалось удалить незавершённую сжатую копию",
					slog.String("name", entry.Target),
					slog.String("error", err.Error()),
				)
				continue
			}
			c.rollback(entry.TransactionID)
			result.RolledBack++
			continue
		}

		if err := c.journal.Commit(entry.TransactionID); err != nil {
			c.logger.Warn("Не удалось закоммитить транзакцию при восстановлении",
				slog.String("tx_id", entry.TransactionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.RolledForward++
	}

	if _, err := c.journal.Prune(); err != nil {
		c.logger.Warn("Ошибка очистки WAL", slog.String("error", err.Error()))
	}

	if result.RolledBack+result.RolledForward+result.TempCleaned > 0 {
		c.logger.Info("Восстановление кодека завершено",
			slog.Int("rolled_back", result.RolledBack),
			slog.Int("rolled_forward", result.RolledForward),
			slog.Int("temp_cleaned", result.TempCleaned),
		)
	}
	return result, nil
}

// Ratio возвращает процент экономии: round((1 - compressed/original) * 100, 2).
func Ratio(originalSize, compressedSize int64) float64 {
	if originalSize <= 0 {
		return 0
	}
	ratio := (1 - float64(compressedSize)/float64(originalSize)) * 100
	return math.Round(ratio*100) / 100
}

// encode пишет gzip-представление исходного файла в w.
func (c *Codec) encode(ns model.Namespace, storedName string, w io.Writer) error {
	src, err := c.store.Open(ns, storedName)
	if err != nil {
		return err
	}
	defer src.Close()

	zw, err := gzip.NewWriterLevel(w, c.level)
	if err != nil {
		return err
	}
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func (c *Codec) rollback(txID string) {
	if err := c.journal.Rollback(txID); err != nil {
		c.logger.Warn("Не удалось откатить WAL-транзакцию",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}
