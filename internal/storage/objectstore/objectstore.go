// Пакет objectstore — хранение именованных файлов в разделах (namespace)
// на локальной файловой системе.
//
// Раскладка: <root>/<namespace dir>/<storedName>. Имена генерируются сервером,
// все операции отклоняют имена с "..", "/" и "\" до обращения к диску.
// Запись: temp файл → fsync → hard link под итоговым именем → удаление temp.
// Существующий файл никогда не перезаписывается, при ошибке temp файл удаляется.
package objectstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

// Ошибки объектного хранилища.
var (
	// ErrNotFound — файл не найден
	ErrNotFound = errors.New("файл не найден")
	// ErrInvalidName — недопустимое имя файла
	ErrInvalidName = errors.New("недопустимое имя файла")
	// ErrTooLarge — файл превышает лимит размера
	ErrTooLarge = errors.New("файл превышает допустимый размер")
	// ErrDisallowedExtension — расширение не входит в allow-list раздела
	ErrDisallowedExtension = errors.New("недопустимое расширение файла")
	// ErrInvalidNamespace — неизвестный раздел
	ErrInvalidNamespace = errors.New("неизвестный раздел хранилища")
	// ErrExists — файл с таким именем уже существует
	ErrExists = errors.New("файл уже существует")
)

// tempPrefix — префикс временных файлов. Имена с точкой в начале
// не могут быть сгенерированы и отклоняются validateName.
const tempPrefix = ".write-"

// Store — объектное хранилище с инъецируемым корнем.
type Store struct {
	// root — корневая директория (MM_DATA_DIR)
	root string
	// now — источник времени для генерации имён
	now func() time.Time
	// lastStamp — последняя выданная метка времени (строго возрастает)
	lastStamp atomic.Int64
}

// New создаёт Store. Корневая директория создаётся, если отсутствует;
// директории разделов создаются лениво при первой записи.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранилища %s: %w", root, err)
	}
	return &Store{root: root, now: time.Now}, nil
}

// Root возвращает корневую директорию хранилища.
func (s *Store) Root() string {
	return s.root
}

// Put валидирует и сохраняет содержимое reader в раздел ns.
//
// declaredSize — размер из заголовка загрузки (-1 если неизвестен);
// лимит проверяется до записи и повторно при потоковом чтении.
// Из originalName используется только расширение.
func (s *Store) Put(ns model.Namespace, ownerID int64, r io.Reader, declaredSize int64, originalName string, maxSize int64) (*model.BlobReference, error) {
	if !ns.Valid() {
		return nil, ErrInvalidNamespace
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if !ns.AllowsExtension(ext) {
		return nil, fmt.Errorf("%w: %q, допустимые: %s",
			ErrDisallowedExtension, ext, strings.Join(ns.AllowedExtensions(), " "))
	}

	if declaredSize > maxSize {
		return nil, tooLarge(maxSize)
	}

	storedName := s.generateName(ns, ownerID, ext)
	size, err := s.writeAtomic(ns, storedName, func(w io.Writer) error {
		n, err := io.Copy(w, io.LimitReader(r, maxSize+1))
		if err != nil {
			return err
		}
		if n > maxSize {
			return tooLarge(maxSize)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &model.BlobReference{
		Namespace:    ns,
		StoredName:   storedName,
		OriginalName: filepath.Base(originalName),
		SizeBytes:    size,
		ContentType:  model.ContentTypeFor(storedName),
	}, nil
}

// Write атомарно записывает файл с заданным именем через fn.
// Используется кодеком для записи сжатой копии. Существующий файл
// не перезаписывается: проверка Exists лишь избегает лишней записи,
// гарантию даёт публикация через link, в том числе при гонке.
func (s *Store) Write(ns model.Namespace, storedName string, fn func(w io.Writer) error) (int64, error) {
	if err := validateName(storedName); err != nil {
		return 0, err
	}
	if !ns.Valid() {
		return 0, ErrInvalidNamespace
	}
	exists, err := s.Exists(ns, storedName)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrExists
	}
	return s.writeAtomic(ns, storedName, fn)
}

// Get возвращает содержимое файла без распаковки.
func (s *Store) Get(ns model.Namespace, storedName string) ([]byte, error) {
	f, err := s.Open(ns, storedName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", storedName, err)
	}
	return data, nil
}

// Open открывает файл для потокового чтения. Вызывающий код обязан закрыть файл.
func (s *Store) Open(ns model.Namespace, storedName string) (*os.File, error) {
	path, err := s.path(ns, storedName)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storedName, err)
	}
	return f, nil
}

// Delete удаляет файл. Отсутствующий файл — ErrNotFound.
func (s *Store) Delete(ns model.Namespace, storedName string) error {
	path, err := s.path(ns, storedName)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка удаления файла %s: %w", storedName, err)
	}
	return nil
}

// Exists проверяет существование файла.
func (s *Store) Exists(ns model.Namespace, storedName string) (bool, error) {
	path, err := s.path(ns, storedName)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("ошибка проверки файла %s: %w", storedName, err)
}

// Size возвращает размер файла на диске.
func (s *Store) Size(ns model.Namespace, storedName string) (int64, error) {
	path, err := s.path(ns, storedName)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", storedName, err)
	}
	return info.Size(), nil
}

// List возвращает имена файлов раздела (без временных).
// Отсутствующая директория раздела — пустой список.
func (s *Store) List(ns model.Namespace) ([]string, error) {
	if !ns.Valid() {
		return nil, ErrInvalidNamespace
	}

	entries, err := os.ReadDir(filepath.Join(s.root, ns.Dir()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения раздела %s: %w", ns, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// CleanTemp удаляет временные файлы, оставшиеся после аварийного завершения.
// Возвращает количество удалённых файлов.
func (s *Store) CleanTemp(ns model.Namespace) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, ns.Dir(), tempPrefix+"*"))
	if err != nil {
		return 0, fmt.Errorf("ошибка поиска временных файлов: %w", err)
	}

	cleaned := 0
	for _, path := range matches {
		if err := os.Remove(path); err == nil {
			cleaned++
		}
	}
	return cleaned, nil
}

// writeAtomic пишет файл через temp → fsync → link в директории раздела.
func (s *Store) writeAtomic(ns model.Namespace, storedName string, fn func(w io.Writer) error) (int64, error) {
	dir := filepath.Join(s.root, ns.Dir())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("не удалось создать директорию раздела %s: %w", ns, err)
	}

	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	counter := &countingWriter{w: f}
	if err := fn(counter); err != nil {
		f.Close()
		os.Remove(tmpPath)
		if errors.Is(err, ErrTooLarge) {
			return 0, err
		}
		return 0, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Публикация через hard link: link не заменяет существующий файл,
	// поэтому занятое имя даёт ErrExists без внешней блокировки.
	finalPath := filepath.Join(dir, storedName)
	if err := os.Link(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		if os.IsExist(err) {
			return 0, ErrExists
		}
		return 0, fmt.Errorf("ошибка публикации файла %s: %w", storedName, err)
	}
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("ошибка удаления временного файла: %w", err)
	}

	return counter.n, nil
}

// path проверяет имя и раздел и возвращает абсолютный путь.
func (s *Store) path(ns model.Namespace, storedName string) (string, error) {
	if err := validateName(storedName); err != nil {
		return "", err
	}
	if !ns.Valid() {
		return "", ErrInvalidNamespace
	}
	return filepath.Join(s.root, ns.Dir(), storedName), nil
}

// generateName генерирует имя <prefix>_<ownerId>_<timestamp><ext>.
// Метка времени строго возрастает в пределах процесса, поэтому
// параллельные загрузки получают разные имена.
func (s *Store) generateName(ns model.Namespace, ownerID int64, ext string) string {
	for {
		stamp := s.now().UTC().UnixNano()
		last := s.lastStamp.Load()
		if stamp <= last {
			stamp = last + 1
		}
		if s.lastStamp.CompareAndSwap(last, stamp) {
			return fmt.Sprintf("%s_%d_%d%s", ns.NamePrefix(), ownerID, stamp, ext)
		}
	}
}

// ValidateName проверяет имя файла, пришедшее от клиента.
func ValidateName(storedName string) error {
	return validateName(storedName)
}

func validateName(storedName string) error {
	switch {
	case storedName == "",
		strings.Contains(storedName, ".."),
		strings.ContainsAny(storedName, `/\`),
		strings.ContainsRune(storedName, 0),
		strings.HasPrefix(storedName, "."):
		return ErrInvalidName
	}
	return nil
}

func tooLarge(maxSize int64) error {
	return fmt.Errorf("%w: максимум %s", ErrTooLarge, units.BytesSize(float64(maxSize)))
}

// countingWriter считает записанные байты.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
