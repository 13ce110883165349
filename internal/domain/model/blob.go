package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Namespace — логический раздел хранилища со своей политикой валидации.
type Namespace string

const (
	// NamespaceProfile — изображения профиля пользователя
	NamespaceProfile Namespace = "profile"
	// NamespaceDocument — документы, прикреплённые к встречам
	NamespaceDocument Namespace = "document"
)

// CompressedSuffix — суффикс имени сжатого файла.
// Признак сжатия выводится только из имени, отдельные метаданные не хранятся.
const CompressedSuffix = ".gz"

// Допустимые расширения по разделам.
var (
	imageExtensions    = []string{".jpg", ".jpeg", ".png", ".gif"}
	documentExtensions = []string{".pdf", ".doc", ".docx", ".txt", ".xlsx", ".pptx"}
)

// contentTypes — MIME-тип по расширению (без суффикса сжатия).
var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// ParseNamespace преобразует строку в Namespace.
// Пустая строка означает раздел документов.
func ParseNamespace(s string) (Namespace, error) {
	switch Namespace(strings.ToLower(s)) {
	case "", NamespaceDocument:
		return NamespaceDocument, nil
	case NamespaceProfile:
		return NamespaceProfile, nil
	default:
		return "", fmt.Errorf("неизвестный раздел хранилища: %q", s)
	}
}

// Dir возвращает имя поддиректории раздела в корне хранилища.
func (ns Namespace) Dir() string {
	return string(ns) + "s"
}

// NamePrefix возвращает префикс генерируемых имён файлов раздела.
func (ns Namespace) NamePrefix() string {
	if ns == NamespaceProfile {
		return "profile"
	}
	return "meeting"
}

// AllowedExtensions возвращает allow-list расширений раздела.
func (ns Namespace) AllowedExtensions() []string {
	if ns == NamespaceProfile {
		return imageExtensions
	}
	return documentExtensions
}

// AllowsExtension проверяет расширение по allow-list раздела (без учёта регистра).
func (ns Namespace) AllowsExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range ns.AllowedExtensions() {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Valid проверяет, что раздел известен.
func (ns Namespace) Valid() bool {
	return ns == NamespaceProfile || ns == NamespaceDocument
}

// IsImageExtension проверяет, относится ли расширение к изображениям.
func IsImageExtension(ext string) bool {
	return NamespaceProfile.AllowsExtension(ext)
}

// BlobReference — ссылка на сохранённый файл.
type BlobReference struct {
	Namespace Namespace `json:"namespace"`
	// StoredName — сгенерированное сервером имя: <prefix>_<ownerId>_<timestamp><ext>[.gz]
	StoredName string `json:"stored_name"`
	// OriginalName — имя файла клиента, только для отображения
	OriginalName string `json:"original_name"`
	SizeBytes    int64  `json:"size_bytes"`
	ContentType  string `json:"content_type"`
}

// IsCompressed сообщает, хранится ли файл в сжатом виде.
func (b *BlobReference) IsCompressed() bool {
	return IsCompressedName(b.StoredName)
}

// IsCompressedName проверяет наличие суффикса сжатия в имени.
func IsCompressedName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), CompressedSuffix)
}

// UncompressedName возвращает имя без суффикса сжатия.
func UncompressedName(name string) string {
	if IsCompressedName(name) {
		return name[:len(name)-len(CompressedSuffix)]
	}
	return name
}

// CompressedName возвращает имя с суффиксом сжатия.
func CompressedName(name string) string {
	return name + CompressedSuffix
}

// LogicalExtension возвращает расширение исходного содержимого (без .gz).
func LogicalExtension(name string) string {
	return strings.ToLower(filepath.Ext(UncompressedName(name)))
}

// ContentTypeFor возвращает MIME-тип по имени файла.
func ContentTypeFor(name string) string {
	if ct, ok := contentTypes[LogicalExtension(name)]; ok {
		return ct
	}
	return "application/octet-stream"
}
