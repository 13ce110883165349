// errors.go — типизированные ошибки сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/lifecycle"
	"github.com/bigkaa/goartstore/meeting-module/internal/repository"
	"github.com/bigkaa/goartstore/meeting-module/internal/storage/codec"
	"github.com/bigkaa/goartstore/meeting-module/internal/storage/objectstore"
)

// Kind — класс ошибки, определяет реакцию вызывающего кода.
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation — некорректный ввод, исправляется клиентом
	KindValidation
	// KindNotFound — файл или запись не найдены
	KindNotFound
	// KindForbidden — отказ в доступе
	KindForbidden
	// KindConflict — операция противоречит текущему состоянию
	KindConflict
	// KindTransientIO — сбой файловой системы или БД
	KindTransientIO
	// KindInternalAudit — сбой записи аудита, не блокирует основную операцию
	KindInternalAudit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindTransientIO:
		return "transient_io"
	case KindInternalAudit:
		return "internal_audit"
	default:
		return "internal"
	}
}

// Коды ошибок (стабильные, машиночитаемые).
const (
	CodeNoFile            = "NO_FILE"
	CodeFileTooLarge      = "FILE_TOO_LARGE"
	CodeBadExtension      = "BAD_EXTENSION"
	CodeInvalidName       = "INVALID_NAME"
	CodeInvalidNamespace  = "INVALID_NAMESPACE"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeAlreadyCancelled  = "ALREADY_CANCELLED"
	CodeAlreadyCompressed = "ALREADY_COMPRESSED"
	CodeImmutable         = "IMMUTABLE"
	CodeConcurrentUpdate  = "CONCURRENT_UPDATE"
	CodePreviewNotAllowed = "PREVIEW_NOT_SUPPORTED"
	CodeIOError           = "IO_ERROR"
	CodeAuditFailed       = "AUDIT_FAILED"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error — ошибка сервисного слоя. Message предназначен для клиента
// и не содержит путей и внутренних деталей; причина хранится в Err.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func validationError(message string) *Error {
	return newError(KindValidation, CodeValidation, message, nil)
}

func notFound(message string) *Error {
	return newError(KindNotFound, CodeNotFound, message, nil)
}

func forbidden() *Error {
	return newError(KindForbidden, CodeForbidden, "доступ запрещён", nil)
}

func ioError(err error) *Error {
	return newError(KindTransientIO, CodeIOError, "внутренняя ошибка хранилища", err)
}

// KindOf возвращает класс ошибки; для нетипизированных — KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf возвращает код ошибки; для нетипизированных — INTERNAL_ERROR.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// storeError переводит ошибки хранилища и кодека в ошибки сервиса.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, objectstore.ErrInvalidName):
		return newError(KindValidation, CodeInvalidName, "недопустимое имя файла", err)
	case errors.Is(err, objectstore.ErrInvalidNamespace):
		return newError(KindValidation, CodeInvalidNamespace, "неизвестный тип файла", err)
	case errors.Is(err, objectstore.ErrTooLarge):
		return newError(KindValidation, CodeFileTooLarge, "файл превышает допустимый размер", err)
	case errors.Is(err, objectstore.ErrDisallowedExtension):
		return newError(KindValidation, CodeBadExtension, "недопустимое расширение файла", err)
	case errors.Is(err, objectstore.ErrNotFound):
		return newError(KindNotFound, CodeNotFound, "файл не найден", err)
	case errors.Is(err, codec.ErrAlreadyCompressed):
		return newError(KindConflict, CodeAlreadyCompressed, "файл уже сжат", err)
	default:
		return ioError(err)
	}
}

// transitionError переводит ошибку конечного автомата в ошибку сервиса.
func transitionError(err error) error {
	switch lifecycle.ErrorCode(err) {
	case lifecycle.CodeAlreadyCancelled:
		return newError(KindConflict, CodeAlreadyCancelled, "встреча уже отменена", err)
	case lifecycle.CodeImmutable:
		return newError(KindConflict, CodeImmutable, "отменённую встречу нельзя изменить", err)
	case "":
		return err
	default:
		return newError(KindConflict, lifecycle.ErrorCode(err), err.Error(), err)
	}
}

// recordError переводит ошибки репозитория в ошибки сервиса.
func recordError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return newError(KindNotFound, CodeNotFound, "встреча не найдена", err)
	default:
		return ioError(err)
	}
}
