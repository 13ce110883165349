// Пакет errors — ответы с ошибками в едином формате Meeting Module.
// Формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError или FromService.
package errors //nolint:revive // имя пакета совпадает со stdlib, импортируется как apierrors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/bigkaa/goartstore/meeting-module/internal/service"
)

// Коды ошибок транспортного уровня. Доменные коды задаёт пакет service.
const (
	CodeValidationError = service.CodeValidation
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = service.CodeNotFound
	CodeInternalError   = service.CodeInternal
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// FromService записывает ошибку сервисного слоя с HTTP-статусом по её классу.
// Сообщения внутренних ошибок не раскрываются клиенту.
func FromService(w http.ResponseWriter, err error) {
	kind := service.KindOf(err)
	code := service.CodeOf(err)
	status := StatusFor(kind, code)

	message := "внутренняя ошибка"
	var se *service.Error
	if status < http.StatusInternalServerError && stderrors.As(err, &se) {
		message = se.Message
	}
	WriteError(w, status, code, message)
}

// StatusFor возвращает HTTP-статус для класса и кода ошибки.
func StatusFor(kind service.Kind, code string) int {
	switch kind {
	case service.KindValidation:
		if code == service.CodeFileTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
