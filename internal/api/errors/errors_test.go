package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/goartstore/meeting-module/internal/service"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind service.Kind
		code string
		want int
	}{
		{service.KindValidation, service.CodeInvalidName, http.StatusBadRequest},
		{service.KindValidation, service.CodeFileTooLarge, http.StatusRequestEntityTooLarge},
		{service.KindNotFound, service.CodeNotFound, http.StatusNotFound},
		{service.KindForbidden, service.CodeForbidden, http.StatusForbidden},
		{service.KindConflict, service.CodeAlreadyCancelled, http.StatusConflict},
		{service.KindTransientIO, service.CodeIOError, http.StatusInternalServerError},
		{service.KindInternalAudit, service.CodeAuditFailed, http.StatusInternalServerError},
		{service.KindInternal, service.CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusFor(tt.kind, tt.code); got != tt.want {
			t.Errorf("StatusFor(%s, %s) = %d, хотели %d", tt.kind, tt.code, got, tt.want)
		}
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("тело ответа не JSON: %v", err)
	}
	return body.Error
}

func TestFromService(t *testing.T) {
	rec := httptest.NewRecorder()
	FromService(rec, &service.Error{
		Kind:    service.KindForbidden,
		Code:    service.CodeForbidden,
		Message: "доступ запрещён",
	})

	if rec.Code != http.StatusForbidden {
		t.Errorf("статус = %d, хотели 403", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	detail := decode(t, rec)
	if detail.Code != service.CodeForbidden || detail.Message != "доступ запрещён" {
		t.Errorf("тело = %+v", detail)
	}
}

// Внутренние детали не попадают в ответ.
func TestFromService_HidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	FromService(rec, fmt.Errorf("open /var/data/documents/x.txt: permission denied"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("статус = %d, хотели 500", rec.Code)
	}
	detail := decode(t, rec)
	if detail.Code != service.CodeInternal {
		t.Errorf("code = %q, хотели INTERNAL_ERROR", detail.Code)
	}
	if detail.Message != "внутренняя ошибка" {
		t.Errorf("message = %q раскрывает детали", detail.Message)
	}
}
