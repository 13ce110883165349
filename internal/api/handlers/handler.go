// Пакет handlers — HTTP обработчики Meeting Module.
// Параметры пути и запроса разбираются через oapi-codegen runtime,
// как это делают сгенерированные обёртки.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/goartstore/meeting-module/internal/api/errors"
	"github.com/bigkaa/goartstore/meeting-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
	"github.com/bigkaa/goartstore/meeting-module/internal/service"
)

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ownerID возвращает ID владельца запроса или пишет 401.
func ownerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
	}
	return id, ok
}

// pathString разбирает строковый параметр пути {param}.
func pathString(w http.ResponseWriter, r *http.Request, param string) (string, bool) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", param, chi.URLParam(r, param), &value,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.ValidationError(w, "Некорректный параметр "+param)
		return "", false
	}
	return value, true
}

// pathID разбирает числовой параметр пути {id}.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, "Некорректный ID встречи")
		return 0, false
	}
	return id, true
}

// queryNamespace разбирает параметр ?type=document|profile (по умолчанию document).
func queryNamespace(w http.ResponseWriter, r *http.Request) (model.Namespace, bool) {
	var typ *string
	if err := runtime.BindQueryParameter("form", true, false, "type", r.URL.Query(), &typ); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр type")
		return "", false
	}
	raw := ""
	if typ != nil {
		raw = *typ
	}
	ns, err := model.ParseNamespace(raw)
	if err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, service.CodeInvalidNamespace, "Параметр type: document или profile")
		return "", false
	}
	return ns, true
}
