// openapi.go — встроенный контракт API.
package handlers

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openapiSpec []byte

// LoadOpenAPI разбирает и валидирует встроенный контракт.
// Вызывается при старте: невалидный контракт — ошибка запуска.
func LoadOpenAPI(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("разбор openapi.yaml: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("валидация openapi.yaml: %w", err)
	}
	return doc, nil
}

// OpenAPIHandler отдаёт контракт по GET /api/v1/openapi.yaml.
type OpenAPIHandler struct {
	version string
}

// NewOpenAPIHandler создаёт обработчик контракта для проверенного doc.
func NewOpenAPIHandler(doc *openapi3.T) *OpenAPIHandler {
	return &OpenAPIHandler{version: doc.Info.Version}
}

// GetOpenAPI обрабатывает GET /api/v1/openapi.yaml.
func (h *OpenAPIHandler) GetOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("X-API-Version", h.version)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}
