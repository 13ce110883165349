// files.go — HTTP handlers файловых операций: загрузка, скачивание,
// предпросмотр, удаление, сжатие.
package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/goartstore/meeting-module/internal/api/errors"
	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
	"github.com/bigkaa/goartstore/meeting-module/internal/service"
)

// multipartMemory — объём multipart формы, удерживаемый в памяти;
// остальное сбрасывается во временные файлы.
const multipartMemory = 8 << 20

// multipartOverhead — запас на заголовки multipart сверх лимита файла.
const multipartOverhead = 1 << 20

// FileOperations — файловые операции сервисного слоя.
type FileOperations interface {
	Upload(ctx context.Context, ns model.Namespace, ownerID int64, r io.Reader, size int64, fileName string) (*service.UploadResult, error)
	Download(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) (*service.FileContent, error)
	Preview(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) (*service.FileContent, error)
	DeleteBlob(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) error
	CompressBlob(ctx context.Context, ns model.Namespace, storedName string, requesterID int64) (*service.CompressResult, error)
}

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	files         FileOperations
	maxUploadSize int64
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(files FileOperations, maxUploadSize int64) *FilesHandler {
	return &FilesHandler{files: files, maxUploadSize: maxUploadSize}
}

// UploadProfileImage обрабатывает POST /api/v1/files/profile-image.
func (h *FilesHandler) UploadProfileImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, model.NamespaceProfile)
}

// UploadDocument обрабатывает POST /api/v1/files/document.
func (h *FilesHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, model.NamespaceDocument)
}

// upload принимает multipart форму с полем file.
func (h *FilesHandler) upload(w http.ResponseWriter, r *http.Request, ns model.Namespace) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.WriteError(w, http.StatusRequestEntityTooLarge, service.CodeFileTooLarge, "Файл превышает допустимый размер")
			return
		}
		apierrors.WriteError(w, http.StatusBadRequest, service.CodeNoFile, "Файл не передан")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, service.CodeNoFile, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	res, err := h.files.Upload(r.Context(), ns, owner, file, header.Size, header.Filename)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// DownloadFile обрабатывает GET /api/v1/files/{name}/download?type=.
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	owner, ns, name, ok := h.fileParams(w, r)
	if !ok {
		return
	}

	content, err := h.files.Download(r.Context(), ns, name, owner)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": content.DisplayName}))
	writeContent(w, content)
}

// PreviewFile обрабатывает GET /api/v1/files/{name}/preview?type=.
func (h *FilesHandler) PreviewFile(w http.ResponseWriter, r *http.Request) {
	owner, ns, name, ok := h.fileParams(w, r)
	if !ok {
		return
	}

	content, err := h.files.Preview(r.Context(), ns, name, owner)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	w.Header().Set("Content-Disposition", "inline")
	writeContent(w, content)
}

// DeleteFile обрабатывает DELETE /api/v1/files/{name}?type=.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	owner, ns, name, ok := h.fileParams(w, r)
	if !ok {
		return
	}

	if err := h.files.DeleteBlob(r.Context(), ns, name, owner); err != nil {
		apierrors.FromService(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompressFile обрабатывает POST /api/v1/files/{name}/compress?type=.
func (h *FilesHandler) CompressFile(w http.ResponseWriter, r *http.Request) {
	owner, ns, name, ok := h.fileParams(w, r)
	if !ok {
		return
	}

	res, err := h.files.CompressBlob(r.Context(), ns, name, owner)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *FilesHandler) fileParams(w http.ResponseWriter, r *http.Request) (int64, model.Namespace, string, bool) {
	owner, ok := ownerID(w, r)
	if !ok {
		return 0, "", "", false
	}
	name, ok := pathString(w, r, "name")
	if !ok {
		return 0, "", "", false
	}
	ns, ok := queryNamespace(w, r)
	if !ok {
		return 0, "", "", false
	}
	return owner, ns, name, true
}

func writeContent(w http.ResponseWriter, content *service.FileContent) {
	w.Header().Set("Content-Type", content.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content.Data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Data)
}
