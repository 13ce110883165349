package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/meeting-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
	"github.com/bigkaa/goartstore/meeting-module/internal/service"
)

// fakeFiles запоминает последний вызов и возвращает заданную ошибку.
type fakeFiles struct {
	err      error
	ns       model.Namespace
	owner    int64
	name     string
	size     int64
	received []byte
}

func (f *fakeFiles) Upload(_ context.Context, ns model.Namespace, ownerID int64, r io.Reader, size int64, fileName string) (*service.UploadResult, error) {
	f.ns, f.owner, f.name, f.size = ns, ownerID, fileName, size
	f.received, _ = io.ReadAll(r)
	if f.err != nil {
		return nil, f.err
	}
	return &service.UploadResult{StoredName: "meeting_42_1.txt", StoredPath: "/uploads/documents/meeting_42_1.txt", SizeBytes: size}, nil
}

func (f *fakeFiles) Download(_ context.Context, ns model.Namespace, name string, requesterID int64) (*service.FileContent, error) {
	f.ns, f.name, f.owner = ns, name, requesterID
	if f.err != nil {
		return nil, f.err
	}
	return &service.FileContent{Data: []byte("hello"), ContentType: "text/plain", DisplayName: "document.txt"}, nil
}

func (f *fakeFiles) Preview(_ context.Context, ns model.Namespace, name string, requesterID int64) (*service.FileContent, error) {
	f.ns, f.name, f.owner = ns, name, requesterID
	if f.err != nil {
		return nil, f.err
	}
	return &service.FileContent{Data: []byte("png"), ContentType: "image/png"}, nil
}

func (f *fakeFiles) DeleteBlob(_ context.Context, ns model.Namespace, name string, requesterID int64) error {
	f.ns, f.name, f.owner = ns, name, requesterID
	return f.err
}

func (f *fakeFiles) CompressBlob(_ context.Context, ns model.Namespace, name string, requesterID int64) (*service.CompressResult, error) {
	f.ns, f.name, f.owner = ns, name, requesterID
	if f.err != nil {
		return nil, f.err
	}
	return &service.CompressResult{NewStoredName: name + ".gz", RatioPercent: 75, RewrittenRecords: 1}, nil
}

// fakeMeetings — сервис встреч с заданным результатом.
type fakeMeetings struct {
	err    error
	id     int64
	owner  int64
	fields model.MeetingFields
}

func (f *fakeMeetings) meeting() *model.Meeting {
	return &model.Meeting{ID: f.id, Title: f.fields.Title, UserID: f.owner}
}

func (f *fakeMeetings) Create(_ context.Context, ownerID int64, fields model.MeetingFields) (*model.Meeting, error) {
	f.id, f.owner, f.fields = 1, ownerID, fields
	if f.err != nil {
		return nil, f.err
	}
	return f.meeting(), nil
}

func (f *fakeMeetings) Update(_ context.Context, id, ownerID int64, fields model.MeetingFields) (*model.Meeting, error) {
	f.id, f.owner, f.fields = id, ownerID, fields
	if f.err != nil {
		return nil, f.err
	}
	return f.meeting(), nil
}

func (f *fakeMeetings) Cancel(_ context.Context, id, ownerID int64) (*model.Meeting, error) {
	f.id, f.owner = id, ownerID
	if f.err != nil {
		return nil, f.err
	}
	m := f.meeting()
	m.IsCancelled = true
	return m, nil
}

func (f *fakeMeetings) AuditTrail(_ context.Context, id, ownerID int64) ([]*model.AuditEntry, error) {
	f.id, f.owner = id, ownerID
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

// newTestRouter собирает маршруты так же, как server, с фиксированным владельцем.
func newTestRouter(files FileOperations, meetings MeetingOperations, owner int64) http.Handler {
	fh := NewFilesHandler(files, 10<<20)
	mh := NewMeetingsHandler(meetings)

	r := chi.NewRouter()
	if owner != 0 {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(middleware.WithOwnerID(req.Context(), owner)))
			})
		})
	}
	r.Post("/api/v1/files/profile-image", fh.UploadProfileImage)
	r.Post("/api/v1/files/document", fh.UploadDocument)
	r.Get("/api/v1/files/{name}/download", fh.DownloadFile)
	r.Get("/api/v1/files/{name}/preview", fh.PreviewFile)
	r.Delete("/api/v1/files/{name}", fh.DeleteFile)
	r.Post("/api/v1/files/{name}/compress", fh.CompressFile)
	r.Post("/api/v1/meetings", mh.CreateMeeting)
	r.Put("/api/v1/meetings/{id}", mh.UpdateMeeting)
	r.Patch("/api/v1/meetings/{id}/cancel", mh.CancelMeeting)
	r.Get("/api/v1/meetings/{id}/audit", mh.GetMeetingAudit)
	return r
}

func multipartBody(t *testing.T, field, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, fileName)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(content)
	} else {
		_ = mw.WriteField("comment", "без файла")
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("тело ошибки не JSON: %v", err)
	}
	return body.Error.Code
}

func TestUploadDocument(t *testing.T) {
	files := &fakeFiles{}
	router := newTestRouter(files, &fakeMeetings{}, 42)

	body, ct := multipartBody(t, "file", "notes.txt", []byte("protocol"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/document", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, хотели 201: %s", rec.Code, rec.Body.String())
	}
	if files.ns != model.NamespaceDocument || files.owner != 42 || files.name != "notes.txt" {
		t.Errorf("вызов Upload: ns=%s owner=%d name=%s", files.ns, files.owner, files.name)
	}
	if files.size != 8 || string(files.received) != "protocol" {
		t.Errorf("передано %d байт %q", files.size, files.received)
	}
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		serviceErr error
		owner      int64
		wantStatus int
		wantCode   string
	}{
		{"нет поля file", "", nil, 42, http.StatusBadRequest, service.CodeNoFile},
		{"слишком большой", "file", &service.Error{Kind: service.KindValidation, Code: service.CodeFileTooLarge, Message: "файл превышает допустимый размер"}, 42, http.StatusRequestEntityTooLarge, service.CodeFileTooLarge},
		{"плохое расширение", "file", &service.Error{Kind: service.KindValidation, Code: service.CodeBadExtension, Message: "недопустимое расширение файла"}, 42, http.StatusBadRequest, service.CodeBadExtension},
		{"без аутентификации", "file", nil, 0, http.StatusUnauthorized, "UNAUTHORIZED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeFiles{err: tt.serviceErr}, &fakeMeetings{}, tt.owner)
			body, ct := multipartBody(t, tt.field, "me.png", []byte("img"))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/files/profile-image", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, хотели %d", rec.Code, tt.wantStatus)
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("code = %q, хотели %q", code, tt.wantCode)
			}
		})
	}
}

func TestDownloadFile(t *testing.T) {
	files := &fakeFiles{}
	router := newTestRouter(files, &fakeMeetings{}, 42)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/files/meeting_42_1.txt/download?type=document", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, хотели 200", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("тело = %q", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=document.txt" {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q", ct)
	}
	if files.name != "meeting_42_1.txt" || files.ns != model.NamespaceDocument {
		t.Errorf("вызов Download: ns=%s name=%s", files.ns, files.name)
	}
}

func TestFileEndpoints_Errors(t *testing.T) {
	forbidden := &service.Error{Kind: service.KindForbidden, Code: service.CodeForbidden, Message: "доступ запрещён"}
	notFound := &service.Error{Kind: service.KindNotFound, Code: service.CodeNotFound, Message: "файл не найден"}
	conflict := &service.Error{Kind: service.KindConflict, Code: service.CodeAlreadyCompressed, Message: "файл уже сжат"}

	tests := []struct {
		name       string
		method     string
		path       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"чужой профиль", http.MethodGet, "/api/v1/files/profile_42_1.png/download?type=profile", forbidden, http.StatusForbidden, service.CodeForbidden},
		{"нет файла", http.MethodGet, "/api/v1/files/meeting_1_1.txt/preview", notFound, http.StatusNotFound, service.CodeNotFound},
		{"неизвестный type", http.MethodGet, "/api/v1/files/x.txt/download?type=video", nil, http.StatusBadRequest, service.CodeInvalidNamespace},
		{"удаление чужого", http.MethodDelete, "/api/v1/files/meeting_42_1.txt", forbidden, http.StatusForbidden, service.CodeForbidden},
		{"повторное сжатие", http.MethodPost, "/api/v1/files/meeting_42_1.txt.gz/compress", conflict, http.StatusConflict, service.CodeAlreadyCompressed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeFiles{err: tt.err}, &fakeMeetings{}, 7)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, хотели %d", rec.Code, tt.wantStatus)
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("code = %q, хотели %q", code, tt.wantCode)
			}
		})
	}
}

func TestDeleteAndCompress(t *testing.T) {
	files := &fakeFiles{}
	router := newTestRouter(files, &fakeMeetings{}, 42)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/files/profile_42_1.png?type=profile", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE статус = %d, хотели 204", rec.Code)
	}
	if files.ns != model.NamespaceProfile {
		t.Errorf("DELETE ns = %s, хотели profile", files.ns)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/files/meeting_42_1.txt/compress", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("compress статус = %d, хотели 200", rec.Code)
	}
	var res service.CompressResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.NewStoredName != "meeting_42_1.txt.gz" || res.RewrittenRecords != 1 {
		t.Errorf("результат сжатия = %+v", res)
	}
}

func TestCreateMeeting(t *testing.T) {
	meetings := &fakeMeetings{}
	router := newTestRouter(&fakeFiles{}, meetings, 42)

	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	payload, _ := json.Marshal(model.MeetingFields{
		Title:     "Ретро",
		StartDate: start,
		EndDate:   start.Add(time.Hour),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/meetings", bytes.NewReader(payload)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, хотели 201: %s", rec.Code, rec.Body.String())
	}
	if meetings.owner != 42 || meetings.fields.Title != "Ретро" || !meetings.fields.StartDate.Equal(start) {
		t.Errorf("вызов Create: owner=%d fields=%+v", meetings.owner, meetings.fields)
	}
}

func TestMeetingEndpoints_Errors(t *testing.T) {
	cancelled := &service.Error{Kind: service.KindConflict, Code: service.CodeAlreadyCancelled, Message: "встреча уже отменена"}
	immutable := &service.Error{Kind: service.KindConflict, Code: service.CodeImmutable, Message: "отменённую встречу нельзя изменить"}
	notFound := &service.Error{Kind: service.KindNotFound, Code: service.CodeNotFound, Message: "встреча не найдена"}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"невалидный JSON", http.MethodPost, "/api/v1/meetings", "{", nil, http.StatusBadRequest, service.CodeValidation},
		{"лишнее поле", http.MethodPost, "/api/v1/meetings", `{"title":"x","owner":1}`, nil, http.StatusBadRequest, service.CodeValidation},
		{"нечисловой id", http.MethodPatch, "/api/v1/meetings/abc/cancel", "", nil, http.StatusBadRequest, service.CodeValidation},
		{"нулевой id", http.MethodGet, "/api/v1/meetings/0/audit", "", nil, http.StatusBadRequest, service.CodeValidation},
		{"повторная отмена", http.MethodPatch, "/api/v1/meetings/5/cancel", "", cancelled, http.StatusConflict, service.CodeAlreadyCancelled},
		{"изменение отменённой", http.MethodPut, "/api/v1/meetings/5", `{"title":"x"}`, immutable, http.StatusConflict, service.CodeImmutable},
		{"чужая встреча", http.MethodGet, "/api/v1/meetings/5/audit", "", notFound, http.StatusNotFound, service.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeFiles{}, &fakeMeetings{err: tt.err}, 42)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, хотели %d", rec.Code, tt.wantStatus)
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("code = %q, хотели %q", code, tt.wantCode)
			}
		})
	}
}

func TestCancelAndAudit(t *testing.T) {
	meetings := &fakeMeetings{}
	router := newTestRouter(&fakeFiles{}, meetings, 42)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/meetings/5/cancel", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel статус = %d, хотели 200", rec.Code)
	}
	var m model.Meeting
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m.ID != 5 || !m.IsCancelled {
		t.Errorf("ответ cancel = %+v", m)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/meetings/5/audit", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("audit статус = %d, хотели 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"items":[],"total":0}` {
		t.Errorf("тело audit = %s", body)
	}
}
