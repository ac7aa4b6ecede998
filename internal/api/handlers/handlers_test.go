package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/onebot"
	"github.com/bigkaa/goartstore/archive-module/internal/scheduler"
	"github.com/bigkaa/goartstore/archive-module/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- моки ---

type mockChecker struct {
	status, message string
}

func (m mockChecker) CheckReady() (string, string) { return m.status, m.message }

type mockDispatcher struct {
	mu     sync.Mutex
	events []*onebot.Event
}

func (m *mockDispatcher) DispatchAsync(_ context.Context, ev *onebot.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

type mockTracker struct {
	listFn  func(limit, offset int) ([]*model.PendingRequest, error)
	getFn   func(id int64) (*model.PendingRequest, error)
	closeFn func(id int64, reason string) (bool, error)
	pollFn  func() (service.PollSummary, error)
}

func (m *mockTracker) ListPending(_ context.Context, limit, offset int) ([]*model.PendingRequest, error) {
	return m.listFn(limit, offset)
}

func (m *mockTracker) Get(_ context.Context, id int64) (*model.PendingRequest, error) {
	return m.getFn(id)
}

func (m *mockTracker) Close(_ context.Context, id int64, reason string) (bool, error) {
	return m.closeFn(id, reason)
}

func (m *mockTracker) Poll(context.Context) (service.PollSummary, error) {
	return m.pollFn()
}

type mockArchive struct {
	getFn    func(id string) (*model.ArchivedItem, error)
	searchFn func(q string, limit int) ([]model.Match, error)
	deleteFn func(id string) error
	statsFn  func(from, to time.Time, top int) (*service.ArchiveStats, error)
}

func (m *mockArchive) Get(_ context.Context, id string) (*model.ArchivedItem, error) {
	return m.getFn(id)
}

func (m *mockArchive) Search(_ context.Context, q string, limit int) ([]model.Match, error) {
	return m.searchFn(q, limit)
}

func (m *mockArchive) Delete(_ context.Context, id string) error {
	return m.deleteFn(id)
}

func (m *mockArchive) Stats(_ context.Context, from, to time.Time, top int) (*service.ArchiveStats, error) {
	return m.statsFn(from, to, top)
}

func (m *mockArchive) SubmitterIDs(context.Context) ([]int64, error) {
	return nil, nil
}

type mockJobs struct {
	ran []string
}

func (m *mockJobs) Jobs() []string { return []string{"daily_report"} }

func (m *mockJobs) Next(string) (time.Time, bool) {
	return time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC), true
}

func (m *mockJobs) RunNow(id string) error {
	if id != "daily_report" {
		return fmt.Errorf("%w: %s", scheduler.ErrUnknownJob, id)
	}
	m.ran = append(m.ran, id)
	return nil
}

// adminRouter повторяет маршруты административного API.
func adminRouter(h *AdminHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/requests", h.ListPendingRequests)
	r.Post("/api/v1/requests/poll", h.PollRequests)
	r.Get("/api/v1/requests/{id}", h.GetRequest)
	r.Post("/api/v1/requests/{id}/close", h.CloseRequest)
	r.Get("/api/v1/items", h.SearchItems)
	r.Get("/api/v1/items/{id}", h.GetItem)
	r.Delete("/api/v1/items/{id}", h.DeleteItem)
	r.Get("/api/v1/stats", h.GetStats)
	r.Get("/api/v1/submitters", h.ListSubmitters)
	r.Get("/api/v1/jobs", h.ListJobs)
	r.Post("/api/v1/jobs/{id}/run", h.RunJob)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("ответ не в формате ошибки: %v", err)
	}
	return body.Error.Code
}

// --- health ---

// TestHealthReady проверяет агрегирование статусов зависимостей в /health/ready.
func TestHealthReady(t *testing.T) {
	tests := []struct {
		name     string
		pg       ReadinessChecker
		redis    ReadinessChecker
		wantCode int
		want     string
	}{
		{"всё доступно", mockChecker{"ok", ""}, mockChecker{"ok", ""}, http.StatusOK, "ok"},
		{"без Redis", mockChecker{"ok", ""}, nil, http.StatusOK, "ok"},
		{"Redis недоступен", mockChecker{"ok", ""}, mockChecker{"fail", "down"}, http.StatusOK, "degraded"},
		{"PostgreSQL недоступен", mockChecker{"fail", "down"}, nil, http.StatusServiceUnavailable, "fail"},
		{"PostgreSQL не инициализирован", nil, nil, http.StatusServiceUnavailable, "fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pg, tt.redis)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("код %d, ожидался %d", rec.Code, tt.wantCode)
			}
			var resp healthReadyResponse
			_ = json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Status != tt.want {
				t.Errorf("статус %q, ожидался %q", resp.Status, tt.want)
			}
		})
	}
}

// TestHealthLive проверяет, что /health/live всегда отвечает ok.
func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil).HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"service":"archive-module"`) {
		t.Errorf("ответ %d %s", rec.Code, rec.Body.String())
	}
}

// --- webhook ---

const textEventJSON = `{"post_type":"message","message_type":"group","time":1746352800,"group_id":100,"user_id":7,"message_id":1,"message":"Книга: X\nАвтор: Y\nПлатформа: Z","sender":{"nickname":"u"}}`

// TestWebhook_AcceptsSignedEvent проверяет приём события с корректной HMAC-подписью.
func TestWebhook_AcceptsSignedEvent(t *testing.T) {
	d := &mockDispatcher{}
	h := NewWebhookHandler("s3cret", d, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/onebot/events", strings.NewReader(textEventJSON))
	req.Header.Set(onebot.SignatureHeader, onebot.Sign("s3cret", []byte(textEventJSON)))
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("код %d: %s", rec.Code, rec.Body.String())
	}
	if len(d.events) != 1 || d.events[0].Kind != onebot.EventText {
		t.Errorf("ожидалось одно текстовое событие, получено %+v", d.events)
	}
}

// TestWebhook_RejectsBadSignature проверяет отказ для события с неверной подписью.
func TestWebhook_RejectsBadSignature(t *testing.T) {
	d := &mockDispatcher{}
	h := NewWebhookHandler("s3cret", d, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/onebot/events", strings.NewReader(textEventJSON))
	req.Header.Set(onebot.SignatureHeader, "sha1=deadbeef")
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)

	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "INVALID_SIGNATURE" {
		t.Errorf("ожидался 401 INVALID_SIGNATURE, получен %d", rec.Code)
	}
	if len(d.events) != 0 {
		t.Error("событие не должно обрабатываться")
	}
}

// TestWebhook_MalformedBody проверяет ответ на некорректное тело события.
func TestWebhook_MalformedBody(t *testing.T) {
	h := NewWebhookHandler("", &mockDispatcher{}, testLogger())
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, httptest.NewRequest(http.MethodPost, "/onebot/events", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("ожидался 400, получен %d", rec.Code)
	}
}

// --- admin ---

// TestAdmin_CloseRequest проверяет закрытие запроса и повторное закрытие завершённого.
func TestAdmin_CloseRequest(t *testing.T) {
	resolved := map[int64]bool{2: true}
	tracker := &mockTracker{
		closeFn: func(id int64, reason string) (bool, error) {
			if id == 404 {
				return false, service.ErrNotFound
			}
			if reason == "" {
				return false, service.ErrValidation
			}
			return !resolved[id], nil
		},
		getFn: func(id int64) (*model.PendingRequest, error) {
			return &model.PendingRequest{ID: id, Status: model.RequestClosed, CloseReason: "дубль"}, nil
		},
	}
	h := adminRouter(NewAdminHandler(tracker, &mockArchive{}, nil, testLogger()))

	rec := do(h, http.MethodPost, "/api/v1/requests/1/close", `{"reason":"дубль"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"closed"`) {
		t.Errorf("закрытие: %d %s", rec.Code, rec.Body.String())
	}

	cases := []struct {
		path, body string
		code       int
		errCode    string
	}{
		{"/api/v1/requests/2/close", `{"reason":"x"}`, http.StatusConflict, "CONFLICT"},
		{"/api/v1/requests/404/close", `{"reason":"x"}`, http.StatusNotFound, "NOT_FOUND"},
		{"/api/v1/requests/1/close", `{"reason":""}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"/api/v1/requests/abc/close", `{"reason":"x"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"/api/v1/requests/1/close", `{"unknown":1}`, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, c := range cases {
		rec := do(h, http.MethodPost, c.path, c.body)
		if rec.Code != c.code || errorCode(t, rec) != c.errCode {
			t.Errorf("%s %s: код %d, ожидался %d %s", c.path, c.body, rec.Code, c.code, c.errCode)
		}
	}
}

// TestAdmin_ListPendingPagination проверяет постраничный список ожидающих запросов.
func TestAdmin_ListPendingPagination(t *testing.T) {
	var gotLimit, gotOffset int
	tracker := &mockTracker{listFn: func(limit, offset int) ([]*model.PendingRequest, error) {
		gotLimit, gotOffset = limit, offset
		return []*model.PendingRequest{{ID: 1, Status: model.RequestPending}}, nil
	}}
	h := adminRouter(NewAdminHandler(tracker, &mockArchive{}, nil, testLogger()))

	rec := do(h, http.MethodGet, "/api/v1/requests?limit=5000&offset=-3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("код %d", rec.Code)
	}
	if gotLimit != 1000 || gotOffset != 0 {
		t.Errorf("limit=%d offset=%d, ожидалось 1000 и 0", gotLimit, gotOffset)
	}
	if rec := do(h, http.MethodGet, "/api/v1/requests?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("некорректный limit: код %d", rec.Code)
	}
}

// TestAdmin_PollRequests проверяет ручной запуск опроса запросов.
func TestAdmin_PollRequests(t *testing.T) {
	tracker := &mockTracker{pollFn: func() (service.PollSummary, error) {
		return service.PollSummary{Scanned: 3, Fulfilled: 1, Closed: 1}, nil
	}}
	h := adminRouter(NewAdminHandler(tracker, &mockArchive{}, nil, testLogger()))

	rec := do(h, http.MethodPost, "/api/v1/requests/poll", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"scanned":3`) {
		t.Errorf("ответ %d %s", rec.Code, rec.Body.String())
	}
}

// TestAdmin_Items проверяет поиск, получение и удаление записей архива.
func TestAdmin_Items(t *testing.T) {
	archive := &mockArchive{
		getFn: func(id string) (*model.ArchivedItem, error) {
			if id != "i1" {
				return nil, service.ErrNotFound
			}
			return &model.ArchivedItem{ID: "i1", DisplayName: "Дюна.pdf", Duplicate: true}, nil
		},
		searchFn: func(q string, _ int) ([]model.Match, error) {
			if q == "" {
				return nil, service.ErrValidation
			}
			return []model.Match{{ID: "i1", Name: "Дюна.pdf"}}, nil
		},
		deleteFn: func(id string) error {
			if id != "i1" {
				return service.ErrNotFound
			}
			return nil
		},
	}
	h := adminRouter(NewAdminHandler(&mockTracker{}, archive, nil, testLogger()))

	if rec := do(h, http.MethodGet, "/api/v1/items/i1", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"duplicate":true`) {
		t.Errorf("GetItem: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(h, http.MethodGet, "/api/v1/items/zz", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GetItem неизвестный: %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/v1/items?q=%D0%94%D1%8E%D0%BD%D0%B0", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Дюна.pdf") {
		t.Errorf("SearchItems: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(h, http.MethodGet, "/api/v1/items", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("пустой запрос: %d", rec.Code)
	}
	if rec := do(h, http.MethodDelete, "/api/v1/items/i1", ""); rec.Code != http.StatusNoContent {
		t.Errorf("DeleteItem: %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/v1/submitters", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ids":[]`) {
		t.Errorf("ListSubmitters: %d %s", rec.Code, rec.Body.String())
	}
}

// TestAdmin_Stats проверяет сводку за период.
func TestAdmin_Stats(t *testing.T) {
	archive := &mockArchive{statsFn: func(from, to time.Time, top int) (*service.ArchiveStats, error) {
		if !from.Before(to) {
			return nil, service.ErrValidation
		}
		return &service.ArchiveStats{
			From: from, To: to, Archived: 5,
			Requests: model.RequestCounts{Total: 2, Fulfilled: 1, Pending: 1},
			Top:      []model.SubmitterCount{{SubmitterID: 1, Count: 5}},
		}, nil
	}}
	h := adminRouter(NewAdminHandler(&mockTracker{}, archive, nil, testLogger()))

	rec := do(h, http.MethodGet, "/api/v1/stats?from=2026-05-01T00:00:00Z&to=2026-05-08T00:00:00Z&top=3", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"archived":5`) {
		t.Errorf("Stats: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(h, http.MethodGet, "/api/v1/stats?from=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("некорректный from: %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/v1/stats?top=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("некорректный top: %d", rec.Code)
	}
}

// TestAdmin_Jobs проверяет список задач планировщика и их ручной запуск.
func TestAdmin_Jobs(t *testing.T) {
	jobs := &mockJobs{}
	h := adminRouter(NewAdminHandler(&mockTracker{}, &mockArchive{}, jobs, testLogger()))

	if rec := do(h, http.MethodGet, "/api/v1/jobs", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "daily_report") {
		t.Errorf("ListJobs: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(h, http.MethodPost, "/api/v1/jobs/daily_report/run", ""); rec.Code != http.StatusNoContent || len(jobs.ran) != 1 {
		t.Errorf("RunJob: %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/jobs/nope/run", ""); rec.Code != http.StatusNotFound {
		t.Errorf("неизвестная задача: %d", rec.Code)
	}

	disabled := adminRouter(NewAdminHandler(&mockTracker{}, &mockArchive{}, nil, testLogger()))
	if rec := do(disabled, http.MethodGet, "/api/v1/jobs", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("планировщик отключён: %d", rec.Code)
	}
}

// TestWriteServiceError_Internal проверяет, что внутренние ошибки не раскрываются клиенту.
func TestWriteServiceError_Internal(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, testLogger(), errors.New("db down"))
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "db down") {
		t.Errorf("внутренняя ошибка не раскрывается: %d %s", rec.Code, rec.Body.String())
	}
}
