package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/archive-module/internal/api/errors"
	"github.com/bigkaa/goartstore/archive-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/service"
)

// RequestTracker — операции над запросами для администратора.
type RequestTracker interface {
	ListPending(ctx context.Context, limit, offset int) ([]*model.PendingRequest, error)
	Get(ctx context.Context, id int64) (*model.PendingRequest, error)
	Close(ctx context.Context, id int64, reason string) (bool, error)
	Poll(ctx context.Context) (service.PollSummary, error)
}

// ArchiveBrowser — просмотр и удаление записей архива.
type ArchiveBrowser interface {
	Get(ctx context.Context, id string) (*model.ArchivedItem, error)
	Search(ctx context.Context, query string, limit int) ([]model.Match, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, from, to time.Time, topLimit int) (*service.ArchiveStats, error)
	SubmitterIDs(ctx context.Context) ([]int64, error)
}

// JobRunner — периодические задачи. nil — планировщик отключён.
type JobRunner interface {
	Jobs() []string
	Next(id string) (time.Time, bool)
	RunNow(id string) error
}

// AdminHandler — административное API.
type AdminHandler struct {
	tracker RequestTracker
	archive ArchiveBrowser
	jobs    JobRunner
	logger  *slog.Logger
}

// NewAdminHandler создаёт обработчик административного API.
func NewAdminHandler(tracker RequestTracker, archive ArchiveBrowser, jobs JobRunner, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		tracker: tracker,
		archive: archive,
		jobs:    jobs,
		logger:  logger.With(slog.String("component", "admin_api")),
	}
}

// --- Запросы ---

type listRequestsResponse struct {
	Items  []requestResponse `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// ListPendingRequests — GET /api/v1/requests.
func (h *AdminHandler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	reqs, err := h.tracker.ListPending(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	resp := listRequestsResponse{Items: make([]requestResponse, 0, len(reqs)), Limit: limit, Offset: offset}
	for _, req := range reqs {
		resp.Items = append(resp.Items, toRequestResponse(req))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRequest — GET /api/v1/requests/{id}.
func (h *AdminHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	req, err := h.tracker.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

type closeRequestBody struct {
	Reason string `json:"reason"`
}

// CloseRequest — POST /api/v1/requests/{id}/close.
// 409, если запрос уже выполнен или закрыт.
func (h *AdminHandler) CloseRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	var body closeRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	closed, err := h.tracker.Close(r.Context(), id, body.Reason)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if !closed {
		writeServiceError(w, h.logger, fmt.Errorf("запрос %d: %w", id, service.ErrAlreadyResolved))
		return
	}

	h.logger.Info("Запрос закрыт администратором",
		slog.Int64("request_id", id),
		slog.String("reason", body.Reason),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	req, err := h.tracker.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

type pollResponse struct {
	Scanned   int `json:"scanned"`
	Fulfilled int `json:"fulfilled"`
	Closed    int `json:"closed"`
	Failed    int `json:"failed"`
}

// PollRequests — POST /api/v1/requests/poll: внеочередной проход.
func (h *AdminHandler) PollRequests(w http.ResponseWriter, r *http.Request) {
	summary, err := h.tracker.Poll(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pollResponse(summary))
}

// --- Архив ---

type searchResponse struct {
	Items []matchResponse `json:"items"`
}

// SearchItems — GET /api/v1/items?q=&limit=.
func (h *AdminHandler) SearchItems(w http.ResponseWriter, r *http.Request) {
	limit, _, err := pagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	hits, err := h.archive.Search(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")), limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: toMatches(hits)})
}

// GetItem — GET /api/v1/items/{id}.
func (h *AdminHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.archive.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

// DeleteItem — DELETE /api/v1/items/{id} (мягкое удаление).
func (h *AdminHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.archive.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("Запись архива удалена",
		slog.String("item_id", id),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

type statsResponse struct {
	From     time.Time           `json:"from"`
	To       time.Time           `json:"to"`
	Archived int                 `json:"archived"`
	Requests requestCounts       `json:"requests"`
	Pending  int                 `json:"pending"`
	Top      []submitterResponse `json:"top"`
}

type requestCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Fulfilled int `json:"fulfilled"`
	Closed    int `json:"closed"`
}

type submitterResponse struct {
	SubmitterID   int64  `json:"submitterId"`
	SubmitterName string `json:"submitterName,omitempty"`
	Count         int    `json:"count"`
}

// GetStats — GET /api/v1/stats?from=&to=&top=.
// from и to в RFC 3339; по умолчанию последние 7 дней.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := time.Now()
	from := to.AddDate(0, 0, -7)
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			apierrors.ValidationError(w, "from должен быть в формате RFC 3339")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			apierrors.ValidationError(w, "to должен быть в формате RFC 3339")
			return
		}
	}
	top := 10
	if v := q.Get("top"); v != "" {
		if top, err = strconv.Atoi(v); err != nil || top < 1 || top > 100 {
			apierrors.ValidationError(w, "top должен быть числом от 1 до 100")
			return
		}
	}

	stats, err := h.archive.Stats(r.Context(), from, to, top)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	resp := statsResponse{
		From:     stats.From,
		To:       stats.To,
		Archived: stats.Archived,
		Requests: requestCounts(stats.Requests),
		Pending:  stats.Pending,
		Top:      make([]submitterResponse, 0, len(stats.Top)),
	}
	for _, s := range stats.Top {
		resp.Top = append(resp.Top, submitterResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

type submittersResponse struct {
	IDs []int64 `json:"ids"`
}

// ListSubmitters — GET /api/v1/submitters.
func (h *AdminHandler) ListSubmitters(w http.ResponseWriter, r *http.Request) {
	ids, err := h.archive.SubmitterIDs(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, submittersResponse{IDs: ids})
}

// --- Задачи планировщика ---

type jobResponse struct {
	ID      string     `json:"id"`
	NextRun *time.Time `json:"nextRun,omitempty"`
}

// ListJobs — GET /api/v1/jobs.
func (h *AdminHandler) ListJobs(w http.ResponseWriter, _ *http.Request) {
	if h.jobs == nil {
		apierrors.Unavailable(w, "Планировщик отключён")
		return
	}
	ids := h.jobs.Jobs()
	out := make([]jobResponse, 0, len(ids))
	for _, id := range ids {
		j := jobResponse{ID: id}
		if next, ok := h.jobs.Next(id); ok {
			j.NextRun = &next
		}
		out = append(out, j)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

// RunJob — POST /api/v1/jobs/{id}/run: синхронный запуск задачи.
func (h *AdminHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		apierrors.Unavailable(w, "Планировщик отключён")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.jobs.RunNow(id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("Задача запущена вручную",
		slog.String("job", id),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

// requestID разбирает {id} запроса; при ошибке пишет 400.
func requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, "Некорректный идентификатор запроса")
		return 0, false
	}
	return id, true
}
