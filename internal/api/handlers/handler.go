// Пакет handlers — HTTP-обработчики Archive Module: health, приём
// событий OneBot и административное API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/bigkaa/goartstore/archive-module/internal/api/errors"
	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/scheduler"
	"github.com/bigkaa/goartstore/archive-module/internal/service"
)

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса в v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, scheduler.ErrUnknownJob):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrAlreadyResolved):
		apierrors.Conflict(w, err.Error())
	default:
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// pagination разбирает limit и offset из query-параметров.
// limit по умолчанию 100, диапазон 1..1000; offset >= 0.
func pagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = 100, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, errors.New("limit должен быть целым числом")
		}
		limit = min(max(limit, 1), 1000)
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, errors.New("offset должен быть целым числом")
		}
		offset = max(offset, 0)
	}
	return limit, offset, nil
}

// --- DTO ---

type matchResponse struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	SubmitterID int64     `json:"submitterId,omitempty"`
	ArchivedAt  time.Time `json:"archivedAt"`
}

func toMatches(hits []model.Match) []matchResponse {
	out := make([]matchResponse, 0, len(hits))
	for _, h := range hits {
		out = append(out, matchResponse{
			ID:          h.ID,
			Name:        h.Name,
			URL:         h.URL,
			SubmitterID: h.SubmitterID,
			ArchivedAt:  h.ArchivedAt,
		})
	}
	return out
}

type requestResponse struct {
	ID            int64           `json:"id"`
	Content       string          `json:"content"`
	Extract       string          `json:"extract"`
	RequesterID   int64           `json:"requesterId"`
	RequesterName string          `json:"requesterName,omitempty"`
	ContextID     int64           `json:"contextId"`
	CreatedAt     time.Time       `json:"createdAt"`
	Status        string          `json:"status"`
	Result        []matchResponse `json:"result"`
	CloseReason   string          `json:"closeReason,omitempty"`
	ResolvedAt    *time.Time      `json:"resolvedAt,omitempty"`
}

func toRequestResponse(r *model.PendingRequest) requestResponse {
	return requestResponse{
		ID:            r.ID,
		Content:       r.Content,
		Extract:       r.Extract,
		RequesterID:   r.RequesterID,
		RequesterName: r.RequesterName,
		ContextID:     r.ContextID,
		CreatedAt:     r.CreatedAt,
		Status:        string(r.Status),
		Result:        toMatches(r.Result),
		CloseReason:   r.CloseReason,
		ResolvedAt:    r.ResolvedAt,
	}
}

type itemResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	ObjectKey     string    `json:"objectKey,omitempty"`
	ArchivedAt    time.Time `json:"archivedAt"`
	SubmitterID   int64     `json:"submitterId"`
	SubmitterName string    `json:"submitterName,omitempty"`
	ContextID     int64     `json:"contextId"`
	Size          int64     `json:"size"`
	FileType      string    `json:"fileType"`
	ContentHash   string    `json:"contentHash"`
	Duplicate     bool      `json:"duplicate"`
	Deleted       bool      `json:"deleted"`
}

func toItemResponse(it *model.ArchivedItem) itemResponse {
	return itemResponse{
		ID:            it.ID,
		Name:          it.DisplayName,
		URL:           it.StorageURL,
		ObjectKey:     it.ObjectKey,
		ArchivedAt:    it.ArchivedAt,
		SubmitterID:   it.SubmitterID,
		SubmitterName: it.SubmitterName,
		ContextID:     it.ContextID,
		Size:          it.Size,
		FileType:      it.FileType,
		ContentHash:   it.ContentHash,
		Duplicate:     it.Duplicate,
		Deleted:       it.Deleted,
	}
}
