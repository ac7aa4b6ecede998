// Пакет search — полнотекстовый индекс архивированных файлов.
//
// Indexer оборачивает Backend (Meilisearch) и реализует политику отказа:
// ошибка аутентификации (401/403) отключает индекс до перезапуска процесса,
// любые другие ошибки возвращаются вызывающему и не меняют состояние.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// ErrDisabled — индекс не настроен или отключён после ошибки аутентификации.
var ErrDisabled = errors.New("поисковый индекс отключён")

// Prometheus-метрики поискового индекса.
var (
	searchOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_search_operations_total",
		Help: "Операции поискового индекса по типу и результату.",
	}, []string{"operation", "result"})
	searchEnabledGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ar_search_enabled",
		Help: "Состояние поискового индекса (1 — включён, 0 — отключён).",
	})
)

// Document — документ индекса.
type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SenderID    int64  `json:"senderId"`
	Size        int64  `json:"size"`
	MD5         string `json:"md5"`
	Duplicate   bool   `json:"duplicate"`
	Deleted     bool   `json:"deleted"`
	OriginURL   string `json:"originUrl"`
	ArchiveURL  string `json:"archiveUrl"`
	ArchiveDate int64  `json:"archiveDate"`
}

// DocumentOf строит документ индекса из записи архива.
func DocumentOf(item *model.ArchivedItem) Document {
	return Document{
		ID:          item.ID,
		Name:        item.DisplayName,
		SenderID:    item.SubmitterID,
		Size:        item.Size,
		MD5:         item.ContentHash,
		Duplicate:   item.Duplicate,
		Deleted:     item.Deleted,
		OriginURL:   item.OriginURL,
		ArchiveURL:  item.StorageURL,
		ArchiveDate: item.ArchivedAt.Unix(),
	}
}

// Match преобразует документ в краткое описание найденного файла.
func (d Document) Match() model.Match {
	return model.Match{
		ID:          d.ID,
		Name:        d.Name,
		URL:         d.ArchiveURL,
		SubmitterID: d.SenderID,
		ArchivedAt:  time.Unix(d.ArchiveDate, 0).UTC(),
	}
}

// BackendError — ошибка backend с HTTP-статусом ответа.
type BackendError struct {
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("поисковый backend: HTTP %d: %v", e.StatusCode, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Backend — операции поискового движка.
type Backend interface {
	// Upsert добавляет или заменяет документы по id.
	Upsert(ctx context.Context, docs []Document) error
	// Delete удаляет документ.
	Delete(ctx context.Context, id string) error
	// Search ищет оригиналы (не дубликаты, не удалённые) по имени, новые первыми.
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}

// Indexer — поисковый индекс с постоянным отключением при ошибке аутентификации.
type Indexer struct {
	backend Backend
	enabled atomic.Bool
	logger  *slog.Logger
}

// NewIndexer создаёт индекс. nil backend — индекс отключён.
func NewIndexer(backend Backend, logger *slog.Logger) *Indexer {
	i := &Indexer{
		backend: backend,
		logger:  logger.With(slog.String("component", "search_indexer")),
	}
	i.enabled.Store(backend != nil)
	searchEnabledGauge.Set(boolToFloat(backend != nil))
	return i
}

// Enabled сообщает, доступен ли индекс.
func (i *Indexer) Enabled() bool {
	return i.enabled.Load()
}

// Upsert индексирует запись архива.
func (i *Indexer) Upsert(ctx context.Context, item *model.ArchivedItem) error {
	if !i.Enabled() {
		return ErrDisabled
	}
	if err := i.backend.Upsert(ctx, []Document{DocumentOf(item)}); err != nil {
		return i.fail("upsert", err)
	}
	searchOpsTotal.WithLabelValues("upsert", "success").Inc()
	return nil
}

// Delete удаляет запись из индекса.
func (i *Indexer) Delete(ctx context.Context, id string) error {
	if !i.Enabled() {
		return ErrDisabled
	}
	if err := i.backend.Delete(ctx, id); err != nil {
		return i.fail("delete", err)
	}
	searchOpsTotal.WithLabelValues("delete", "success").Inc()
	return nil
}

// Search ищет файлы по имени.
func (i *Indexer) Search(ctx context.Context, query string, limit int) ([]model.Match, error) {
	if !i.Enabled() {
		return nil, ErrDisabled
	}
	docs, err := i.backend.Search(ctx, query, limit)
	if err != nil {
		return nil, i.fail("search", err)
	}
	searchOpsTotal.WithLabelValues("search", "success").Inc()

	matches := make([]model.Match, 0, len(docs))
	for _, d := range docs {
		matches = append(matches, d.Match())
	}
	return matches, nil
}

// fail учитывает ошибку и отключает индекс при отказе в доступе.
func (i *Indexer) fail(operation string, err error) error {
	searchOpsTotal.WithLabelValues(operation, "error").Inc()
	if isAuthError(err) && i.enabled.CompareAndSwap(true, false) {
		searchEnabledGauge.Set(0)
		i.logger.Error("Поисковый индекс отключён: ошибка аутентификации",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
	return fmt.Errorf("поисковый индекс, %s: %w", operation, err)
}

// isAuthError — ответ 401/403 от backend.
func isAuthError(err error) bool {
	var be *BackendError
	if !errors.As(err, &be) {
		return false
	}
	return be.StatusCode == http.StatusUnauthorized || be.StatusCode == http.StatusForbidden
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
