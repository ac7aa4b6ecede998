package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/meilisearch/meilisearch-go"
)

// meiliFilter — только оригиналы, не удалённые.
const meiliFilter = "duplicate = false AND deleted = false"

// MeiliBackend — Backend поверх Meilisearch.
type MeiliBackend struct {
	index  meilisearch.IndexManager
	logger *slog.Logger
}

// NewMeiliBackend создаёт клиент Meilisearch для индекса uid.
// Сетевых вызовов не выполняет.
func NewMeiliBackend(host, apiKey, uid string, timeout time.Duration, logger *slog.Logger) *MeiliBackend {
	client := meilisearch.New(host,
		meilisearch.WithAPIKey(apiKey),
		meilisearch.WithCustomClient(&http.Client{Timeout: timeout}),
	)
	return &MeiliBackend{
		index:  client.Index(uid),
		logger: logger.With(slog.String("component", "meilisearch")),
	}
}

// Configure задаёт атрибуты поиска, фильтрации и сортировки индекса.
// Вызывается при старте; задача выполняется Meilisearch асинхронно.
func (b *MeiliBackend) Configure(context.Context) error {
	_, err := b.index.UpdateSettings(&meilisearch.Settings{
		SearchableAttributes: []string{"name"},
		FilterableAttributes: []string{"duplicate", "deleted", "senderId"},
		SortableAttributes:   []string{"archiveDate"},
	})
	if err != nil {
		return wrapMeiliError(err)
	}
	return nil
}

func (b *MeiliBackend) Upsert(_ context.Context, docs []Document) error {
	if _, err := b.index.AddDocuments(docs, "id"); err != nil {
		return wrapMeiliError(err)
	}
	return nil
}

func (b *MeiliBackend) Delete(_ context.Context, id string) error {
	if _, err := b.index.DeleteDocument(id); err != nil {
		return wrapMeiliError(err)
	}
	return nil
}

// meiliSearchResponse — часть ответа поиска, которая нужна модулю.
type meiliSearchResponse struct {
	Hits []Document `json:"hits"`
}

func (b *MeiliBackend) Search(_ context.Context, query string, limit int) ([]Document, error) {
	raw, err := b.index.SearchRaw(query, &meilisearch.SearchRequest{
		Limit:                int64(limit),
		Sort:                 []string{"archiveDate:desc"},
		Filter:               meiliFilter,
		AttributesToSearchOn: []string{"name"},
	})
	if err != nil {
		return nil, wrapMeiliError(err)
	}
	if raw == nil {
		return nil, nil
	}

	var resp meiliSearchResponse
	if err := json.Unmarshal(*raw, &resp); err != nil {
		return nil, fmt.Errorf("разбор ответа Meilisearch: %w", err)
	}
	return resp.Hits, nil
}

// wrapMeiliError переводит ошибку клиента в BackendError со статусом ответа.
func wrapMeiliError(err error) error {
	var me *meilisearch.Error
	if errors.As(err, &me) && me.StatusCode != 0 {
		return &BackendError{StatusCode: me.StatusCode, Err: err}
	}
	return err
}
