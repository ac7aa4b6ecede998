package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockBackend — мок Backend с функциональными полями.
type mockBackend struct {
	upsertFn func(docs []Document) error
	deleteFn func(id string) error
	searchFn func(query string, limit int) ([]Document, error)

	upserts int
}

func (m *mockBackend) Upsert(_ context.Context, docs []Document) error {
	m.upserts++
	if m.upsertFn != nil {
		return m.upsertFn(docs)
	}
	return nil
}

func (m *mockBackend) Delete(_ context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(id)
	}
	return nil
}

func (m *mockBackend) Search(_ context.Context, query string, limit int) ([]Document, error) {
	if m.searchFn != nil {
		return m.searchFn(query, limit)
	}
	return nil, nil
}

func sampleItem() *model.ArchivedItem {
	return &model.ArchivedItem{
		ID:          "id-1",
		DisplayName: "novel.pdf",
		StorageURL:  "https://cdn.example.com/novel.pdf",
		ArchivedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SubmitterID: 1001,
		ContentHash: "abc",
	}
}

// TestIndexer_NilBackendDisabled проверяет индексатор без backend.
func TestIndexer_NilBackendDisabled(t *testing.T) {
	idx := NewIndexer(nil, testLogger())
	if idx.Enabled() {
		t.Fatal("индекс без backend должен быть отключён")
	}
	if err := idx.Upsert(context.Background(), sampleItem()); !errors.Is(err, ErrDisabled) {
		t.Errorf("Upsert: ожидалась ErrDisabled, получено %v", err)
	}
	if _, err := idx.Search(context.Background(), "x", 5); !errors.Is(err, ErrDisabled) {
		t.Errorf("Search: ожидалась ErrDisabled, получено %v", err)
	}
}

// TestIndexer_Upsert проверяет добавление записи в индекс.
func TestIndexer_Upsert(t *testing.T) {
	var got Document
	backend := &mockBackend{upsertFn: func(docs []Document) error {
		got = docs[0]
		return nil
	}}
	idx := NewIndexer(backend, testLogger())

	if err := idx.Upsert(context.Background(), sampleItem()); err != nil {
		t.Fatalf("Upsert ошибка: %v", err)
	}
	if got.ID != "id-1" || got.Name != "novel.pdf" || got.MD5 != "abc" || got.SenderID != 1001 {
		t.Errorf("документ = %+v", got)
	}
	if got.ArchiveDate != sampleItem().ArchivedAt.Unix() {
		t.Errorf("ArchiveDate = %d", got.ArchiveDate)
	}
}

// TestIndexer_AuthFailureDisablesPermanently проверяет отключение индекса при ошибке авторизации.
func TestIndexer_AuthFailureDisablesPermanently(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		backend := &mockBackend{upsertFn: func([]Document) error {
			return &BackendError{StatusCode: status, Err: errors.New("invalid api key")}
		}}
		idx := NewIndexer(backend, testLogger())

		if err := idx.Upsert(context.Background(), sampleItem()); err == nil {
			t.Fatalf("HTTP %d: ожидалась ошибка", status)
		}
		if idx.Enabled() {
			t.Errorf("HTTP %d: индекс должен быть отключён", status)
		}

		// Последующие вызовы не обращаются к backend
		backend.upsertFn = nil
		if err := idx.Upsert(context.Background(), sampleItem()); !errors.Is(err, ErrDisabled) {
			t.Errorf("HTTP %d: ожидалась ErrDisabled, получено %v", status, err)
		}
		if backend.upserts != 1 {
			t.Errorf("HTTP %d: вызовов backend = %d, ожидался 1", status, backend.upserts)
		}
	}
}

// TestIndexer_TransientErrorKeepsEnabled проверяет, что временная ошибка не отключает индекс.
func TestIndexer_TransientErrorKeepsEnabled(t *testing.T) {
	backend := &mockBackend{searchFn: func(string, int) ([]Document, error) {
		return nil, &BackendError{StatusCode: http.StatusServiceUnavailable, Err: errors.New("busy")}
	}}
	idx := NewIndexer(backend, testLogger())

	if _, err := idx.Search(context.Background(), "novel", 5); err == nil {
		t.Fatal("ожидалась ошибка поиска")
	}
	if !idx.Enabled() {
		t.Error("временная ошибка не должна отключать индекс")
	}

	backend.searchFn = func(string, int) ([]Document, error) {
		return nil, errors.New("connection refused")
	}
	_, _ = idx.Search(context.Background(), "novel", 5)
	if !idx.Enabled() {
		t.Error("сетевая ошибка не должна отключать индекс")
	}
}

// TestIndexer_Search проверяет поиск через индекс.
func TestIndexer_Search(t *testing.T) {
	var gotLimit int
	backend := &mockBackend{searchFn: func(q string, limit int) ([]Document, error) {
		gotLimit = limit
		return []Document{DocumentOf(sampleItem())}, nil
	}}
	idx := NewIndexer(backend, testLogger())

	matches, err := idx.Search(context.Background(), "novel", 7)
	if err != nil {
		t.Fatalf("Search ошибка: %v", err)
	}
	if gotLimit != 7 {
		t.Errorf("limit = %d", gotLimit)
	}
	if len(matches) != 1 {
		t.Fatalf("найдено %d", len(matches))
	}
	m := matches[0]
	if m.Name != "novel.pdf" || m.URL != "https://cdn.example.com/novel.pdf" || !m.ArchivedAt.Equal(sampleItem().ArchivedAt) {
		t.Errorf("Match = %+v", m)
	}
}

// TestWrapMeiliError_PassThrough проверяет сохранение прочих ошибок Meilisearch.
func TestWrapMeiliError_PassThrough(t *testing.T) {
	err := errors.New("plain")
	if wrapMeiliError(err) != err {
		t.Error("обычная ошибка должна возвращаться без изменений")
	}
}
