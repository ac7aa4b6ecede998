package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

func seedItems(repo *memItemRepo, names ...string) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, n := range names {
		_ = repo.Insert(context.Background(), &model.ArchivedItem{
			ID:          n,
			DisplayName: n,
			StorageURL:  "https://cdn/" + n,
			ArchivedAt:  base.Add(time.Duration(i) * time.Hour),
		})
	}
}

// TestSearchService_IndexFirst проверяет поиск сначала через индекс.
func TestSearchService_IndexFirst(t *testing.T) {
	items := &memItemRepo{}
	seedItems(items, "Солярис.pdf")
	idx := &mockIndexer{enabled: true, searchFn: func(string, int) ([]model.Match, error) {
		return []model.Match{{ID: "from-index", Name: "Солярис.epub"}}, nil
	}}
	s := NewSearchService(idx, items, 0, 0, testLogger())

	hits, err := s.Find(context.Background(), "Солярис", "", 5)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "from-index" {
		t.Errorf("ожидался результат индекса, получено %+v", hits)
	}
}

// TestSearchService_FallsBackToRepository проверяет переход к PostgreSQL при сбое индекса.
func TestSearchService_FallsBackToRepository(t *testing.T) {
	items := &memItemRepo{}
	seedItems(items, "Солярис.pdf", "Непобедимый.pdf")
	idx := &mockIndexer{enabled: true, searchFn: func(string, int) ([]model.Match, error) {
		return nil, errors.New("meili down")
	}}
	s := NewSearchService(idx, items, 0, 0, testLogger())

	// «Солярис Лем» не совпадает с именем, срабатывает запасной ключ
	hits, err := s.Find(context.Background(), "Солярис Лем", "Солярис", 5)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(hits) != 1 || hits[0].Name != "Солярис.pdf" {
		t.Errorf("ожидался Солярис.pdf, получено %+v", hits)
	}
}

// TestSearchService_EmptyKeyword проверяет пустой ключ поиска.
func TestSearchService_EmptyKeyword(t *testing.T) {
	s := NewSearchService(nil, &memItemRepo{}, 0, 0, testLogger())
	hits, err := s.Find(context.Background(), " ", "", 5)
	if err != nil || hits != nil {
		t.Errorf("пустой ключ: %v, %v", hits, err)
	}
}

// TestSearchService_CacheAndInvalidate проверяет кэш результатов и его сброс.
func TestSearchService_CacheAndInvalidate(t *testing.T) {
	items := &memItemRepo{}
	seedItems(items, "Дюна.pdf")
	calls := 0
	idx := &mockIndexer{enabled: true, searchFn: func(string, int) ([]model.Match, error) {
		calls++
		return nil, nil
	}}
	s := NewSearchService(idx, items, 16, time.Minute, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if hits, _ := s.Find(ctx, "Дюна", "", 5); len(hits) != 1 {
			t.Fatalf("ожидался 1 результат, получено %d", len(hits))
		}
	}
	if calls != 1 {
		t.Errorf("повторные запросы должны идти из кэша, обращений к индексу: %d", calls)
	}

	s.Invalidate()
	_, _ = s.Find(ctx, "Дюна", "", 5)
	if calls != 2 {
		t.Errorf("после Invalidate ожидалось обращение к индексу, всего: %d", calls)
	}

	// пустой результат не кэшируется
	_, _ = s.Find(ctx, "нет такого", "", 5)
	_, _ = s.Find(ctx, "нет такого", "", 5)
	if calls != 4 {
		t.Errorf("пустые результаты не кэшируются, обращений: %d", calls)
	}
}
