package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

func newArchiveFixture() (*ArchiveService, *memItemRepo, *memRequestRepo, *mockIndexer) {
	items := &memItemRepo{}
	requests := &memRequestRepo{}
	idx := &mockIndexer{enabled: false}
	searchSvc := NewSearchService(idx, items, 8, time.Minute, testLogger())
	return NewArchiveService(items, requests, idx, searchSvc, testLogger()), items, requests, idx
}

// TestArchiveService_GetAndDelete проверяет получение и мягкое удаление записи.
func TestArchiveService_GetAndDelete(t *testing.T) {
	svc, items, _, idx := newArchiveFixture()
	seedItems(items, "Дюна.pdf")
	ctx := context.Background()

	item, err := svc.Get(ctx, "Дюна.pdf")
	if err != nil || item.DisplayName != "Дюна.pdf" {
		t.Fatalf("Get: %v, %v", item, err)
	}
	if _, err := svc.Get(ctx, "нет"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}

	// результат попадает в кэш, удаление его сбрасывает
	if hits, _ := svc.Search(ctx, "Дюна", 5); len(hits) != 1 {
		t.Fatalf("до удаления ожидался 1 результат, получено %d", len(hits))
	}
	if err := svc.Delete(ctx, "Дюна.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if hits, _ := svc.Search(ctx, "Дюна", 5); len(hits) != 0 {
		t.Errorf("удалённая запись не ищется, получено %d", len(hits))
	}
	if len(idx.deleted) != 1 {
		t.Error("запись должна удаляться из индекса")
	}
	if err := svc.Delete(ctx, "Дюна.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное удаление: ожидалась ErrNotFound, получено %v", err)
	}
}

// TestArchiveService_SearchValidation проверяет валидацию параметров поиска.
func TestArchiveService_SearchValidation(t *testing.T) {
	svc, _, _, _ := newArchiveFixture()
	if _, err := svc.Search(context.Background(), "", 5); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}
}

// TestArchiveService_Stats проверяет сводку за период.
func TestArchiveService_Stats(t *testing.T) {
	svc, items, requests, _ := newArchiveFixture()
	ctx := context.Background()
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	addItem(items, "a", 1, "A", from.Add(time.Hour))
	addItem(items, "b", 2, "B", from.Add(2*time.Hour))
	addItem(items, "c", 2, "B", from.AddDate(0, 2, 0))
	_ = requests.Create(ctx, &model.PendingRequest{Content: "q", CreatedAt: from.Add(time.Hour)})

	stats, err := svc.Stats(ctx, from, to, 5)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Archived != 2 || stats.Requests.Total != 1 || stats.Pending != 1 || len(stats.Top) != 2 {
		t.Errorf("сводка %+v", stats)
	}

	if _, err := svc.Stats(ctx, to, from, 5); !errors.Is(err, ErrValidation) {
		t.Errorf("перепутанный период: ожидалась ErrValidation, получено %v", err)
	}

	ids, err := svc.SubmitterIDs(ctx)
	if err != nil || len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("SubmitterIDs = %v, %v", ids, err)
	}
}
