package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/repository"
	"github.com/bigkaa/goartstore/archive-module/internal/search"
)

// ArchiveStats — сводка по архиву за период.
type ArchiveStats struct {
	From     time.Time
	To       time.Time
	Archived int
	Requests model.RequestCounts
	Pending  int
	Top      []model.SubmitterCount
}

// ArchiveService — административные операции над архивом.
type ArchiveService struct {
	items    repository.ArchivedItemRepository
	requests repository.PendingRequestRepository
	indexer  Indexer
	search   *SearchService
	logger   *slog.Logger
}

// NewArchiveService создаёт сервис. indexer может быть nil.
func NewArchiveService(
	items repository.ArchivedItemRepository,
	requests repository.PendingRequestRepository,
	indexer Indexer,
	searchService *SearchService,
	logger *slog.Logger,
) *ArchiveService {
	return &ArchiveService{
		items:    items,
		requests: requests,
		indexer:  indexer,
		search:   searchService,
		logger:   logger.With(slog.String("component", "archive_service")),
	}
}

// Get возвращает запись архива.
func (s *ArchiveService) Get(ctx context.Context, id string) (*model.ArchivedItem, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("файл %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return item, nil
}

// Search ищет файлы по подстроке имени.
func (s *ArchiveService) Search(ctx context.Context, query string, limit int) ([]model.Match, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: пустой запрос", ErrValidation)
	}
	return s.search.Find(ctx, query, "", limit)
}

// Delete помечает запись удалённой и убирает её из индекса.
func (s *ArchiveService) Delete(ctx context.Context, id string) error {
	if err := s.items.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("файл %s: %w", id, ErrNotFound)
		}
		return err
	}
	if s.indexer != nil {
		if err := s.indexer.Delete(ctx, id); err != nil && !errors.Is(err, search.ErrDisabled) {
			s.logger.Warn("Документ не удалён из индекса",
				slog.String("item_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	s.search.Invalidate()
	s.logger.Info("Файл удалён из архива", slog.String("item_id", id))
	return nil
}

// Stats возвращает сводку за период [from, to).
func (s *ArchiveService) Stats(ctx context.Context, from, to time.Time, topLimit int) (*ArchiveStats, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: начало периода должно быть раньше конца", ErrValidation)
	}
	stats := &ArchiveStats{From: from, To: to}

	var err error
	if stats.Archived, err = s.items.CountBetween(ctx, from, to); err != nil {
		return nil, err
	}
	if stats.Requests, err = s.requests.CountBetween(ctx, from, to); err != nil {
		return nil, err
	}
	if stats.Pending, err = s.requests.CountPending(ctx); err != nil {
		return nil, err
	}
	if stats.Top, err = s.items.TopSubmitters(ctx, from, to, topLimit); err != nil {
		return nil, err
	}
	return stats, nil
}

// SubmitterIDs возвращает идентификаторы всех отправителей.
func (s *ArchiveService) SubmitterIDs(ctx context.Context) ([]int64, error) {
	return s.items.ListSubmitterIDs(ctx)
}
