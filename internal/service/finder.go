package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/repository"
)

// Indexer — поисковый индекс архива.
type Indexer interface {
	Enabled() bool
	Upsert(ctx context.Context, item *model.ArchivedItem) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]model.Match, error)
}

// MatchFinder — поиск файлов по ключу запроса.
type MatchFinder interface {
	Find(ctx context.Context, keyword, fallback string, limit int) ([]model.Match, error)
}

// SearchService — поиск по архиву: сначала индекс, затем репозиторий.
// Непустые результаты кэшируются в LRU с TTL; кэш сбрасывается
// при появлении нового файла.
type SearchService struct {
	indexer Indexer
	items   repository.ArchivedItemRepository
	cache   *expirable.LRU[string, []model.Match]
	logger  *slog.Logger
}

// NewSearchService создаёт сервис поиска. cacheSize <= 0 — без кэша.
func NewSearchService(
	indexer Indexer,
	items repository.ArchivedItemRepository,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *SearchService {
	s := &SearchService{
		indexer: indexer,
		items:   items,
		logger:  logger.With(slog.String("component", "search_service")),
	}
	if cacheSize > 0 {
		s.cache = expirable.NewLRU[string, []model.Match](cacheSize, nil, cacheTTL)
	}
	return s
}

// Find ищет файлы по keyword. Если индекс недоступен или ничего не нашёл,
// ищет в репозитории по keyword, затем по fallback (обычно — название без автора).
func (s *SearchService) Find(ctx context.Context, keyword, fallback string, limit int) ([]model.Match, error) {
	keyword = strings.TrimSpace(keyword)
	fallback = strings.TrimSpace(fallback)
	if keyword == "" {
		keyword, fallback = fallback, ""
	}
	if keyword == "" {
		return nil, nil
	}

	cacheKey := strconv.Itoa(limit) + "\x00" + keyword + "\x00" + fallback
	if s.cache != nil {
		if hits, ok := s.cache.Get(cacheKey); ok {
			return hits, nil
		}
	}

	hits, err := s.find(ctx, keyword, fallback, limit)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && len(hits) > 0 {
		s.cache.Add(cacheKey, hits)
	}
	return hits, nil
}

func (s *SearchService) find(ctx context.Context, keyword, fallback string, limit int) ([]model.Match, error) {
	if s.indexer != nil && s.indexer.Enabled() {
		hits, err := s.indexer.Search(ctx, keyword, limit)
		if err != nil {
			s.logger.Warn("Поиск в индексе не выполнен, используется репозиторий",
				slog.String("keyword", keyword),
				slog.String("error", err.Error()),
			)
		} else if len(hits) > 0 {
			return hits, nil
		}
	}

	items, err := s.items.SearchByKeyword(ctx, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("поиск в репозитории: %w", err)
	}
	if len(items) == 0 && fallback != "" && fallback != keyword {
		items, err = s.items.SearchByKeyword(ctx, fallback, limit)
		if err != nil {
			return nil, fmt.Errorf("поиск в репозитории: %w", err)
		}
	}

	hits := make([]model.Match, 0, len(items))
	for _, item := range items {
		hits = append(hits, model.MatchOf(item))
	}
	return hits, nil
}

// Invalidate сбрасывает кэш результатов.
func (s *SearchService) Invalidate() {
	if s.cache != nil {
		s.cache.Purge()
	}
}
