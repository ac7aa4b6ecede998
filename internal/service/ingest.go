package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/identity"
	"github.com/bigkaa/goartstore/archive-module/internal/placement"
	"github.com/bigkaa/goartstore/archive-module/internal/repository"
	"github.com/bigkaa/goartstore/archive-module/internal/search"
	"github.com/bigkaa/goartstore/archive-module/internal/watermark"
)

// compensateTimeout — таймаут компенсирующего удаления объекта.
const compensateTimeout = 30 * time.Second

// Prometheus-метрики конвейера архивирования.
var (
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_ingest_files_total",
		Help: "Обработанные файлы по результату (archived, duplicate, failed).",
	}, []string{"result"})

	ingestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ar_ingest_duration_seconds",
		Help:    "Длительность обработки одного файла.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	compensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_ingest_compensations_total",
		Help: "Компенсирующие удаления размещённых объектов по результату.",
	}, []string{"result"})
)

// Transformer — этап преобразования содержимого.
type Transformer interface {
	Apply(ctx context.Context, src string) watermark.Result
}

// Submission — файл, полученный от пользователя и скачанный локально.
type Submission struct {
	// Path — путь к скачанному файлу
	Path string
	// DisplayName — имя файла в чате
	DisplayName   string
	SubmitterID   int64
	SubmitterName string
	ContextID     int64
	SubmittedAt   time.Time
	// Hint — контрольная сумма от платформы
	Hint model.ChecksumHint
	// OriginURL — откуда файл был скачан
	OriginURL string
}

// IngestOutcome — результат обработки одного файла.
type IngestOutcome struct {
	DisplayName string
	// Item — сохранённая запись (nil при ошибке)
	Item *model.ArchivedItem
	// Fulfilled — запросы, выполненные этим файлом
	Fulfilled []*model.PendingRequest
	// Err — ошибка обработки (только в IngestBatch)
	Err error
}

// IngestOptions — параметры конвейера.
type IngestOptions struct {
	// Concurrency — число файлов, обрабатываемых одновременно
	Concurrency int
	// KeepLocalCopy — не удалять скачанный оригинал
	KeepLocalCopy bool
}

// Orchestrator — конвейер архивирования файла:
// идентичность → проверка дубликата → водяной знак → размещение →
// запись в репозиторий → индекс → сверка запросов.
type Orchestrator struct {
	items       repository.ArchivedItemRepository
	strategy    placement.Strategy
	transformer Transformer
	indexer     Indexer
	tracker     *FulfillmentTracker
	search      *SearchService
	opts        IngestOptions
	logger      *slog.Logger
}

// NewOrchestrator создаёт конвейер. indexer и search могут быть nil.
func NewOrchestrator(
	items repository.ArchivedItemRepository,
	strategy placement.Strategy,
	transformer Transformer,
	indexer Indexer,
	tracker *FulfillmentTracker,
	searchService *SearchService,
	opts IngestOptions,
	logger *slog.Logger,
) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Orchestrator{
		items:       items,
		strategy:    strategy,
		transformer: transformer,
		indexer:     indexer,
		tracker:     tracker,
		search:      searchService,
		opts:        opts,
		logger:      logger.With(slog.String("component", "ingest")),
	}
}

// Ingest обрабатывает один файл. Отмена ctx не прерывает начатый конвейер.
//
// Все временные файлы удаляются при выходе, кроме локальной копии архива
// после успешной записи. Если запись в репозиторий не удалась после
// удалённого размещения, объект удаляется (компенсация). Ошибки индекса
// и сверки запросов логируются и не влияют на результат.
func (o *Orchestrator) Ingest(ctx context.Context, sub Submission) (*IngestOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	defer func() { ingestDuration.Observe(time.Since(start).Seconds()) }()

	logger := o.logger.With(
		slog.String("file", sub.DisplayName),
		slog.Int64("submitter_id", sub.SubmitterID),
	)

	temps := NewTempSet(logger)
	defer temps.Cleanup()
	if !o.opts.KeepLocalCopy {
		temps.Add(sub.Path)
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now()
	}

	item, err := o.archive(ctx, sub, temps, logger)
	if err != nil {
		ingestTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	result := "archived"
	if item.Duplicate {
		result = "duplicate"
	}
	ingestTotal.WithLabelValues(result).Inc()

	if o.indexer != nil {
		if err := o.indexer.Upsert(ctx, item); err != nil && !errors.Is(err, search.ErrDisabled) {
			logger.Warn("Файл не добавлен в поисковый индекс",
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if o.search != nil {
		o.search.Invalidate()
	}

	outcome := &IngestOutcome{DisplayName: sub.DisplayName, Item: item}
	if o.tracker != nil {
		fulfilled, err := o.tracker.ReconcileArchived(ctx, item)
		if err != nil {
			logger.Warn("Сверка запросов не выполнена",
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()),
			)
		}
		outcome.Fulfilled = fulfilled
	}

	logger.Info("Файл архивирован",
		slog.String("item_id", item.ID),
		slog.String("url", item.StorageURL),
		slog.Bool("duplicate", item.Duplicate),
		slog.Duration("duration", time.Since(start)),
	)
	return outcome, nil
}

// archive выполняет шаги до записи в репозиторий включительно.
func (o *Orchestrator) archive(ctx context.Context, sub Submission, temps *TempSet, logger *slog.Logger) (*model.ArchivedItem, error) {
	ident, err := identity.Resolve(sub.Path, sub.Hint)
	if err != nil {
		return nil, fmt.Errorf("идентичность %s: %w", sub.DisplayName, err)
	}

	duplicate := false
	existing, err := o.items.FindByIdentities(ctx, ident.Candidates)
	switch {
	case err == nil:
		duplicate = true
		logger.Info("Файл уже есть в архиве",
			slog.String("existing_id", existing.ID),
			slog.String("digest", ident.Digest),
		)
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, fmt.Errorf("проверка дубликата %s: %w", sub.DisplayName, err)
	}

	transformed := o.transformer.Apply(ctx, sub.Path)
	temps.Add(transformed.TempFiles...)

	id := uuid.NewString()
	placed, err := o.strategy.Place(ctx, placement.Artifact{
		ID:          id,
		Path:        transformed.Path,
		DisplayName: sub.DisplayName,
		SubmittedAt: sub.SubmittedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("размещение %s: %w", sub.DisplayName, err)
	}
	var retainedDir string
	if placed.RetainedPath != "" {
		retainedDir = filepath.Dir(placed.RetainedPath)
		temps.Add(retainedDir)
	}

	item := &model.ArchivedItem{
		ID:            id,
		DisplayName:   sub.DisplayName,
		StorageURL:    placed.URL,
		ObjectKey:     placed.Key,
		ArchivedAt:    sub.SubmittedAt,
		SubmitterID:   sub.SubmitterID,
		SubmitterName: sub.SubmitterName,
		ContextID:     sub.ContextID,
		Size:          ident.Size,
		FileType:      model.FileTypeOf(sub.DisplayName),
		ContentHash:   ident.Digest,
		Identities:    identity.Widen(ident.Digest),
		OriginURL:     sub.OriginURL,
		Duplicate:     duplicate,
	}

	if err := o.items.Insert(ctx, item); err != nil {
		o.compensate(ctx, placed, logger)
		return nil, fmt.Errorf("запись %s в репозиторий: %w", sub.DisplayName, err)
	}
	if retainedDir != "" {
		temps.Retain(retainedDir)
	}
	return item, nil
}

// compensate удаляет размещённый объект после неудачной записи.
// Локальная копия удаляется вместе с временными файлами.
func (o *Orchestrator) compensate(ctx context.Context, placed *placement.Placed, logger *slog.Logger) {
	if !placed.Remote || placed.Key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, compensateTimeout)
	defer cancel()

	if err := o.strategy.Remove(ctx, placed.Key); err != nil {
		compensationsTotal.WithLabelValues("failed").Inc()
		logger.Error("Компенсирующее удаление не выполнено, объект осиротел",
			slog.String("key", placed.Key),
			slog.String("error", err.Error()),
		)
		return
	}
	compensationsTotal.WithLabelValues("success").Inc()
	logger.Warn("Размещённый объект удалён после ошибки записи",
		slog.String("key", placed.Key),
	)
}

// IngestBatch обрабатывает файлы параллельно (не больше Concurrency).
// Ошибка или паника одного файла не влияет на остальные; порядок
// результатов совпадает с порядком subs.
func (o *Orchestrator) IngestBatch(ctx context.Context, subs []Submission) []IngestOutcome {
	outcomes := make([]IngestOutcome, len(subs))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					ingestTotal.WithLabelValues("failed").Inc()
					outcomes[i] = IngestOutcome{DisplayName: sub.DisplayName, Err: fmt.Errorf("паника при обработке: %v", r)}
					o.logger.Error("Паника при обработке файла",
						slog.String("file", sub.DisplayName),
						slog.Any("panic", r),
					)
				}
			}()

			out, err := o.Ingest(ctx, sub)
			if err != nil {
				outcomes[i] = IngestOutcome{DisplayName: sub.DisplayName, Err: err}
				o.logger.Error("Файл не архивирован",
					slog.String("file", sub.DisplayName),
					slog.String("error", err.Error()),
				)
				return nil
			}
			outcomes[i] = *out
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
