package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/repository"
)

// TimeoutReason — причина автоматического закрытия устаревшего запроса.
const TimeoutReason = "timed out"

// Prometheus-метрики запросов.
var (
	requestTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_request_transitions_total",
		Help: "Переходы запросов в конечный статус по статусу и источнику.",
	}, []string{"status", "source"})

	requestsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_requests_created_total",
		Help: "Созданные запросы по начальному статусу.",
	}, []string{"status"})
)

// TrackerOptions — параметры трекера запросов.
type TrackerOptions struct {
	// PollTimeout — возраст, после которого ожидающий запрос закрывается
	PollTimeout time.Duration
	// PollBatch — максимум запросов за один проход
	PollBatch int
	// SearchLimit — лимит результатов повторного поиска
	SearchLimit int
}

// PollSummary — итог прохода Poll.
type PollSummary struct {
	Scanned   int
	Fulfilled int
	Closed    int
	Failed    int
}

// FulfillmentTracker — жизненный цикл запросов «найти файл».
//
// pending → fulfilled при найденном совпадении (сразу при создании,
// при архивировании подходящего файла или при периодическом поиске),
// pending → closed по таймауту или администратором. Конечные статусы
// необратимы: переходы выполняются условным UPDATE в репозитории.
type FulfillmentTracker struct {
	requests repository.PendingRequestRepository
	finder   MatchFinder
	opts     TrackerOptions
	now      func() time.Time
	logger   *slog.Logger
}

// NewFulfillmentTracker создаёт трекер.
func NewFulfillmentTracker(
	requests repository.PendingRequestRepository,
	finder MatchFinder,
	opts TrackerOptions,
	logger *slog.Logger,
) *FulfillmentTracker {
	if opts.PollBatch <= 0 {
		opts.PollBatch = 300
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 5
	}
	return &FulfillmentTracker{
		requests: requests,
		finder:   finder,
		opts:     opts,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "fulfillment_tracker")),
	}
}

// Register сохраняет новый запрос. При непустом hits запрос сразу fulfilled.
func (t *FulfillmentTracker) Register(ctx context.Context, req *model.PendingRequest, hits []model.Match) (*model.PendingRequest, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: пустой текст запроса", ErrValidation)
	}

	req.Status = model.RequestPending
	req.Result = nil
	req.ResolvedAt = nil
	if len(hits) > 0 {
		now := t.now()
		req.Status = model.RequestFulfilled
		req.Result = hits
		req.ResolvedAt = &now
	}

	if err := t.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("сохранение запроса: %w", err)
	}
	requestsCreatedTotal.WithLabelValues(string(req.Status)).Inc()

	t.logger.Info("Запрос зарегистрирован",
		slog.Int64("request_id", req.ID),
		slog.String("extract", req.Extract),
		slog.String("status", string(req.Status)),
		slog.Int("hits", len(hits)),
	)
	return req, nil
}

// ReconcileArchived закрывает ожидающие запросы, ключ которых содержится
// в имени только что заархивированного файла.
func (t *FulfillmentTracker) ReconcileArchived(ctx context.Context, item *model.ArchivedItem) ([]*model.PendingRequest, error) {
	if item.Deleted || strings.TrimSpace(item.DisplayName) == "" {
		return nil, nil
	}

	fulfilled, err := t.requests.FulfillMatching(ctx, item.DisplayName, []model.Match{model.MatchOf(item)})
	if err != nil {
		return nil, fmt.Errorf("сверка запросов с %s: %w", item.DisplayName, err)
	}
	if len(fulfilled) > 0 {
		requestTransitionsTotal.WithLabelValues(string(model.RequestFulfilled), "archive").Add(float64(len(fulfilled)))
		t.logger.Info("Запросы выполнены новым файлом",
			slog.String("item_id", item.ID),
			slog.String("name", item.DisplayName),
			slog.Int("count", len(fulfilled)),
		)
	}
	return fulfilled, nil
}

// Fulfill переводит запрос в fulfilled. false — запрос уже завершён.
func (t *FulfillmentTracker) Fulfill(ctx context.Context, id int64, hits []model.Match) (bool, error) {
	if len(hits) == 0 {
		return false, fmt.Errorf("%w: пустой результат", ErrValidation)
	}
	return t.transition(ctx, id, model.RequestFulfilled, hits, "", "poll")
}

// Close переводит запрос в closed с причиной. false — запрос уже завершён.
func (t *FulfillmentTracker) Close(ctx context.Context, id int64, reason string) (bool, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false, fmt.Errorf("%w: не указана причина закрытия", ErrValidation)
	}
	return t.transition(ctx, id, model.RequestClosed, nil, reason, "admin")
}

func (t *FulfillmentTracker) transition(
	ctx context.Context,
	id int64,
	target model.RequestStatus,
	hits []model.Match,
	reason, source string,
) (bool, error) {
	ok, err := t.requests.Transition(ctx, id, target, hits, reason)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("запрос %d: %w", id, ErrNotFound)
		}
		return false, err
	}
	if ok {
		requestTransitionsTotal.WithLabelValues(string(target), source).Inc()
	}
	return ok, nil
}

// Get возвращает запрос по идентификатору.
func (t *FulfillmentTracker) Get(ctx context.Context, id int64) (*model.PendingRequest, error) {
	req, err := t.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("запрос %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return req, nil
}

// ListPending возвращает ожидающие запросы.
func (t *FulfillmentTracker) ListPending(ctx context.Context, limit, offset int) ([]*model.PendingRequest, error) {
	return t.requests.ListPending(ctx, limit, offset)
}

// Poll — периодический проход по ожидающим запросам (не больше PollBatch).
// Запросы старше PollTimeout закрываются с причиной TimeoutReason,
// остальные ищутся повторно и выполняются при найденных файлах.
func (t *FulfillmentTracker) Poll(ctx context.Context) (PollSummary, error) {
	var summary PollSummary

	pending, err := t.requests.ListPending(ctx, t.opts.PollBatch, 0)
	if err != nil {
		return summary, fmt.Errorf("получение ожидающих запросов: %w", err)
	}

	cutoff := t.now().Add(-t.opts.PollTimeout)
	for _, req := range pending {
		summary.Scanned++

		if t.opts.PollTimeout > 0 && req.CreatedAt.Before(cutoff) {
			ok, err := t.transition(ctx, req.ID, model.RequestClosed, nil, TimeoutReason, "timeout")
			if err != nil {
				summary.Failed++
				t.logPollFailure(req, err)
				continue
			}
			if ok {
				summary.Closed++
			}
			continue
		}

		keyword := strings.TrimSpace(req.Extract)
		if keyword == "" {
			continue
		}
		hits, err := t.finder.Find(ctx, keyword, "", t.opts.SearchLimit)
		if err != nil {
			summary.Failed++
			t.logPollFailure(req, err)
			continue
		}
		if len(hits) == 0 {
			continue
		}
		ok, err := t.Fulfill(ctx, req.ID, hits)
		if err != nil {
			summary.Failed++
			t.logPollFailure(req, err)
			continue
		}
		if ok {
			summary.Fulfilled++
		}
	}

	if summary.Fulfilled > 0 || summary.Closed > 0 || summary.Failed > 0 {
		t.logger.Info("Проход по запросам завершён",
			slog.Int("scanned", summary.Scanned),
			slog.Int("fulfilled", summary.Fulfilled),
			slog.Int("closed", summary.Closed),
			slog.Int("failed", summary.Failed),
		)
	}
	return summary, nil
}

func (t *FulfillmentTracker) logPollFailure(req *model.PendingRequest, err error) {
	t.logger.Warn("Ошибка обработки запроса при проходе",
		slog.Int64("request_id", req.ID),
		slog.String("error", err.Error()),
	)
}
