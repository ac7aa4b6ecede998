package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/repository"
	"github.com/bigkaa/goartstore/archive-module/internal/scheduler"
)

// Идентификаторы периодических задач.
const (
	JobQueryPolling  = "query_polling"
	JobQueryFeedback = "query_feedback"
	JobDailyReport   = "daily_report"
	JobWeeklyReport  = "weekly_report"
	JobMonthlyReport = "monthly_report"
	JobHotQueryRank  = "hot_query_rank"
)

// Notifier — отправка сообщений в группы.
type Notifier interface {
	Post(ctx context.Context, groupID int64, text string) (int64, error)
	PostAndPin(ctx context.Context, groupID int64, text string) (int64, error)
}

// PollerOptions — параметры периодических задач.
type PollerOptions struct {
	// AdminContexts — группы для отчётов
	AdminContexts []int64
	// FeedbackAge — возраст запроса для отчёта о невыполненных
	FeedbackAge time.Duration
	// FeedbackLimit — максимум запросов в отчёте
	FeedbackLimit int
	// TopLimit — размер рейтинга участников
	TopLimit int
	// RankLimit — размер рейтинга запросов
	RankLimit int
	// Location — часовой пояс границ периодов
	Location *time.Location
}

// Poller — периодические задачи: проход по запросам и отчёты.
type Poller struct {
	tracker  *FulfillmentTracker
	items    repository.ArchivedItemRepository
	requests repository.PendingRequestRepository
	notifier Notifier
	opts     PollerOptions
	now      func() time.Time
	logger   *slog.Logger
}

// NewPoller создаёт набор периодических задач.
func NewPoller(
	tracker *FulfillmentTracker,
	items repository.ArchivedItemRepository,
	requests repository.PendingRequestRepository,
	notifier Notifier,
	opts PollerOptions,
	logger *slog.Logger,
) *Poller {
	if opts.FeedbackAge <= 0 {
		opts.FeedbackAge = 72 * time.Hour
	}
	if opts.FeedbackLimit <= 0 {
		opts.FeedbackLimit = 30
	}
	if opts.TopLimit <= 0 {
		opts.TopLimit = 5
	}
	if opts.RankLimit <= 0 {
		opts.RankLimit = 10
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Poller{
		tracker:  tracker,
		items:    items,
		requests: requests,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "poller")),
	}
}

// RegisterJobs регистрирует все задачи в планировщике.
func (p *Poller) RegisterJobs(s *scheduler.Scheduler) error {
	jobs := []struct {
		id      string
		trigger scheduler.Trigger
		job     scheduler.Job
	}{
		{JobQueryPolling, scheduler.Daily(18, 0), p.QueryPolling},
		{JobQueryFeedback, scheduler.Daily(18, 5), p.QueryFeedback},
		{JobDailyReport, scheduler.Daily(12, 0), p.DailyReport},
		{JobWeeklyReport, scheduler.Weekly(time.Sunday, 22, 0), p.WeeklyReport},
		{JobMonthlyReport, scheduler.Monthly(15, 8, 0), p.MonthlyReport},
		{JobHotQueryRank, scheduler.Weekly(time.Monday, 9, 0), p.HotQueryRank},
	}
	for _, j := range jobs {
		if err := s.Register(j.id, j.trigger, j.job); err != nil {
			return err
		}
	}
	return nil
}

// QueryPolling — повторный поиск и закрытие устаревших запросов.
func (p *Poller) QueryPolling(ctx context.Context) error {
	_, err := p.tracker.Poll(ctx)
	return err
}

// QueryFeedback — список давно ожидающих запросов в административные группы.
func (p *Poller) QueryFeedback(ctx context.Context) error {
	before := p.now().Add(-p.opts.FeedbackAge)
	reqs, err := p.requests.ListPendingOlderThan(ctx, before, p.opts.FeedbackLimit)
	if err != nil {
		return fmt.Errorf("получение старых запросов: %w", err)
	}
	if len(reqs) == 0 {
		return nil
	}
	return p.notify(ctx, formatFeedback(reqs, p.opts.FeedbackAge, p.opts.Location), false)
}

// DailyReport — итоги предыдущих суток.
func (p *Poller) DailyReport(ctx context.Context) error {
	end := startOfDay(p.now().In(p.opts.Location))
	start := end.AddDate(0, 0, -1)

	archived, err := p.items.CountBetween(ctx, start, end)
	if err != nil {
		return fmt.Errorf("подсчёт архива: %w", err)
	}
	counts, err := p.requests.CountBetween(ctx, start, end)
	if err != nil {
		return fmt.Errorf("подсчёт запросов: %w", err)
	}
	pending, err := p.requests.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("подсчёт ожидающих запросов: %w", err)
	}
	return p.notify(ctx, formatDailyReport(start, archived, counts, pending), false)
}

// WeeklyReport — итоги семи дней с рейтингом участников; сообщение закрепляется.
func (p *Poller) WeeklyReport(ctx context.Context) error {
	now := p.now().In(p.opts.Location)
	start := startOfDay(now.AddDate(0, 0, -7))

	archived, err := p.items.CountBetween(ctx, start, now)
	if err != nil {
		return fmt.Errorf("подсчёт архива: %w", err)
	}
	top, err := p.items.TopSubmitters(ctx, start, now, p.opts.TopLimit)
	if err != nil {
		return fmt.Errorf("рейтинг участников: %w", err)
	}
	return p.notify(ctx, formatWeeklyReport(start, now, archived, top), true)
}

// MonthlyReport — итоги с начала месяца.
func (p *Poller) MonthlyReport(ctx context.Context) error {
	now := p.now().In(p.opts.Location)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, p.opts.Location)

	archived, err := p.items.CountBetween(ctx, start, now)
	if err != nil {
		return fmt.Errorf("подсчёт архива: %w", err)
	}
	top, err := p.items.TopSubmitters(ctx, start, now, p.opts.TopLimit)
	if err != nil {
		return fmt.Errorf("рейтинг участников: %w", err)
	}
	return p.notify(ctx, formatMonthlyReport(start, archived, top), false)
}

// HotQueryRank — самые частые запросы за семь дней.
func (p *Poller) HotQueryRank(ctx context.Context) error {
	now := p.now().In(p.opts.Location)
	start := startOfDay(now.AddDate(0, 0, -7))

	rank, err := p.requests.TopExtracts(ctx, start, now, p.opts.RankLimit)
	if err != nil {
		return fmt.Errorf("рейтинг запросов: %w", err)
	}
	if len(rank) == 0 {
		return nil
	}
	return p.notify(ctx, formatHotRank(rank), false)
}

// notify отправляет текст во все административные группы.
// Возвращает объединённую ошибку отправки.
func (p *Poller) notify(ctx context.Context, text string, pin bool) error {
	var errs []error
	for _, groupID := range p.opts.AdminContexts {
		var err error
		if pin {
			_, err = p.notifier.PostAndPin(ctx, groupID, text)
		} else {
			_, err = p.notifier.Post(ctx, groupID, text)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("группа %d: %w", groupID, err))
		}
	}
	return errors.Join(errs...)
}
