// Пакет scheduler — периодические задачи по расписанию в одном часовом поясе.
//
// Обёртка над robfig/cron v3: задачи регистрируются по идентификатору
// (повторная регистрация заменяет задачу), каждая обёрнута в Recover и
// SkipIfStillRunning, поэтому один и тот же job никогда не выполняется
// параллельно сам с собой.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

// ErrUnknownJob — задача с таким идентификатором не зарегистрирована.
var ErrUnknownJob = errors.New("задача не зарегистрирована")

// Prometheus-метрики планировщика.
var (
	jobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_scheduler_job_runs_total",
		Help: "Запуски задач планировщика по результату.",
	}, []string{"job", "result"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ar_scheduler_job_duration_seconds",
		Help:    "Длительность выполнения задач планировщика.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})
)

// Job — задача планировщика.
type Job func(ctx context.Context) error

// Trigger — момент срабатывания: ежедневно в Hour:Minute,
// либо в указанный день недели, либо в указанный день месяца.
type Trigger struct {
	Hour   int
	Minute int
	// Weekday — день недели (nil — каждый день)
	Weekday *time.Weekday
	// DayOfMonth — день месяца 1..31 (0 — каждый день)
	DayOfMonth int
}

// Daily — ежедневный триггер.
func Daily(hour, minute int) Trigger {
	return Trigger{Hour: hour, Minute: minute}
}

// Weekly — еженедельный триггер.
func Weekly(day time.Weekday, hour, minute int) Trigger {
	return Trigger{Hour: hour, Minute: minute, Weekday: &day}
}

// Monthly — ежемесячный триггер.
func Monthly(dayOfMonth, hour, minute int) Trigger {
	return Trigger{Hour: hour, Minute: minute, DayOfMonth: dayOfMonth}
}

// Spec возвращает cron-выражение из пяти полей.
func (t Trigger) Spec() string {
	dom, dow := "*", "*"
	if t.DayOfMonth > 0 {
		dom = strconv.Itoa(t.DayOfMonth)
	}
	if t.Weekday != nil {
		dow = strconv.Itoa(int(*t.Weekday))
	}
	return fmt.Sprintf("%d %d %s * %s", t.Minute, t.Hour, dom, dow)
}

// Validate проверяет диапазоны полей.
func (t Trigger) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("час %d вне диапазона 0-23", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("минута %d вне диапазона 0-59", t.Minute)
	}
	if t.DayOfMonth < 0 || t.DayOfMonth > 31 {
		return fmt.Errorf("день месяца %d вне диапазона 1-31", t.DayOfMonth)
	}
	if t.Weekday != nil && (*t.Weekday < time.Sunday || *t.Weekday > time.Saturday) {
		return fmt.Errorf("день недели %d вне диапазона", *t.Weekday)
	}
	return nil
}

// LoadLocation загружает часовой пояс по имени.
// При ошибке возвращает фиксированный UTC+8.
func LoadLocation(name string, logger *slog.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("Часовой пояс не найден, используется UTC+8",
			slog.String("timezone", name),
			slog.String("error", err.Error()),
		)
		return time.FixedZone("UTC+8", 8*3600)
	}
	return loc
}

type entry struct {
	id       cron.EntryID
	schedule cron.Schedule
	trigger  Trigger
	job      cron.Job
}

// Scheduler — планировщик задач.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]*entry
	loc     *time.Location
	chain   cron.Chain
	parser  cron.Parser

	ctx    context.Context
	cancel context.CancelFunc

	now    func() time.Time
	logger *slog.Logger
}

// New создаёт планировщик в часовом поясе loc.
func New(loc *time.Location, logger *slog.Logger) *Scheduler {
	logger = logger.With(slog.String("component", "scheduler"))
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithLogger(cl)),
		entries: make(map[string]*entry),
		loc:     loc,
		chain:   cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
		logger:  logger,
	}
}

// Location возвращает часовой пояс планировщика.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Register регистрирует задачу id. Существующая задача с тем же id заменяется.
func (s *Scheduler) Register(id string, trigger Trigger, job Job) error {
	if err := trigger.Validate(); err != nil {
		return fmt.Errorf("задача %s: %w", id, err)
	}
	schedule, err := s.parser.Parse(trigger.Spec())
	if err != nil {
		return fmt.Errorf("задача %s: разбор расписания: %w", id, err)
	}

	wrapped := s.chain.Then(cron.FuncJob(func() { s.run(id, job) }))

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[id]; ok {
		s.cron.Remove(old.id)
	}
	entryID := s.cron.Schedule(schedule, wrapped)
	s.entries[id] = &entry{id: entryID, schedule: schedule, trigger: trigger, job: wrapped}

	s.logger.Info("Задача зарегистрирована",
		slog.String("job", id),
		slog.String("spec", trigger.Spec()),
	)
	return nil
}

// Jobs возвращает идентификаторы зарегистрированных задач.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Next возвращает время следующего срабатывания задачи.
func (s *Scheduler) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.schedule.Next(s.now().In(s.loc)), true
}

// RunNow запускает задачу вне расписания и ждёт её завершения.
// Если задача уже выполняется, запуск пропускается.
func (s *Scheduler) RunNow(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownJob)
	}
	e.job.Run()
	return nil
}

// Start запускает планировщик в фоне.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Планировщик запущен",
		slog.String("timezone", s.loc.String()),
		slog.Int("jobs", len(s.Jobs())),
	)
}

// Stop останавливает планировщик и ждёт завершения выполняющихся задач
// не дольше, чем позволяет ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.logger.Info("Планировщик остановлен")
	case <-ctx.Done():
		s.logger.Warn("Планировщик остановлен по таймауту, задачи не завершены")
	}
}

func (s *Scheduler) run(id string, job Job) {
	start := time.Now()
	err := job(s.ctx)
	jobDuration.WithLabelValues(id).Observe(time.Since(start).Seconds())

	if err != nil {
		jobRunsTotal.WithLabelValues(id, "error").Inc()
		s.logger.Error("Задача завершилась с ошибкой",
			slog.String("job", id),
			slog.String("error", err.Error()),
		)
		return
	}
	jobRunsTotal.WithLabelValues(id, "success").Inc()
	s.logger.Info("Задача выполнена",
		slog.String("job", id),
		slog.Duration("duration", time.Since(start)),
	)
}

// cronLogger — адаптер cron.Logger поверх slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
