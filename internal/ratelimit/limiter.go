// Пакет ratelimit — счётчики лимитов запросов пользователей.
//
// Два независимых счётчика на пользователя:
//   - дневной — ключ по локальной дате, TTL до локальной полуночи,
//     задаётся только при создании ключа;
//   - недельный счётчик ошибок шаблона — TTL 7 дней с первой ошибки.
//
// Все операции работают по принципу fail-open: при недоступности хранилища
// ошибка логируется, счётчик считается нулевым, лимит не срабатывает.
package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// errorWindow — время жизни недельного счётчика ошибок.
const errorWindow = 7 * 24 * time.Hour

// Prometheus-метрики лимитера.
var storeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ar_ratelimit_store_failures_total",
	Help: "Ошибки хранилища счётчиков (лимит пропущен, fail-open).",
}, []string{"operation"})

// Options — параметры лимитера.
type Options struct {
	// DailyLimit — допустимое число запросов в сутки
	DailyLimit int
	// ErrorLimit — допустимое число ошибок шаблона за неделю
	ErrorLimit int
	// DailyPrefix, ErrorPrefix — префиксы ключей
	DailyPrefix string
	ErrorPrefix string
	// Location — часовой пояс границы суток
	Location *time.Location
}

// Limiter — дневной и недельный счётчики пользователя.
type Limiter struct {
	store  CounterStore
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

// New создаёт лимитер. nil store — лимитер постоянно отключён.
func New(store CounterStore, opts Options, logger *slog.Logger) *Limiter {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Limiter{
		store:  store,
		opts:   opts,
		now:    time.Now,
		logger: logger.With(slog.String("component", "rate_limiter")),
	}
}

// Enabled сообщает, подключено ли хранилище счётчиков.
func (l *Limiter) Enabled() bool {
	return l.store != nil
}

// DailyKey возвращает ключ дневного счётчика на момент t.
func (l *Limiter) DailyKey(userID int64, t time.Time) string {
	return l.opts.DailyPrefix + strconv.FormatInt(userID, 10) + ":" + t.In(l.opts.Location).Format("20060102")
}

// ErrorKey возвращает ключ недельного счётчика ошибок.
func (l *Limiter) ErrorKey(userID int64) string {
	return l.opts.ErrorPrefix + strconv.FormatInt(userID, 10)
}

// IncrDaily увеличивает дневной счётчик и возвращает новое значение.
func (l *Limiter) IncrDaily(ctx context.Context, userID int64) int {
	now := l.now()
	return l.incr(ctx, "incr_daily", l.DailyKey(userID, now), untilMidnight(now, l.opts.Location))
}

// DailyCount возвращает значение дневного счётчика.
func (l *Limiter) DailyCount(ctx context.Context, userID int64) int {
	return l.get(ctx, "get_daily", l.DailyKey(userID, l.now()))
}

// DailyExceeded сообщает, исчерпан ли дневной лимит.
func (l *Limiter) DailyExceeded(ctx context.Context, userID int64) bool {
	if l.opts.DailyLimit <= 0 {
		return false
	}
	return l.DailyCount(ctx, userID) >= l.opts.DailyLimit
}

// IncrErrors увеличивает недельный счётчик ошибок и возвращает новое значение.
func (l *Limiter) IncrErrors(ctx context.Context, userID int64) int {
	return l.incr(ctx, "incr_errors", l.ErrorKey(userID), errorWindow)
}

// ErrorCount возвращает значение недельного счётчика ошибок.
func (l *Limiter) ErrorCount(ctx context.Context, userID int64) int {
	return l.get(ctx, "get_errors", l.ErrorKey(userID))
}

// ErrorsExceeded сообщает, достигнут ли порог ошибок шаблона.
func (l *Limiter) ErrorsExceeded(ctx context.Context, userID int64) bool {
	if l.opts.ErrorLimit <= 0 {
		return false
	}
	return l.ErrorCount(ctx, userID) >= l.opts.ErrorLimit
}

// incr увеличивает счётчик. TTL задаётся, когда инкремент создал ключ,
// а также когда ключ остался без TTL после неудачного Expire.
// Существующий TTL не продлевается.
func (l *Limiter) incr(ctx context.Context, op, key string, ttl time.Duration) int {
	if l.store == nil {
		return 0
	}
	n, err := l.store.Incr(ctx, key)
	if err != nil {
		l.storeFailed(op, key, err)
		return 0
	}

	needExpire := n == 1
	if !needExpire {
		left, err := l.store.TTL(ctx, key)
		if err != nil {
			l.storeFailed(op, key, err)
			return int(n)
		}
		needExpire = left < 0
	}
	if needExpire {
		if err := l.store.Expire(ctx, key, ttl); err != nil {
			l.storeFailed(op, key, err)
		}
	}
	return int(n)
}

func (l *Limiter) get(ctx context.Context, op, key string) int {
	if l.store == nil {
		return 0
	}
	n, err := l.store.Get(ctx, key)
	if err != nil {
		l.storeFailed(op, key, err)
		return 0
	}
	return int(n)
}

func (l *Limiter) storeFailed(op, key string, err error) {
	storeFailuresTotal.WithLabelValues(op).Inc()
	l.logger.Warn("Хранилище счётчиков недоступно, лимит пропущен",
		slog.String("operation", op),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

// untilMidnight возвращает время до ближайшей локальной полуночи (не меньше секунды).
func untilMidnight(now time.Time, loc *time.Location) time.Duration {
	local := now.In(loc)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	ttl := midnight.Sub(local).Truncate(time.Second)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
