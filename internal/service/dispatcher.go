package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/archive-module/internal/onebot"
)

// eventsTotal — входящие события по виду.
var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ar_events_total",
	Help: "Входящие события чата по виду (files, text, ignored).",
}, []string{"kind"})

// Dispatcher направляет нормализованные события обработчикам.
// Каждое событие обрабатывается в отдельной горутине; Wait ожидает
// завершения начатых обработок при остановке сервиса.
type Dispatcher struct {
	files    *FileHandler
	requests *RequestHandler
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewDispatcher создаёт диспетчер. Любой из обработчиков может быть nil.
func NewDispatcher(files *FileHandler, requests *RequestHandler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		files:    files,
		requests: requests,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch синхронно обрабатывает событие.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *onebot.Event) {
	eventsTotal.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case onebot.EventFiles:
		if d.files != nil {
			d.files.HandleFiles(ctx, ev.Files)
		}
	case onebot.EventText:
		if d.requests != nil && ev.Text != nil {
			if err := d.requests.HandleText(ctx, *ev.Text); err != nil {
				d.logger.Error("Ошибка обработки запроса",
					slog.Int64("group_id", ev.Text.ContextID),
					slog.Int64("user_id", ev.Text.SenderID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// DispatchAsync обрабатывает событие в фоне. Контекст вызывающего
// не отменяет обработку (используется context.WithoutCancel).
func (d *Dispatcher) DispatchAsync(ctx context.Context, ev *onebot.Event) {
	if ev.Kind == onebot.EventIgnored {
		eventsTotal.WithLabelValues(ev.Kind.String()).Inc()
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Паника при обработке события",
					slog.String("kind", ev.Kind.String()),
					slog.Any("panic", r),
				)
			}
		}()
		d.Dispatch(ctx, ev)
	}()
}

// Wait ожидает завершения фоновых обработок или отмены ctx.
func (d *Dispatcher) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("Не все события обработаны до остановки")
	}
}
