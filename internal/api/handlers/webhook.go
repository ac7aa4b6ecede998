package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/archive-module/internal/api/errors"
	"github.com/bigkaa/goartstore/archive-module/internal/onebot"
)

// maxEventBody — максимальный размер тела события OneBot.
const maxEventBody = 1 << 20

// EventDispatcher — фоновая обработка нормализованных событий.
type EventDispatcher interface {
	DispatchAsync(ctx context.Context, ev *onebot.Event)
}

// WebhookHandler принимает события OneBot (HTTP POST reverse).
type WebhookHandler struct {
	secret     string
	dispatcher EventDispatcher
	logger     *slog.Logger
}

// NewWebhookHandler создаёт обработчик. Пустой secret — подпись не проверяется.
func NewWebhookHandler(secret string, dispatcher EventDispatcher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:     secret,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "onebot_webhook")),
	}
}

// HandleEvent проверяет подпись, нормализует событие и передаёт его
// в фоновую обработку. Ответ 204 отправляется сразу: OneBot не ждёт
// окончания архивирования.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		apierrors.ValidationError(w, "Не удалось прочитать тело события")
		return
	}

	if !onebot.VerifySignature(h.secret, body, r.Header.Get(onebot.SignatureHeader)) {
		h.logger.Warn("Событие с неверной подписью отклонено",
			slog.String("remote_addr", r.RemoteAddr),
		)
		apierrors.InvalidSignature(w, "Неверная подпись события")
		return
	}

	ev, err := onebot.Normalize(body)
	if err != nil {
		if errors.Is(err, onebot.ErrMalformedEvent) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка разбора события", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка разбора события")
		return
	}

	h.dispatcher.DispatchAsync(r.Context(), ev)
	w.WriteHeader(http.StatusNoContent)
}
