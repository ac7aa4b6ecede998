package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/ratelimit"
)

// Chat — исходящие действия в чате.
type Chat interface {
	Post(ctx context.Context, groupID int64, text string) (int64, error)
	Reply(ctx context.Context, groupID, replyTo int64, text string) (int64, error)
	PostAndPin(ctx context.Context, groupID int64, text string) (int64, error)
	Mute(ctx context.Context, groupID, userID int64, d time.Duration) error
	DeleteMessage(ctx context.Context, messageID int64) error
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
}

// Shortener — сокращение ссылок. Возвращает исходный URL при любой ошибке.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) string
}

// RequestOptions — параметры обработки запросов.
type RequestOptions struct {
	// Contexts — группы, в которых принимаются запросы
	Contexts []int64
	// AdminUsers — пользователи без дневного лимита
	AdminUsers []int64
	// AdminContexts — участники этих групп тоже без лимита
	AdminContexts []int64
	// SearchLimit — число результатов в ответе
	SearchLimit int
	// ShortLinkTimeout — таймаут сокращения одной ссылки
	ShortLinkTimeout time.Duration
	// MuteInvalidTemplate — мут за повторные ошибки шаблона
	MuteInvalidTemplate time.Duration
	// MuteDailyLimit — мут за превышение дневного лимита
	MuteDailyLimit time.Duration
}

// Ответы пользователю.
const (
	replyInvalidTemplate = "Запрос не распознан. Шаблон:\nКнига: <название>\nАвтор: <автор>\nПлатформа: <платформа>"
	replyDailyLimit      = "Дневной лимит запросов исчерпан, попробуйте завтра."
	replyFoundHeader     = "Найдено в архиве:"
	replyNoURL           = "нет ссылки"
)

// RequestHandler — обработка текстовых запросов «найти файл».
type RequestHandler struct {
	tracker   *FulfillmentTracker
	finder    MatchFinder
	limiter   *ratelimit.Limiter
	chat      Chat
	shortener Shortener
	opts      RequestOptions

	exempt sync.Map // int64 → struct{}: подтверждённые администраторы
	logger *slog.Logger
}

// NewRequestHandler создаёт обработчик запросов.
func NewRequestHandler(
	tracker *FulfillmentTracker,
	finder MatchFinder,
	limiter *ratelimit.Limiter,
	chat Chat,
	shortener Shortener,
	opts RequestOptions,
	logger *slog.Logger,
) *RequestHandler {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 10
	}
	if opts.ShortLinkTimeout <= 0 {
		opts.ShortLinkTimeout = 3 * time.Second
	}
	h := &RequestHandler{
		tracker:   tracker,
		finder:    finder,
		limiter:   limiter,
		chat:      chat,
		shortener: shortener,
		opts:      opts,
		logger:    logger.With(slog.String("component", "request_handler")),
	}
	for _, id := range opts.AdminUsers {
		h.exempt.Store(id, struct{}{})
	}
	return h
}

// HandleText обрабатывает текстовое сообщение. Сообщения вне групп запросов
// и не похожие на шаблон игнорируются.
func (h *RequestHandler) HandleText(ctx context.Context, ev model.TextEvent) error {
	if !slices.Contains(h.opts.Contexts, ev.ContextID) {
		return nil
	}

	tpl, err := ParseTemplate(ev.Text)
	switch {
	case errors.Is(err, ErrNotTemplate):
		return nil
	case errors.Is(err, ErrValidation):
		h.rejectInvalid(ctx, ev)
		return nil
	case err != nil:
		return err
	}

	if !h.isExempt(ctx, ev.SenderID) && h.limiter.DailyExceeded(ctx, ev.SenderID) {
		h.logger.Info("Дневной лимит запросов исчерпан",
			slog.Int64("user_id", ev.SenderID),
			slog.Int64("group_id", ev.ContextID),
		)
		h.mute(ctx, ev, h.opts.MuteDailyLimit)
		h.reply(ctx, ev, replyDailyLimit)
		return nil
	}

	hits, err := h.finder.Find(ctx, tpl.Keyword(), tpl.Book, h.opts.SearchLimit)
	if err != nil {
		h.logger.Warn("Поиск по запросу не выполнен",
			slog.String("keyword", tpl.Keyword()),
			slog.String("error", err.Error()),
		)
		hits = nil
	}

	req := &model.PendingRequest{
		Content:       ev.Text,
		Extract:       tpl.Book,
		RequesterID:   ev.SenderID,
		RequesterName: ev.SenderName,
		ContextID:     ev.ContextID,
		CreatedAt:     ev.Time,
	}
	if _, err := h.tracker.Register(ctx, req, hits); err != nil {
		return fmt.Errorf("регистрация запроса: %w", err)
	}

	if len(hits) == 0 {
		return nil
	}

	h.limiter.IncrDaily(ctx, ev.SenderID)
	h.reply(ctx, ev, h.RenderMatches(ctx, hits))
	return nil
}

// rejectInvalid — ошибка шаблона: ответ, удаление сообщения,
// счётчик ошибок и мут при достижении порога.
func (h *RequestHandler) rejectInvalid(ctx context.Context, ev model.TextEvent) {
	h.logger.Info("Некорректный шаблон запроса",
		slog.Int64("user_id", ev.SenderID),
		slog.Int64("group_id", ev.ContextID),
	)
	h.reply(ctx, ev, replyInvalidTemplate)

	if ev.MessageID != 0 {
		if err := h.chat.DeleteMessage(ctx, ev.MessageID); err != nil {
			h.logger.Debug("Не удалось удалить сообщение",
				slog.Int64("message_id", ev.MessageID),
				slog.String("error", err.Error()),
			)
		}
	}

	h.limiter.IncrErrors(ctx, ev.SenderID)
	if h.limiter.ErrorsExceeded(ctx, ev.SenderID) {
		h.mute(ctx, ev, h.opts.MuteInvalidTemplate)
	}
}

// RenderMatches формирует нумерованный список совпадений с короткими ссылками.
// Ссылки сокращаются параллельно, каждая со своим таймаутом.
func (h *RequestHandler) RenderMatches(ctx context.Context, hits []model.Match) string {
	links := make([]string, len(hits))

	var g errgroup.Group
	for i, hit := range hits {
		g.Go(func() error {
			links[i] = hit.URL
			if hit.URL == "" || h.shortener == nil {
				return nil
			}
			sctx, cancel := context.WithTimeout(ctx, h.opts.ShortLinkTimeout)
			defer cancel()
			if short := h.shortener.Shorten(sctx, hit.URL); short != "" {
				links[i] = short
			}
			return nil
		})
	}
	_ = g.Wait()

	var sb strings.Builder
	sb.WriteString(replyFoundHeader)
	for i, hit := range hits {
		link := links[i]
		if link == "" {
			link = replyNoURL
		}
		sb.WriteString("\n" + strconv.Itoa(i+1) + ". " + hit.Name)
		sb.WriteString("\n(" + link + ")")
	}
	return sb.String()
}

// isExempt — пользователь из списка администраторов или участник
// административной группы. Положительный результат кэшируется.
func (h *RequestHandler) isExempt(ctx context.Context, userID int64) bool {
	if _, ok := h.exempt.Load(userID); ok {
		return true
	}
	for _, groupID := range h.opts.AdminContexts {
		member, err := h.chat.IsMember(ctx, groupID, userID)
		if err != nil {
			h.logger.Debug("Проверка участника административной группы не выполнена",
				slog.Int64("group_id", groupID),
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if member {
			h.exempt.Store(userID, struct{}{})
			return true
		}
	}
	return false
}

func (h *RequestHandler) reply(ctx context.Context, ev model.TextEvent, text string) {
	if _, err := h.chat.Reply(ctx, ev.ContextID, ev.MessageID, text); err != nil {
		h.logger.Warn("Не удалось отправить ответ",
			slog.Int64("group_id", ev.ContextID),
			slog.String("error", err.Error()),
		)
	}
}

func (h *RequestHandler) mute(ctx context.Context, ev model.TextEvent, d time.Duration) {
	if d <= 0 {
		return
	}
	if err := h.chat.Mute(ctx, ev.ContextID, ev.SenderID, d); err != nil {
		h.logger.Warn("Не удалось выдать мут",
			slog.Int64("group_id", ev.ContextID),
			slog.Int64("user_id", ev.SenderID),
			slog.String("error", err.Error()),
		)
	}
}
