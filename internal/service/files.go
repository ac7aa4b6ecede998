package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// Fetcher — скачивание файла события во временный каталог.
type Fetcher interface {
	Fetch(ctx context.Context, ev model.FileEvent) (string, error)
}

// replyArchivedPrefix — начало ответа со списком заархивированных файлов.
const replyArchivedPrefix = "Архивировано: "

// FileHandler — приём файлов из групп архива.
type FileHandler struct {
	orch     *Orchestrator
	fetcher  Fetcher
	chat     Chat
	contexts []int64
	logger   *slog.Logger
}

// NewFileHandler создаёт обработчик файловых событий.
// contexts — группы, файлы из которых архивируются.
func NewFileHandler(orch *Orchestrator, fetcher Fetcher, chat Chat, contexts []int64, logger *slog.Logger) *FileHandler {
	return &FileHandler{
		orch:     orch,
		fetcher:  fetcher,
		chat:     chat,
		contexts: contexts,
		logger:   logger.With(slog.String("component", "file_handler")),
	}
}

// HandleFiles скачивает и архивирует файлы одного сообщения.
// Ошибки отдельных файлов только логируются; если архивирован хотя бы
// один файл, в группу отправляется один ответ со списком имён.
func (h *FileHandler) HandleFiles(ctx context.Context, events []model.FileEvent) []IngestOutcome {
	var subs []Submission
	var failed []IngestOutcome
	var first *model.FileEvent
	for i, ev := range events {
		if !slices.Contains(h.contexts, ev.ContextID) {
			continue
		}
		if first == nil {
			first = &events[i]
		}
		path, err := h.fetcher.Fetch(ctx, ev)
		if err != nil {
			h.logger.Error("Файл не скачан",
				slog.String("file", ev.DisplayName),
				slog.Int64("group_id", ev.ContextID),
				slog.String("error", err.Error()),
			)
			ingestTotal.WithLabelValues("failed").Inc()
			failed = append(failed, IngestOutcome{DisplayName: ev.DisplayName, Err: err})
			continue
		}
		subs = append(subs, Submission{
			Path:          path,
			DisplayName:   ev.DisplayName,
			SubmitterID:   ev.SenderID,
			SubmitterName: ev.SenderName,
			ContextID:     ev.ContextID,
			SubmittedAt:   ev.Time,
			Hint:          ev.Hint,
			OriginURL:     ev.Source.URL,
		})
	}
	if len(subs) == 0 {
		return failed
	}

	outcomes := h.orch.IngestBatch(ctx, subs)

	var names []string
	for _, out := range outcomes {
		if out.Err == nil && out.Item != nil {
			names = append(names, out.DisplayName)
		}
	}
	if len(names) > 0 {
		if _, err := h.chat.Reply(ctx, first.ContextID, first.MessageID, replyArchivedPrefix+strings.Join(names, ", ")); err != nil {
			h.logger.Warn("Не удалось отправить подтверждение архивирования",
				slog.Int64("group_id", first.ContextID),
				slog.String("error", err.Error()),
			)
		}
	}
	return append(failed, outcomes...)
}
