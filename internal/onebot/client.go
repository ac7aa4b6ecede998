package onebot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/placement"
	"github.com/bigkaa/goartstore/archive-module/internal/retry"
)

// Ошибки клиента.
var (
	// ErrTooLarge — файл превышает допустимый размер
	ErrTooLarge = errors.New("файл превышает допустимый размер")
	// ErrNoSource — у события нет ни URL, ни идентификатора файла
	ErrNoSource = errors.New("источник файла не указан")
)

// Prometheus-метрики вызовов OneBot API.
var apiCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ar_onebot_api_calls_total",
	Help: "Вызовы OneBot API по действию и результату.",
}, []string{"action", "result"})

// APIError — OneBot вернул retcode != 0.
type APIError struct {
	Action  string
	RetCode int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OneBot %s: retcode=%d: %s", e.Action, e.RetCode, e.Message)
}

// Options — параметры клиента.
type Options struct {
	// BaseURL — адрес HTTP API OneBot (без trailing slash)
	BaseURL string
	// Token — access token (Authorization: Bearer)
	Token string
	// Timeout — таймаут вызова API и скачивания файла
	Timeout time.Duration
	// Pin — политика повтора set_essence_msg
	Pin retry.Policy
	// TempDir — каталог для скачанных файлов
	TempDir string
	// MaxFileSize — максимальный размер скачиваемого файла (0 — без ограничения)
	MaxFileSize int64
}

// Client — клиент HTTP API OneBot v11.
type Client struct {
	httpClient *http.Client
	opts       Options
	logger     *slog.Logger
}

// New создаёт клиент.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
		logger:     logger.With(slog.String("component", "onebot_client")),
	}
}

type apiResponse struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
}

// segment — исходящий сегмент сообщения.
type segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// Post отправляет текст в группу и возвращает message_id.
func (c *Client) Post(ctx context.Context, groupID int64, text string) (int64, error) {
	return c.send(ctx, groupID, []segment{textSegment(text)})
}

// Reply отправляет ответ на сообщение replyTo.
func (c *Client) Reply(ctx context.Context, groupID, replyTo int64, text string) (int64, error) {
	segs := []segment{textSegment(text)}
	if replyTo != 0 {
		segs = append([]segment{{Type: "reply", Data: map[string]string{"id": strconv.FormatInt(replyTo, 10)}}}, segs...)
	}
	return c.send(ctx, groupID, segs)
}

func (c *Client) send(ctx context.Context, groupID int64, segs []segment) (int64, error) {
	var data struct {
		MessageID int64 `json:"message_id"`
	}
	params := map[string]any{"group_id": groupID, "message": segs}
	if err := c.call(ctx, "send_group_msg", params, &data); err != nil {
		return 0, err
	}
	return data.MessageID, nil
}

// SetEssence закрепляет сообщение (essence).
func (c *Client) SetEssence(ctx context.Context, messageID int64) error {
	return c.call(ctx, "set_essence_msg", map[string]any{"message_id": messageID}, nil)
}

// PostAndPin отправляет сообщение и закрепляет его.
// Закрепление повторяется по политике Options.Pin; ошибка закрепления
// не отменяет отправку и только логируется.
func (c *Client) PostAndPin(ctx context.Context, groupID int64, text string) (int64, error) {
	messageID, err := c.Post(ctx, groupID, text)
	if err != nil {
		return 0, err
	}
	if messageID == 0 {
		c.logger.Warn("message_id не получен, закрепление пропущено",
			slog.Int64("group_id", groupID),
		)
		return 0, nil
	}

	err = retry.Do(ctx, c.opts.Pin, func(ctx context.Context) error {
		return c.SetEssence(ctx, messageID)
	})
	if err != nil {
		c.logger.Warn("Не удалось закрепить сообщение",
			slog.Int64("group_id", groupID),
			slog.Int64("message_id", messageID),
			slog.String("error", err.Error()),
		)
	}
	return messageID, nil
}

// Mute запрещает пользователю писать в группе на время d.
func (c *Client) Mute(ctx context.Context, groupID, userID int64, d time.Duration) error {
	return c.call(ctx, "set_group_ban", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"duration": int64(d / time.Second),
	}, nil)
}

// DeleteMessage удаляет (отзывает) сообщение.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.call(ctx, "delete_msg", map[string]any{"message_id": messageID}, nil)
}

// IsMember проверяет, состоит ли пользователь в группе.
// Ответ с retcode != 0 означает «не участник».
func (c *Client) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	err := c.call(ctx, "get_group_member_info", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"no_cache": false,
	}, nil)
	if err == nil {
		return true, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false, nil
	}
	return false, err
}

// FileURL возвращает URL скачивания файла группы.
func (c *Client) FileURL(ctx context.Context, groupID int64, fileID string, busID int64) (string, error) {
	var data struct {
		URL string `json:"url"`
	}
	params := map[string]any{"group_id": groupID, "file_id": fileID}
	if busID != 0 {
		params["busid"] = busID
	}
	if err := c.call(ctx, "get_group_file_url", params, &data); err != nil {
		return "", err
	}
	if data.URL == "" {
		return "", fmt.Errorf("OneBot get_group_file_url: пустой URL для %s", fileID)
	}
	return data.URL, nil
}

// Fetch скачивает файл события во временный каталог и возвращает путь.
// Вызывающий код отвечает за удаление файла.
func (c *Client) Fetch(ctx context.Context, ev model.FileEvent) (string, error) {
	if c.opts.MaxFileSize > 0 && ev.Size > c.opts.MaxFileSize {
		return "", fmt.Errorf("%s (%d байт): %w", ev.DisplayName, ev.Size, ErrTooLarge)
	}

	fileURL := ev.Source.URL
	if fileURL == "" {
		if ev.Source.FileID == "" {
			return "", fmt.Errorf("%s: %w", ev.DisplayName, ErrNoSource)
		}
		var err error
		fileURL, err = c.FileURL(ctx, ev.ContextID, ev.Source.FileID, ev.Source.BusID)
		if err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(c.opts.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("создание временного каталога: %w", err)
	}
	dst := filepath.Join(c.opts.TempDir, uuid.NewString()+"_"+placement.SafeName(ev.DisplayName))

	if err := c.download(ctx, fileURL, dst); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("скачивание %s: %w", ev.DisplayName, err)
	}
	return dst, nil
}

func (c *Client) download(ctx context.Context, fileURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G107: URL выдан OneBot
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("неожиданный статус %d", resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("создание файла: %w", err)
	}

	var body io.Reader = resp.Body
	if c.opts.MaxFileSize > 0 {
		body = io.LimitReader(resp.Body, c.opts.MaxFileSize+1)
	}
	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("запись файла: %w", err)
	}
	if c.opts.MaxFileSize > 0 && n > c.opts.MaxFileSize {
		return ErrTooLarge
	}
	return nil
}

// call выполняет POST {base}/{action} и декодирует data в out (если не nil).
func (c *Client) call(ctx context.Context, action string, params any, out any) error {
	err := c.doCall(ctx, action, params, out)
	result := "success"
	if err != nil {
		result = "error"
	}
	apiCallsTotal.WithLabelValues(action, result).Inc()
	return err
}

func (c *Client) doCall(ctx context.Context, action string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("сериализация параметров %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/"+action, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса %s: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации OneBot
	if err != nil {
		return fmt.Errorf("запрос %s к OneBot: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("OneBot %s: HTTP %d: %s", action, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return fmt.Errorf("декодирование ответа %s: %w", action, err)
	}
	if ar.RetCode != 0 || (ar.Status != "" && ar.Status != "ok" && ar.Status != "async") {
		msg := ar.Wording
		if msg == "" {
			msg = ar.Message
		}
		return &APIError{Action: action, RetCode: ar.RetCode, Message: msg}
	}

	if out != nil && len(ar.Data) > 0 && !bytes.Equal(ar.Data, []byte("null")) {
		if err := json.Unmarshal(ar.Data, out); err != nil {
			return fmt.Errorf("декодирование data %s: %w", action, err)
		}
	}
	return nil
}

func textSegment(text string) segment {
	return segment{Type: "text", Data: map[string]string{"text": text}}
}
