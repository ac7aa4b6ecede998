// Пакет shortlink — HTTP-клиент сервиса коротких ссылок.
//
// Shorten никогда не возвращает ошибку вызывающему: при недоступности
// сервиса, ошибочном ответе или отключённом клиенте возвращается исходный URL.
// Успешные ответы кэшируются в LRU с TTL.
package shortlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики клиента коротких ссылок.
var shortenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ar_shortlink_requests_total",
	Help: "Запросы сокращения ссылок по результату (cache, success, fallback).",
}, []string{"result"})

// Options — параметры клиента.
type Options struct {
	// Endpoint — URL API сокращения (POST {"url": ...})
	Endpoint string
	// Token — значение заголовка Authorization
	Token string
	// Bearer — добавлять префикс "Bearer " к токену
	Bearer bool
	// Timeout — таймаут HTTP-запроса
	Timeout time.Duration
	// CacheSize, CacheTTL — параметры кэша
	CacheSize int
	CacheTTL  time.Duration
}

// Client — клиент сервиса коротких ссылок.
type Client struct {
	httpClient *http.Client
	opts       Options
	cache      *expirable.LRU[string, string]
	logger     *slog.Logger
}

// New создаёт клиент. Без endpoint или токена клиент отключён.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
		cache:      expirable.NewLRU[string, string](opts.CacheSize, nil, opts.CacheTTL),
		logger:     logger.With(slog.String("component", "shortlink_client")),
	}
}

// Enabled сообщает, настроен ли сервис.
func (c *Client) Enabled() bool {
	return c.opts.Endpoint != "" && c.opts.Token != ""
}

// Shorten возвращает короткую ссылку или исходный URL при любой ошибке.
func (c *Client) Shorten(ctx context.Context, longURL string) string {
	if !c.Enabled() || longURL == "" {
		return longURL
	}
	if short, ok := c.cache.Get(longURL); ok {
		shortenTotal.WithLabelValues("cache").Inc()
		return short
	}

	short, err := c.request(ctx, longURL)
	if err != nil {
		shortenTotal.WithLabelValues("fallback").Inc()
		c.logger.Warn("Не удалось сократить ссылку",
			slog.String("url", longURL),
			slog.String("error", err.Error()),
		)
		return longURL
	}
	shortenTotal.WithLabelValues("success").Inc()
	c.cache.Add(longURL, short)
	return short
}

func (c *Client) request(ctx context.Context, longURL string) (string, error) {
	body, err := json.Marshal(map[string]string{"url": longURL})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.Bearer {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	} else {
		req.Header.Set("Authorization", c.opts.Token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return "", fmt.Errorf("запрос к сервису коротких ссылок: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("сервис вернул статус %d: %s", resp.StatusCode, string(msg))
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("декодирование ответа: %w", err)
	}
	short := extractShortLink(payload)
	if short == "" {
		return "", fmt.Errorf("в ответе нет короткой ссылки")
	}
	return short, nil
}

// shortLinkFields — поля ответа в порядке предпочтения.
var shortLinkFields = []string{"shortLink", "short_url", "url"}

// extractShortLink ищет ссылку на верхнем уровне ответа, затем в объекте data.
func extractShortLink(payload map[string]any) string {
	for _, field := range shortLinkFields {
		if s, ok := payload[field].(string); ok && s != "" {
			return s
		}
	}
	if data, ok := payload["data"].(map[string]any); ok {
		for _, field := range shortLinkFields {
			if s, ok := data[field].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
