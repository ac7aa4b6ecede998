// Пакет placement — стратегия размещения архивного артефакта.
//
// Две реализации Strategy:
//   - Remote — S3-совместимое хранилище (Cloudflare R2, MinIO) через minio-go;
//   - Local — копия в локальную директорию архива.
//
// Выбор выполняется один раз при старте (New): если параметры S3 не заданы
// или клиент не создаётся, используется локальное хранение.
package placement

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/archive-module/internal/config"
)

// ErrDisabled — удалённое хранилище не настроено.
var ErrDisabled = errors.New("удалённое хранилище не настроено")

// Prometheus-метрики размещения.
var placementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ar_placement_operations_total",
	Help: "Операции размещения по backend, операции и результату.",
}, []string{"backend", "operation", "result"})

// Artifact — файл, готовый к размещению.
type Artifact struct {
	// ID — идентификатор будущей записи архива; уникальный сегмент ключа
	ID string
	// Path — путь к файлу на диске (исходный или с водяным знаком)
	Path string
	// DisplayName — отображаемое имя (исходное имя файла)
	DisplayName string
	// SubmittedAt — время отправки файла
	SubmittedAt time.Time
}

// Placed — результат размещения.
type Placed struct {
	// Key — ключ объекта в удалённом хранилище (пусто для локального)
	Key string
	// URL — публичная ссылка или локальный путь
	URL string
	// Remote — размещён ли артефакт удалённо
	Remote bool
	// RetainedPath — путь локальной копии, которую нельзя удалять после
	// успешной записи в репозиторий
	RetainedPath string
}

// Strategy — стратегия размещения.
type Strategy interface {
	// Place размещает артефакт.
	Place(ctx context.Context, a Artifact) (*Placed, error)
	// Remove удаляет ранее размещённый объект (компенсация при сбое записи).
	Remove(ctx context.Context, key string) error
	// Remote сообщает, является ли хранилище удалённым.
	Remote() bool
}

// New выбирает стратегию по конфигурации.
func New(cfg *config.Config, logger *slog.Logger) (Strategy, error) {
	if cfg.S3Enabled() {
		remote, err := NewRemote(RemoteConfig{
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			PathPrefix:    cfg.S3PathPrefix,
			PublicBaseURL: cfg.S3PublicBaseURL,
		}, logger)
		if err == nil {
			return remote, nil
		}
		logger.Warn("Удалённое хранилище недоступно, используется локальное",
			slog.String("error", err.Error()),
		)
	}
	return NewLocal(cfg.ArchiveDir, logger)
}

// SafeName очищает отображаемое имя для использования в ключе и пути:
// убирает каталоги, управляющие символы и разделители путей.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '/' {
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	name = strings.Trim(name, ".")
	if name == "" {
		return "file"
	}
	return name
}

// ObjectKey строит ключ объекта: <prefix>/YYYY/MM/DD/<id>/<имя>.
// Сегмент id разводит одноимённые файлы одного дня по разным объектам.
func ObjectKey(prefix string, t time.Time, id, name string) string {
	key := t.Format("2006/01/02") + "/" + id + "/" + SafeName(name)
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// PublicURL строит публичную ссылку на объект, экранируя каждый сегмент ключа.
func PublicURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
