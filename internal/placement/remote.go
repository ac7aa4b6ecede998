package placement

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectStore — операции S3-клиента, используемые Remote.
// *minio.Client удовлетворяет интерфейсу.
type objectStore interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// RemoteConfig — параметры удалённого хранилища.
type RemoteConfig struct {
	// Endpoint — адрес S3 API, со схемой или без (без схемы — HTTPS)
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	PathPrefix    string
	PublicBaseURL string
}

// Remote — размещение в S3-совместимом хранилище.
type Remote struct {
	store  objectStore
	cfg    RemoteConfig
	logger *slog.Logger
}

// NewRemote создаёт клиент S3. Сетевых вызовов не выполняет.
func NewRemote(cfg RemoteConfig, logger *slog.Logger) (*Remote, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, ErrDisabled
	}
	host, secure, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("создание клиента S3: %w", err)
	}
	return newRemoteWithStore(client, cfg, logger), nil
}

func newRemoteWithStore(store objectStore, cfg RemoteConfig, logger *slog.Logger) *Remote {
	return &Remote{
		store:  store,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "placement_remote")),
	}
}

// Place загружает артефакт под ключом <prefix>/YYYY/MM/DD/<id>/<имя>.
// Без a.ID сегмент генерируется заново.
func (r *Remote) Place(ctx context.Context, a Artifact) (*Placed, error) {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	key := ObjectKey(r.cfg.PathPrefix, a.SubmittedAt, id, a.DisplayName)

	opts := minio.PutObjectOptions{}
	if ct := mime.TypeByExtension(filepath.Ext(a.DisplayName)); ct != "" {
		opts.ContentType = ct
	}

	info, err := r.store.FPutObject(ctx, r.cfg.Bucket, key, a.Path, opts)
	if err != nil {
		placementsTotal.WithLabelValues("remote", "place", "error").Inc()
		return nil, fmt.Errorf("загрузка объекта %s: %w", key, err)
	}
	placementsTotal.WithLabelValues("remote", "place", "success").Inc()

	r.logger.Debug("Объект загружен",
		slog.String("key", key),
		slog.Int64("size", info.Size),
	)
	return &Placed{
		Key:    key,
		URL:    PublicURL(r.cfg.PublicBaseURL, key),
		Remote: true,
	}, nil
}

// Remove удаляет объект. Используется как компенсация при сбое записи в репозиторий.
func (r *Remote) Remove(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := r.store.RemoveObject(ctx, r.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		placementsTotal.WithLabelValues("remote", "remove", "error").Inc()
		return fmt.Errorf("удаление объекта %s: %w", key, err)
	}
	placementsTotal.WithLabelValues("remote", "remove", "success").Inc()
	return nil
}

// Remote всегда true.
func (r *Remote) Remote() bool {
	return true
}

// parseEndpoint выделяет host[:port] и признак TLS из адреса S3.
func parseEndpoint(endpoint string) (host string, secure bool, err error) {
	if !strings.Contains(endpoint, "://") {
		return strings.TrimRight(endpoint, "/"), true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("некорректный адрес S3 %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("некорректный адрес S3 %q: пустой host", endpoint)
	}
	return u.Host, u.Scheme == "https", nil
}
