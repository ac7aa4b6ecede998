// dephealth.go — мониторинг зависимостей через topologymetrics SDK.
//
// Archive Module мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (pool mode, critical);
//   - Meilisearch — HTTP checker /health (не critical: поиск деградирует до репозитория).
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для Meilisearch
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthService — сервис мониторинга зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// DephealthOptions — параметры мониторинга.
type DephealthOptions struct {
	// ServiceID — имя вершины графа (archive-module)
	ServiceID string
	// Group — группа в метриках (AR_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB из pgxpool (stdlib.OpenDBFromPool)
	DB *sql.DB
	// PgConnURL — URL PostgreSQL для лейблов метрик
	PgConnURL string
	// MeiliURL — адрес Meilisearch; пусто — не мониторится
	MeiliURL string
	// CheckInterval — интервал проверок
	CheckInterval time.Duration
	// Registerer — Prometheus registerer (nil — глобальный)
	Registerer prometheus.Registerer
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
func NewDephealthService(opts DephealthOptions, logger *slog.Logger) (*DephealthService, error) {
	dhOpts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(opts.DB)),
			dephealth.FromURL(opts.PgConnURL),
			dephealth.CheckInterval(opts.CheckInterval),
			dephealth.Critical(true),
		),
	}
	if opts.MeiliURL != "" {
		dhOpts = append(dhOpts, dephealth.HTTP("meilisearch",
			dephealth.FromURL(opts.MeiliURL),
			dephealth.WithHTTPHealthPath("/health"),
			dephealth.CheckInterval(opts.CheckInterval),
			dephealth.Critical(false),
		))
	}
	if opts.Registerer != nil {
		dhOpts = append(dhOpts, dephealth.WithRegisterer(opts.Registerer))
	}

	dh, err := dephealth.New(opts.ServiceID, opts.Group, dhOpts...)
	if err != nil {
		return nil, err
	}
	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает состояние зависимостей: имя → ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
