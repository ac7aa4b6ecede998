// Пакет database — PostgreSQL архива: пул pgxpool, схема (golang-migrate)
// и проверка готовности для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/archive-module/internal/config"
)

// applicationName — имя подключения в pg_stat_activity.
const applicationName = "archive-module"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect открывает пул и проверяет доступность базы.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("разбор DSN: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL недоступен: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("url", cfg.DatabaseURL()),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// Migrate приводит схему archived_item/pending_request к последней версии.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(cfg))
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer m.Close()

	from, _, _ := m.Version()
	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("Схема БД актуальна", slog.Uint64("version", uint64(from)))
		return nil
	case err != nil:
		return fmt.Errorf("применение миграций: %w", err)
	}

	to, _, _ := m.Version()
	logger.Info("Миграции применены",
		slog.Uint64("from", uint64(from)),
		slog.Uint64("to", uint64(to)),
	)
	return nil
}

// migrateURL — URL драйвера pgx5 для golang-migrate; пароль экранируется.
func migrateURL(cfg *config.Config) string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort),
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {cfg.DBSSLMode}}.Encode(),
	}
	return u.String()
}

// pinger — *pgxpool.Pool для проверки готовности.
type pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessChecker — проверка PostgreSQL для health endpoint.
type ReadinessChecker struct {
	db      pinger
	timeout time.Duration
}

// NewReadinessChecker создаёт проверку готовности поверх пула.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return newReadinessChecker(pool)
}

func newReadinessChecker(db pinger) *ReadinessChecker {
	return &ReadinessChecker{db: db, timeout: 3 * time.Second}
}

func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
