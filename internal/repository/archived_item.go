package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/identity"
)

// ArchivedItemRepository — доступ к таблице archived_item.
type ArchivedItemRepository interface {
	// Insert создаёт запись. ID и ArchivedAt должны быть заполнены.
	Insert(ctx context.Context, item *model.ArchivedItem) error
	// FindByIdentities возвращает самую раннюю неудалённую запись,
	// у которой content_hash или одна из идентичностей совпадает с кандидатами.
	FindByIdentities(ctx context.Context, candidates []string) (*model.ArchivedItem, error)
	// SearchByKeyword ищет неудалённые оригиналы (не дубликаты) по подстроке имени.
	SearchByKeyword(ctx context.Context, keyword string, limit int) ([]*model.ArchivedItem, error)
	// CountBetween возвращает количество записей с archived_at в [from, to).
	CountBetween(ctx context.Context, from, to time.Time) (int, error)
	// TopSubmitters возвращает самых активных отправителей за период.
	TopSubmitters(ctx context.Context, from, to time.Time, limit int) ([]model.SubmitterCount, error)
	// ListSubmitterIDs возвращает идентификаторы всех отправителей.
	ListSubmitterIDs(ctx context.Context) ([]int64, error)
	// GetByID возвращает запись по UUID.
	GetByID(ctx context.Context, id string) (*model.ArchivedItem, error)
	// SoftDelete помечает запись удалённой.
	SoftDelete(ctx context.Context, id string) error
}

// archivedItemRepo — реализация ArchivedItemRepository.
type archivedItemRepo struct {
	db DBTX
}

// NewArchivedItemRepository создаёт репозиторий архива.
func NewArchivedItemRepository(db DBTX) ArchivedItemRepository {
	return &archivedItemRepo{db: db}
}

const archivedItemColumns = `id, display_name, storage_url, object_key, archived_at,
	submitter_id, submitter_name, context_id, size_bytes, file_type,
	content_hash, identities, origin_url, duplicate, deleted, created_at`

func scanArchivedItem(row pgx.Row) (*model.ArchivedItem, error) {
	item := &model.ArchivedItem{}
	err := row.Scan(
		&item.ID, &item.DisplayName, &item.StorageURL, &item.ObjectKey, &item.ArchivedAt,
		&item.SubmitterID, &item.SubmitterName, &item.ContextID, &item.Size, &item.FileType,
		&item.ContentHash, &item.Identities, &item.OriginURL, &item.Duplicate, &item.Deleted, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *archivedItemRepo) Insert(ctx context.Context, item *model.ArchivedItem) error {
	query := `
		INSERT INTO archived_item (id, display_name, storage_url, object_key, archived_at,
			submitter_id, submitter_name, context_id, size_bytes, file_type,
			content_hash, identities, origin_url, duplicate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at`

	// Записи без кандидатов (ручной импорт) получают их из content_hash.
	identities := item.Identities
	if len(identities) == 0 {
		identities = identity.Widen(item.ContentHash)
	}

	err := r.db.QueryRow(ctx, query,
		item.ID, item.DisplayName, item.StorageURL, item.ObjectKey, item.ArchivedAt,
		item.SubmitterID, item.SubmitterName, item.ContextID, item.Size, item.FileType,
		item.ContentHash, identities, item.OriginURL, item.Duplicate,
	).Scan(&item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: запись с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка вставки записи архива: %w", err)
	}
	return nil
}

func (r *archivedItemRepo) FindByIdentities(ctx context.Context, candidates []string) (*model.ArchivedItem, error) {
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	query := `
		SELECT ` + archivedItemColumns + `
		FROM archived_item
		WHERE NOT deleted AND (content_hash = ANY($1) OR identities && $1)
		ORDER BY archived_at, created_at
		LIMIT 1`

	item, err := scanArchivedItem(r.db.QueryRow(ctx, query, candidates))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска по идентичностям: %w", err)
	}
	return item, nil
}

func (r *archivedItemRepo) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]*model.ArchivedItem, error) {
	query := `
		SELECT ` + archivedItemColumns + `
		FROM archived_item
		WHERE NOT deleted AND NOT duplicate AND display_name ILIKE $1
		ORDER BY archived_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, containsPattern(keyword), limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска по имени: %w", err)
	}
	defer rows.Close()

	var result []*model.ArchivedItem
	for rows.Next() {
		item, err := scanArchivedItem(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи архива: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *archivedItemRepo) CountBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM archived_item WHERE NOT deleted AND archived_at >= $1 AND archived_at < $2`,
		from, to,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей архива: %w", err)
	}
	return count, nil
}

func (r *archivedItemRepo) TopSubmitters(ctx context.Context, from, to time.Time, limit int) ([]model.SubmitterCount, error) {
	query := `
		SELECT submitter_id, MAX(submitter_name), COUNT(*) AS cnt
		FROM archived_item
		WHERE NOT deleted AND archived_at >= $1 AND archived_at < $2
		GROUP BY submitter_id
		ORDER BY cnt DESC, submitter_id
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения активных отправителей: %w", err)
	}
	defer rows.Close()

	var result []model.SubmitterCount
	for rows.Next() {
		var sc model.SubmitterCount
		if err := rows.Scan(&sc.SubmitterID, &sc.SubmitterName, &sc.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования отправителя: %w", err)
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

func (r *archivedItemRepo) ListSubmitterIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT submitter_id FROM archived_item WHERE NOT deleted ORDER BY submitter_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения отправителей: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования отправителя: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *archivedItemRepo) GetByID(ctx context.Context, id string) (*model.ArchivedItem, error) {
	item, err := scanArchivedItem(r.db.QueryRow(ctx,
		`SELECT `+archivedItemColumns+` FROM archived_item WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи архива: %w", err)
	}
	return item, nil
}

func (r *archivedItemRepo) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE archived_item SET deleted = TRUE WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи архива: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
