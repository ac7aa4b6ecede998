package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// PendingRequestRepository — доступ к таблице pending_request.
//
// Переходы статусов выполняются условным UPDATE … WHERE status = 'pending',
// поэтому конкурирующие переходы одного запроса линеаризуются базой:
// выигрывает ровно один.
type PendingRequestRepository interface {
	// Create сохраняет запрос; заполняет ID и CreatedAt.
	Create(ctx context.Context, req *model.PendingRequest) error
	// GetByID возвращает запрос по идентификатору.
	GetByID(ctx context.Context, id int64) (*model.PendingRequest, error)
	// ListPending возвращает ожидающие запросы, старые первыми.
	ListPending(ctx context.Context, limit, offset int) ([]*model.PendingRequest, error)
	// ListPendingOlderThan возвращает ожидающие запросы, созданные до before.
	ListPendingOlderThan(ctx context.Context, before time.Time, limit int) ([]*model.PendingRequest, error)
	// Transition переводит ожидающий запрос в конечный статус.
	// Возвращает false, если запрос уже в конечном статусе.
	Transition(ctx context.Context, id int64, target model.RequestStatus, result []model.Match, reason string) (bool, error)
	// FulfillMatching атомарно переводит в fulfilled все ожидающие запросы,
	// ключ поиска которых содержится в name. Возвращает переведённые запросы.
	FulfillMatching(ctx context.Context, name string, result []model.Match) ([]*model.PendingRequest, error)
	// CountBetween возвращает количество запросов, созданных в [from, to), по статусам.
	CountBetween(ctx context.Context, from, to time.Time) (model.RequestCounts, error)
	// CountPending возвращает количество ожидающих запросов.
	CountPending(ctx context.Context) (int, error)
	// TopExtracts возвращает самые частые ключи поиска за период.
	TopExtracts(ctx context.Context, from, to time.Time, limit int) ([]model.ExtractCount, error)
}

// pendingRequestRepo — реализация PendingRequestRepository.
type pendingRequestRepo struct {
	db DBTX
}

// NewPendingRequestRepository создаёт репозиторий запросов.
func NewPendingRequestRepository(db DBTX) PendingRequestRepository {
	return &pendingRequestRepo{db: db}
}

const pendingRequestColumns = `id, content, extract, requester_id, requester_name, context_id,
	created_at, status, result, close_reason, resolved_at`

func scanPendingRequest(row pgx.Row) (*model.PendingRequest, error) {
	req := &model.PendingRequest{}
	var status string
	var result []byte
	err := row.Scan(
		&req.ID, &req.Content, &req.Extract, &req.RequesterID, &req.RequesterName, &req.ContextID,
		&req.CreatedAt, &status, &result, &req.CloseReason, &req.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Status = model.RequestStatus(status)
	if len(result) > 0 {
		if err := json.Unmarshal(result, &req.Result); err != nil {
			return nil, fmt.Errorf("разбор result: %w", err)
		}
	}
	return req, nil
}

func collectPendingRequests(rows pgx.Rows) ([]*model.PendingRequest, error) {
	defer rows.Close()
	var result []*model.PendingRequest
	for rows.Next() {
		req, err := scanPendingRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования запроса: %w", err)
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

// marshalMatches сериализует результат в JSON-массив (никогда не null).
func marshalMatches(matches []model.Match) ([]byte, error) {
	if matches == nil {
		matches = []model.Match{}
	}
	return json.Marshal(matches)
}

func (r *pendingRequestRepo) Create(ctx context.Context, req *model.PendingRequest) error {
	if req.Status == "" {
		req.Status = model.RequestPending
	}
	result, err := marshalMatches(req.Result)
	if err != nil {
		return fmt.Errorf("сериализация result: %w", err)
	}

	query := `
		INSERT INTO pending_request (content, extract, requester_id, requester_name, context_id,
			created_at, status, result, close_reason, resolved_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), $7, $8, $9, $10)
		RETURNING id, created_at`

	var createdAt *time.Time
	if !req.CreatedAt.IsZero() {
		createdAt = &req.CreatedAt
	}

	err = r.db.QueryRow(ctx, query,
		req.Content, req.Extract, req.RequesterID, req.RequesterName, req.ContextID,
		createdAt, string(req.Status), result, req.CloseReason, req.ResolvedAt,
	).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	return nil
}

func (r *pendingRequestRepo) GetByID(ctx context.Context, id int64) (*model.PendingRequest, error) {
	req, err := scanPendingRequest(r.db.QueryRow(ctx,
		`SELECT `+pendingRequestColumns+` FROM pending_request WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения запроса: %w", err)
	}
	return req, nil
}

func (r *pendingRequestRepo) ListPending(ctx context.Context, limit, offset int) ([]*model.PendingRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+pendingRequestColumns+`
		FROM pending_request
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ожидающих запросов: %w", err)
	}
	return collectPendingRequests(rows)
}

func (r *pendingRequestRepo) ListPendingOlderThan(ctx context.Context, before time.Time, limit int) ([]*model.PendingRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+pendingRequestColumns+`
		FROM pending_request
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at, id
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения старых запросов: %w", err)
	}
	return collectPendingRequests(rows)
}

func (r *pendingRequestRepo) Transition(
	ctx context.Context,
	id int64,
	target model.RequestStatus,
	result []model.Match,
	reason string,
) (bool, error) {
	if !model.RequestPending.CanTransitionTo(target) {
		return false, fmt.Errorf("недопустимый переход pending → %s", target)
	}
	payload, err := marshalMatches(result)
	if err != nil {
		return false, fmt.Errorf("сериализация result: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE pending_request
		SET status = $2, result = $3, close_reason = $4, resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, string(target), payload, reason,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка смены статуса запроса: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Запрос не найден или уже в конечном статусе
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pending_request WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки запроса: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *pendingRequestRepo) FulfillMatching(ctx context.Context, name string, result []model.Match) ([]*model.PendingRequest, error) {
	payload, err := marshalMatches(result)
	if err != nil {
		return nil, fmt.Errorf("сериализация result: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		UPDATE pending_request
		SET status = 'fulfilled', result = $2, resolved_at = NOW()
		WHERE status = 'pending' AND extract <> '' AND strpos(lower($1), lower(extract)) > 0
		RETURNING `+pendingRequestColumns,
		name, payload,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка закрытия совпавших запросов: %w", err)
	}
	return collectPendingRequests(rows)
}

func (r *pendingRequestRepo) CountBetween(ctx context.Context, from, to time.Time) (model.RequestCounts, error) {
	var c model.RequestCounts
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'fulfilled'),
			COUNT(*) FILTER (WHERE status = 'closed')
		FROM pending_request
		WHERE created_at >= $1 AND created_at < $2`, from, to,
	).Scan(&c.Total, &c.Pending, &c.Fulfilled, &c.Closed)
	if err != nil {
		return c, fmt.Errorf("ошибка подсчёта запросов: %w", err)
	}
	return c, nil
}

func (r *pendingRequestRepo) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM pending_request WHERE status = 'pending'`,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта ожидающих запросов: %w", err)
	}
	return count, nil
}

func (r *pendingRequestRepo) TopExtracts(ctx context.Context, from, to time.Time, limit int) ([]model.ExtractCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT extract, COUNT(*) AS cnt
		FROM pending_request
		WHERE extract <> '' AND created_at >= $1 AND created_at < $2
		GROUP BY extract
		ORDER BY cnt DESC, extract
		LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения популярных запросов: %w", err)
	}
	defer rows.Close()

	var result []model.ExtractCount
	for rows.Next() {
		var ec model.ExtractCount
		if err := rows.Scan(&ec.Extract, &ec.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования запроса: %w", err)
		}
		result = append(result, ec)
	}
	return result, rows.Err()
}
