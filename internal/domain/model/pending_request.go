package model

import (
	"fmt"
	"time"
)

// RequestStatus — статус запроса на поиск.
//
// Жизненный цикл: pending → fulfilled или pending → closed.
// Оба конечных статуса необратимы.
type RequestStatus string

const (
	// RequestPending — запрос ожидает появления файла
	RequestPending RequestStatus = "pending"
	// RequestFulfilled — найдено совпадение
	RequestFulfilled RequestStatus = "fulfilled"
	// RequestClosed — закрыт по таймауту или администратором
	RequestClosed RequestStatus = "closed"
)

// validRequestTransitions — матрица допустимых переходов статусов.
var validRequestTransitions = map[RequestStatus]map[RequestStatus]bool{
	RequestPending:   {RequestFulfilled: true, RequestClosed: true},
	RequestFulfilled: {},
	RequestClosed:    {},
}

// CanTransitionTo проверяет, допустим ли переход в целевой статус.
func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	return validRequestTransitions[s][target]
}

// Terminal сообщает, является ли статус конечным.
func (s RequestStatus) Terminal() bool {
	return s == RequestFulfilled || s == RequestClosed
}

// ParseRequestStatus разбирает строковый статус.
func ParseRequestStatus(s string) (RequestStatus, error) {
	status := RequestStatus(s)
	if _, ok := validRequestTransitions[status]; !ok {
		return "", fmt.Errorf("недопустимый статус запроса: %q", s)
	}
	return status, nil
}

// PendingRequest — запрос пользователя «найти файл».
type PendingRequest struct {
	// ID — идентификатор запроса
	ID int64
	// Content — исходный текст запроса
	Content string
	// Extract — извлечённый ключ поиска (название книги)
	Extract string
	// RequesterID — идентификатор автора запроса
	RequesterID int64
	// RequesterName — отображаемое имя автора
	RequesterName string
	// ContextID — группа, в которой оставлен запрос
	ContextID int64
	// CreatedAt — время создания
	CreatedAt time.Time
	// Status — текущий статус
	Status RequestStatus
	// Result — найденные файлы
	Result []Match
	// CloseReason — причина закрытия (для closed)
	CloseReason string
	// ResolvedAt — время перехода в конечный статус
	ResolvedAt *time.Time
}

// ExtractCount — количество запросов с одинаковым ключом поиска.
type ExtractCount struct {
	Extract string
	Count   int
}

// RequestCounts — количество запросов за период по статусам.
type RequestCounts struct {
	Total     int
	Pending   int
	Fulfilled int
	Closed    int
}
