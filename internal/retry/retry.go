// Пакет retry — ограниченный повтор операций с паузой между попытками.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy — параметры повтора.
type Policy struct {
	// Attempts — общее число попыток (>= 1)
	Attempts int
	// Delay — пауза между попытками
	Delay time.Duration
	// Exponential — удваивать паузу после каждой неудачи
	Exponential bool
}

// Permanent помечает ошибку как неповторяемую: Do вернёт её сразу.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do выполняет fn до policy.Attempts раз. Возвращает последнюю ошибку.
// Отмена ctx прерывает ожидание между попытками.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	var b backoff.BackOff
	if policy.Exponential {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = policy.Delay
		eb.Multiplier = 2
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		b = eb
	} else {
		b = backoff.NewConstantBackOff(policy.Delay)
	}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(policy.Attempts-1)), ctx)

	err := backoff.Retry(func() error { return fn(ctx) }, b)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
