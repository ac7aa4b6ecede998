package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestDo_SucceedsAfterFailures проверяет успех после нескольких ошибок.
func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, Delay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("временная ошибка")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do ошибка: %v", err)
	}
	if calls != 3 {
		t.Errorf("вызовов = %d, ожидалось 3", calls)
	}
}

// TestDo_ExhaustsAttempts проверяет исчерпание попыток.
func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	errFail := errors.New("сбой")
	err := Do(context.Background(), Policy{Attempts: 3, Delay: time.Millisecond}, func(context.Context) error {
		calls++
		return errFail
	})
	if !errors.Is(err, errFail) {
		t.Errorf("ожидалась последняя ошибка, получено: %v", err)
	}
	if calls != 3 {
		t.Errorf("вызовов = %d, ожидалось 3", calls)
	}
}

// TestDo_Permanent проверяет остановку на постоянной ошибке.
func TestDo_Permanent(t *testing.T) {
	calls := 0
	errFatal := errors.New("неповторяемая")
	err := Do(context.Background(), Policy{Attempts: 5, Delay: time.Millisecond}, func(context.Context) error {
		calls++
		return Permanent(errFatal)
	})
	if !errors.Is(err, errFatal) {
		t.Errorf("ожидалась errFatal, получено: %v", err)
	}
	if calls != 1 {
		t.Errorf("вызовов = %d, ожидался 1", calls)
	}
}

// TestDo_ContextCancelled проверяет прерывание по отмене контекста.
func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 10, Delay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("сбой")
	})
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if calls != 1 {
		t.Errorf("вызовов = %d, ожидался 1 (ожидание прервано отменой)", calls)
	}
}

// TestDo_ZeroAttemptsRunsOnce проверяет одну попытку при нулевом числе попыток.
func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return errors.New("x")
	})
	if calls != 1 {
		t.Errorf("вызовов = %d, ожидался 1", calls)
	}
}
