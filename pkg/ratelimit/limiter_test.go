package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowConsumesBurst(t *testing.T) {
	limiter := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("попытка %d: токен должен быть доступен", i+1)
		}
	}

	if limiter.Allow() {
		t.Error("burst исчерпан, токен не должен выдаваться")
	}
}

func TestTokensRefillOverTime(t *testing.T) {
	limiter := NewRateLimiter(40, 40)

	// Опустошаем ведро
	for limiter.Allow() {
	}

	// 40 токенов/сек: за 100ms накопится ~4 токена
	time.Sleep(100 * time.Millisecond)
	if !limiter.Allow() {
		t.Error("после паузы токен должен восполниться")
	}
}

func TestWaitReturnsOnToken(t *testing.T) {
	limiter := NewRateLimiter(1000, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("Wait вернул ошибку: %v", err)
	}
}

func TestWaitRespectsContextCancel(t *testing.T) {
	// Очень медленный limiter с пустым ведром
	limiter := NewRateLimiter(0.001, 1)
	limiter.Allow() // опустошаем

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	if err == nil {
		t.Fatal("ожидалась ошибка отмены контекста")
	}
}

func TestNewRateLimiterDefaults(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	if limiter.Rate() != 10 {
		t.Errorf("rate по умолчанию = %v, ожидалось 10", limiter.Rate())
	}
	if limiter.Burst() != 20 {
		t.Errorf("burst по умолчанию = %v, ожидалось 20", limiter.Burst())
	}
}

func TestMultiLimiter(t *testing.T) {
	ml := NewMultiLimiter()
	ml.Add("orders", 10, 1)

	if !ml.Allow("orders") {
		t.Error("первый токен категории orders должен быть доступен")
	}
	if ml.Allow("orders") {
		t.Error("burst категории orders исчерпан")
	}

	// Неизвестная категория не ограничивается
	if !ml.Allow("market") {
		t.Error("категория без лимита должна пропускаться")
	}
	if err := ml.Wait(context.Background(), "market"); err != nil {
		t.Errorf("Wait для категории без лимита: %v", err)
	}

	if ml.Get("orders") == nil {
		t.Error("Get должен вернуть limiter для известной категории")
	}
	if ml.Get("unknown") != nil {
		t.Error("Get для неизвестной категории должен вернуть nil")
	}
}
