package utils

import (
	"fmt"
	"time"
)

// time.go - утилиты для работы со временем
//
// Назначение:
// Вспомогательные функции для временных операций: выравнивание
// меток свечей по таймфрейму, границы периодов для агрегации
// и очистки старых данных.
//
// Функции:
// - ParseTimeframe: "1m"/"5m"/"1h"/"1d" -> time.Duration
// - TruncateToTimeframe: выравнивание метки по границе таймфрейма
// - GetDayStart / GetDayStartFrom: начало дня (00:00:00 UTC)
// - FromMillis / ToMillis: конвертация unix-миллисекунд биржи

// ParseTimeframe разбирает строковый таймфрейм в длительность.
//
// Поддерживаемые значения: 1m, 3m, 5m, 15m, 30m, 1h, 2h, 4h, 1d.
//
// Возвращает ошибку для неизвестного таймфрейма.
func ParseTimeframe(tf string) (time.Duration, error) {
	switch tf {
	case "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("неизвестный таймфрейм: %q", tf)
	}
}

// TruncateToTimeframe выравнивает метку времени по границе таймфрейма.
//
// Свечи хранятся с меткой НАЧАЛА интервала:
//
//	TruncateToTimeframe(14:37:45, 5m) = 14:35:00
func TruncateToTimeframe(t time.Time, tf time.Duration) time.Time {
	if tf <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(tf)
}

// GetDayStart возвращает начало текущего дня (00:00:00) в UTC
func GetDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC())
}

// GetDayStartFrom возвращает начало дня для указанного времени в UTC
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FromMillis конвертирует unix-миллисекунды биржи в time.Time (UTC)
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ToMillis конвертирует time.Time в unix-миллисекунды
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}
