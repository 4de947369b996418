package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TradingStrategy представляет параметризованную торговую политику
//
// Позиции ссылаются на стратегию по имени (слабая ссылка), поэтому
// name уникален. Версия увеличивается при каждом изменении параметров.
type TradingStrategy struct {
	ID            int       `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Description   string    `json:"description" db:"description"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	Timeframe     string    `json:"timeframe" db:"timeframe"` // 1m, 5m, 1h ...
	MaxPositions  int       `json:"max_positions" db:"max_positions"`
	MaxDrawdown   float64   `json:"max_drawdown" db:"max_drawdown"`   // %
	ProfitTarget  float64   `json:"profit_target" db:"profit_target"` // %
	StopLossPct   float64   `json:"stop_loss" db:"stop_loss"`         // %
	TradingHours  Schedule  `json:"trading_hours" db:"trading_hours"` // JSON в БД
	Version       string    `json:"version" db:"version"`             // semver, монотонно растёт
	ChangeHistory []Change  `json:"change_history" db:"change_history"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Change - запись истории изменений стратегии
type Change struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
}

// Window - временное окно торговли в пределах дня, границы включительно
type Window struct {
	Start string `json:"start"` // "09:00"
	End   string `json:"end"`   // "17:00"
}

// Schedule - расписание торговли: день недели (monday..sunday) → окна.
// Отсутствие дня означает, что торговля в этот день запрещена.
type Schedule map[string][]Window

// IsWithinTradingHours проверяет, попадает ли момент t в расписание.
// Пустое расписание трактуется как "торговля разрешена всегда".
func (s *TradingStrategy) IsWithinTradingHours(t time.Time) bool {
	if len(s.TradingHours) == 0 {
		return true
	}

	day := strings.ToLower(t.Weekday().String())
	windows, ok := s.TradingHours[day]
	if !ok {
		return false
	}

	current := t.Hour()*60 + t.Minute()
	for _, w := range windows {
		start, err1 := parseClock(w.Start)
		end, err2 := parseClock(w.End)
		if err1 != nil || err2 != nil {
			continue
		}
		if current >= start && current <= end {
			return true
		}
	}
	return false
}

// BumpVersion увеличивает patch-компонент версии и пишет запись в историю
func (s *TradingStrategy) BumpVersion(changeType, description string) error {
	parts := strings.Split(s.Version, ".")
	if len(parts) != 3 {
		return fmt.Errorf("invalid version %q", s.Version)
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", s.Version, err)
	}
	parts[2] = strconv.Itoa(patch + 1)
	s.Version = strings.Join(parts, ".")

	s.ChangeHistory = append(s.ChangeHistory, Change{
		Type:        changeType,
		Description: description,
		Version:     s.Version,
		Timestamp:   time.Now().UTC(),
	})
	return nil
}

// parseClock разбирает "HH:MM" в минуты от полуночи
func parseClock(v string) (int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock out of range %q", v)
	}
	return h*60 + m, nil
}
