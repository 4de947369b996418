package models

import "time"

// Уровни системных событий
const (
	LogDebug    = "DEBUG"
	LogInfo     = "INFO"
	LogWarning  = "WARNING"
	LogError    = "ERROR"
	LogCritical = "CRITICAL"
)

// SystemLog - структурированная запись системного события (таблица system_logs)
//
// Каждый сбой или значимое событие наблюдаемо через такую запись:
// уровень, компонент, код события, сообщение и структурированный контекст.
type SystemLog struct {
	ID        int64                  `json:"id" db:"id"`
	Level     string                 `json:"level" db:"level"`
	Component string                 `json:"component" db:"component"`
	Event     string                 `json:"event" db:"event"`
	Message   string                 `json:"message" db:"message"`
	Context   map[string]interface{} `json:"context" db:"context"` // JSON в БД
	LoggedAt  time.Time              `json:"logged_at" db:"logged_at"`
}
