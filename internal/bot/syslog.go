package bot

import (
	"tradingbot/internal/models"
	"tradingbot/pkg/utils"
)

// SyslogStore - персистентный журнал системных событий
type SyslogStore interface {
	Insert(entry *models.SystemLog) error
}

// SystemLogger дублирует значимые события в zap и таблицу system_logs
//
// Сбой записи в БД не фатален: событие уже в структурированном логе,
// потеря строки аудита логируется и работа продолжается.
type SystemLogger struct {
	store SyslogStore
	log   *utils.Logger
}

// NewSystemLogger создает журнал системных событий
func NewSystemLogger(store SyslogStore, log *utils.Logger) *SystemLogger {
	return &SystemLogger{store: store, log: log}
}

// Record пишет событие в лог и таблицу аудита
func (s *SystemLogger) Record(level, component, event, message string, context map[string]interface{}) {
	fields := []interface{}{
		"component", component,
		"event", event,
	}
	for k, v := range context {
		fields = append(fields, k, v)
	}

	sugar := s.log.Sugar()
	switch level {
	case models.LogDebug:
		sugar.Debugw(message, fields...)
	case models.LogWarning:
		sugar.Warnw(message, fields...)
	case models.LogError, models.LogCritical:
		sugar.Errorw(message, fields...)
	default:
		sugar.Infow(message, fields...)
	}

	if s.store == nil {
		return
	}

	entry := &models.SystemLog{
		Level:     level,
		Component: component,
		Event:     event,
		Message:   message,
		Context:   context,
	}
	if err := s.store.Insert(entry); err != nil {
		s.log.Warn("не удалось записать событие аудита",
			utils.Component(component),
			utils.Event(event),
			utils.Err(err),
		)
	}
}

// Info пишет информационное событие
func (s *SystemLogger) Info(component, event, message string, context map[string]interface{}) {
	s.Record(models.LogInfo, component, event, message, context)
}

// Warning пишет предупреждение
func (s *SystemLogger) Warning(component, event, message string, context map[string]interface{}) {
	s.Record(models.LogWarning, component, event, message, context)
}

// Error пишет событие об ошибке
func (s *SystemLogger) Error(component, event, message string, context map[string]interface{}) {
	s.Record(models.LogError, component, event, message, context)
}

// Critical пишет критическое событие
func (s *SystemLogger) Critical(component, event, message string, context map[string]interface{}) {
	s.Record(models.LogCritical, component, event, message, context)
}
