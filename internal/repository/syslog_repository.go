package repository

import (
	"database/sql"
	"time"

	"tradingbot/internal/models"
)

// SyslogRepository - работа с таблицей system_logs
//
// Контекст события хранится JSONB колонкой.
type SyslogRepository struct {
	db *sql.DB
}

// NewSyslogRepository создает новый экземпляр репозитория
func NewSyslogRepository(db *sql.DB) *SyslogRepository {
	return &SyslogRepository{db: db}
}

// Insert записывает системное событие
func (r *SyslogRepository) Insert(entry *models.SystemLog) error {
	query := `
		INSERT INTO system_logs (level, component, event, message, context, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now()
	}

	ctx, err := json.Marshal(entry.Context)
	if err != nil {
		return err
	}

	return r.db.QueryRow(
		query,
		entry.Level,
		entry.Component,
		entry.Event,
		entry.Message,
		ctx,
		entry.LoggedAt,
	).Scan(&entry.ID)
}

// GetRecent возвращает последние limit событий от новых к старым
func (r *SyslogRepository) GetRecent(limit int) ([]*models.SystemLog, error) {
	query := `
		SELECT id, level, component, event, message, context, logged_at
		FROM system_logs
		ORDER BY logged_at DESC
		LIMIT $1`

	return r.queryLogs(query, limit)
}

// GetByLevel возвращает последние limit событий уровня от новых к старым
func (r *SyslogRepository) GetByLevel(level string, limit int) ([]*models.SystemLog, error) {
	query := `
		SELECT id, level, component, event, message, context, logged_at
		FROM system_logs
		WHERE level = $1
		ORDER BY logged_at DESC
		LIMIT $2`

	return r.queryLogs(query, level, limit)
}

func (r *SyslogRepository) queryLogs(query string, args ...interface{}) ([]*models.SystemLog, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.SystemLog
	for rows.Next() {
		entry := &models.SystemLog{}
		var ctx []byte
		err := rows.Scan(
			&entry.ID,
			&entry.Level,
			&entry.Component,
			&entry.Event,
			&entry.Message,
			&ctx,
			&entry.LoggedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(ctx) > 0 {
			if err := json.Unmarshal(ctx, &entry.Context); err != nil {
				return nil, err
			}
		}
		logs = append(logs, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

// DeleteOlderThan удаляет события старше границы, возвращает число удалённых
func (r *SyslogRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	query := `DELETE FROM system_logs WHERE logged_at < $1`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
