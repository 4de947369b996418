package repository

import (
	"database/sql"
	"time"

	"tradingbot/internal/models"
)

// SentimentRepository - чтение таблицы sentiment_data
//
// Записи пишет внешний сервис анализа настроений, движок их только
// читает и агрегирует.
type SentimentRepository struct {
	db *sql.DB
}

// NewSentimentRepository создает новый экземпляр репозитория
func NewSentimentRepository(db *sql.DB) *SentimentRepository {
	return &SentimentRepository{db: db}
}

// GetSince возвращает записи пары за trailing окно от старых к новым
func (r *SentimentRepository) GetSince(pairID int, since time.Time) ([]*models.SentimentRecord, error) {
	query := `
		SELECT id, trading_pair_id, sentiment_score, confidence_score, impact_score, analyzed_at
		FROM sentiment_data
		WHERE trading_pair_id = $1 AND analyzed_at >= $2
		ORDER BY analyzed_at ASC`

	rows, err := r.db.Query(query, pairID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.SentimentRecord
	for rows.Next() {
		rec := &models.SentimentRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.TradingPairID,
			&rec.SentimentScore,
			&rec.ConfidenceScore,
			&rec.ImpactScore,
			&rec.AnalyzedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// Aggregate возвращает взвешенное настроение пары за trailing окно
//
// Вес каждой записи: impact_score * confidence_score. Отсутствие
// записей - нейтральное настроение с нулевой уверенностью.
func (r *SentimentRepository) Aggregate(pairID int, since time.Time) (models.Sentiment, error) {
	records, err := r.GetSince(pairID, since)
	if err != nil {
		return models.Sentiment{}, err
	}
	return AggregateSentiment(records), nil
}

// AggregateSentiment считает взвешенное среднее по записям
func AggregateSentiment(records []*models.SentimentRecord) models.Sentiment {
	if len(records) == 0 {
		return models.Sentiment{}
	}

	var weightedScore, totalWeight, confSum, impactSum float64
	for _, rec := range records {
		weight := rec.ImpactScore * rec.ConfidenceScore
		weightedScore += rec.SentimentScore * weight
		totalWeight += weight
		confSum += rec.ConfidenceScore
		impactSum += rec.ImpactScore
	}

	agg := models.Sentiment{
		Confidence: confSum / float64(len(records)),
		Impact:     impactSum / float64(len(records)),
		Count:      len(records),
	}
	// Нулевые веса всех записей дают нейтральный score
	if totalWeight > 0 {
		agg.Score = weightedScore / totalWeight
	}

	return agg
}

// DeleteOlderThan удаляет записи старше границы, возвращает число удалённых
func (r *SentimentRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	query := `DELETE FROM sentiment_data WHERE analyzed_at < $1`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
