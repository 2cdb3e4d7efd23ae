package repository

import (
	"context"
	"errors"
	"time"

	emaildomain "mailcake-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnrichmentRepository defines the interface for enrichment result operations
type EnrichmentRepository interface {
	// Save writes scores onto the message and creates or replaces its enrichment
	// result in a single transaction
	Save(ctx context.Context, messageID string, scores emaildomain.Scores, result *emaildomain.EnrichmentResult) error
	FindByMessageID(ctx context.Context, messageID string) (*emaildomain.EnrichmentResult, error)
}

// enrichmentRepository implements EnrichmentRepository interface
type enrichmentRepository struct {
	db *gorm.DB
}

// NewEnrichmentRepository creates a new instance of enrichmentRepository
func NewEnrichmentRepository(db *gorm.DB) EnrichmentRepository {
	return &enrichmentRepository{
		db: db,
	}
}

func (r *enrichmentRepository) Save(ctx context.Context, messageID string, scores emaildomain.Scores, result *emaildomain.EnrichmentResult) error {
	now := time.Now().UTC()
	result.ID = uuid.New().String()
	result.MessageID = messageID
	result.UrgencyScore = scores.UrgencyScore
	result.ImportanceScore = scores.ImportanceScore
	result.ActionRequired = scores.ActionRequired
	result.AICategory = scores.Category
	result.Sentiment = scores.Sentiment
	result.CreatedAt = now
	result.UpdatedAt = now
	if result.ReplySuggestions == nil {
		result.ReplySuggestions = emaildomain.StringArray{}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&emaildomain.Message{}).
			Where("id = ?", messageID).
			Updates(map[string]interface{}{
				"urgency_score":    scores.UrgencyScore,
				"importance_score": scores.ImportanceScore,
				"action_required":  scores.ActionRequired,
				"ai_category":      scores.Category,
				"sentiment":        scores.Sentiment,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"summary_text", "style", "urgency_score", "importance_score", "action_required",
				"ai_category", "sentiment", "reply_suggestions", "requested_model", "model_used",
				"model_substituted", "tokens_used", "generation_ms", "updated_at",
			}),
		}).Create(result).Error
	})
}

func (r *enrichmentRepository) FindByMessageID(ctx context.Context, messageID string) (*emaildomain.EnrichmentResult, error) {
	var result emaildomain.EnrichmentResult
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}
