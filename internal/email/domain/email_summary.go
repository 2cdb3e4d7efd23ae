package domain

import "time"

// EnrichmentResult stores the AI-generated summary for a message. At most one per message;
// re-enrichment replaces it.
type EnrichmentResult struct {
	ID               string      `json:"id" gorm:"primaryKey"`
	MessageID        string      `json:"message_id" gorm:"uniqueIndex;not null"`
	SummaryText      string      `json:"summary_text" gorm:"type:text"`
	Style            string      `json:"style"`
	UrgencyScore     *int        `json:"urgency_score,omitempty"`
	ImportanceScore  *int        `json:"importance_score,omitempty"`
	ActionRequired   *bool       `json:"action_required,omitempty"`
	AICategory       *string     `json:"ai_category,omitempty" gorm:"column:ai_category"`
	Sentiment        *string     `json:"sentiment,omitempty"`
	ReplySuggestions StringArray `json:"reply_suggestions" gorm:"type:text"`
	RequestedModel   string      `json:"requested_model"`
	ModelUsed        string      `json:"model_used"`
	ModelSubstituted bool        `json:"model_substituted"`
	TokensUsed       *int        `json:"tokens_used,omitempty"`
	GenerationMS     int64       `json:"generation_ms" gorm:"column:generation_ms"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (EnrichmentResult) TableName() string {
	return "email_summaries"
}

// Scores are the per-message fields written back onto Message after enrichment.
type Scores struct {
	UrgencyScore    *int
	ImportanceScore *int
	ActionRequired  *bool
	Category        *string
	Sentiment       *string
}
