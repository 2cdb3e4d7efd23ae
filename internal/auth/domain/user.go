package domain

import "time"

// User owns mail accounts and carries the enrichment preferences applied to them.
type User struct {
	ID                  string    `json:"id" gorm:"primaryKey"`
	Email               string    `json:"email" gorm:"uniqueIndex;not null"`
	Name                string    `json:"name"`
	DefaultModel        string    `json:"default_model" gorm:"default:''"`
	DefaultSummaryStyle string    `json:"default_summary_style" gorm:"default:''"`
	SummaryLanguage     string    `json:"summary_language" gorm:"default:''"`
	WorkspaceID         *string   `json:"workspace_id,omitempty" gorm:"index"`
	IsActive            bool      `json:"is_active" gorm:"not null"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
