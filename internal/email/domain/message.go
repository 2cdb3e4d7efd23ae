package domain

import "time"

// Message is a stored mail message. The (AccountID, ProviderMessageID) pair is unique.
type Message struct {
	ID                string      `json:"id" gorm:"primaryKey"`
	AccountID         string      `json:"account_id" gorm:"not null;uniqueIndex:idx_account_provider_message"`
	ProviderMessageID string      `json:"provider_message_id" gorm:"not null;uniqueIndex:idx_account_provider_message"`
	ThreadID          string      `json:"thread_id,omitempty" gorm:"index"`
	PositionInThread  int         `json:"position_in_thread" gorm:"not null;default:1"`
	InReplyTo         string      `json:"in_reply_to,omitempty"`
	Subject           string      `json:"subject" gorm:"type:text"`
	Sender            string      `json:"sender"`
	SenderName        string      `json:"sender_name,omitempty"`
	Recipients        StringArray `json:"recipients" gorm:"type:text"`
	Cc                StringArray `json:"cc" gorm:"type:text"`
	BodyPlain         string      `json:"body_plain,omitempty" gorm:"type:text"`
	BodyHTML          string      `json:"body_html,omitempty" gorm:"type:text"`
	Snippet           string      `json:"snippet,omitempty" gorm:"type:text"`
	HasAttachments    bool        `json:"has_attachments"`
	Labels            StringArray `json:"labels" gorm:"type:text"`
	IsRead            bool        `json:"is_read"`
	IsStarred         bool        `json:"is_starred"`

	UrgencyScore    *int    `json:"urgency_score,omitempty"`
	ImportanceScore *int    `json:"importance_score,omitempty"`
	ActionRequired  *bool   `json:"action_required,omitempty"`
	AICategory      *string `json:"ai_category,omitempty" gorm:"column:ai_category"`
	Sentiment       *string `json:"sentiment,omitempty"`

	WorkspaceID *string    `json:"workspace_id,omitempty" gorm:"index"`
	ReceivedAt  *time.Time `json:"received_at,omitempty" gorm:"index"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (Message) TableName() string {
	return "email_messages"
}

// EnrichmentContent is the text sent to the model: plain body, else snippet, else subject.
func (m *Message) EnrichmentContent() string {
	switch {
	case m.BodyPlain != "":
		return m.BodyPlain
	case m.Snippet != "":
		return m.Snippet
	default:
		return m.Subject
	}
}
