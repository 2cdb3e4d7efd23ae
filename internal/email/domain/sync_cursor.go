package domain

import "time"

// CursorMark is a provider high-water mark. Only the fields of one provider shape are
// set: HistoryID for Gmail, DeltaToken for Outlook, UIDValidity/UIDNext for IMAP.
type CursorMark struct {
	HistoryID   uint64
	DeltaToken  string
	UIDValidity uint32
	UIDNext     uint32
}

func (m CursorMark) IsZero() bool {
	return m == CursorMark{}
}

// Regresses reports whether moving from prev to m would go back in provider time.
// Marks of different shapes, or IMAP marks under a different UIDVALIDITY, can't be
// ordered and count as a regression; only an explicit reset may cross them.
func (m CursorMark) Regresses(prev CursorMark) bool {
	switch {
	case prev.IsZero():
		return false
	case prev.HistoryID != 0:
		return m.HistoryID < prev.HistoryID
	case prev.UIDValidity != 0:
		if m.UIDValidity != prev.UIDValidity {
			return true
		}
		return m.UIDNext < prev.UIDNext
	case prev.DeltaToken != "":
		// delta tokens are opaque
		return m.DeltaToken == ""
	}
	return false
}

// SyncCursor persists the last committed mark of an account.
type SyncCursor struct {
	AccountID       string    `json:"account_id" gorm:"primaryKey"`
	LastHistoryID   *uint64   `json:"last_history_id,omitempty"`
	LastDeltaToken  *string   `json:"last_delta_token,omitempty" gorm:"type:text"`
	LastUIDValidity *uint32   `json:"last_uid_validity,omitempty" gorm:"column:last_uid_validity"`
	LastUIDNext     *uint32   `json:"last_uid_next,omitempty" gorm:"column:last_uid_next"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (SyncCursor) TableName() string {
	return "email_sync_states"
}

// Mark returns the stored mark, zero when nothing was committed yet.
func (c *SyncCursor) Mark() CursorMark {
	if c == nil {
		return CursorMark{}
	}
	var m CursorMark
	if c.LastHistoryID != nil {
		m.HistoryID = *c.LastHistoryID
	}
	if c.LastDeltaToken != nil {
		m.DeltaToken = *c.LastDeltaToken
	}
	if c.LastUIDValidity != nil {
		m.UIDValidity = *c.LastUIDValidity
	}
	if c.LastUIDNext != nil {
		m.UIDNext = *c.LastUIDNext
	}
	return m
}

// Apply replaces the stored shape with m.
func (c *SyncCursor) Apply(m CursorMark) {
	c.LastHistoryID, c.LastDeltaToken, c.LastUIDValidity, c.LastUIDNext = nil, nil, nil, nil
	switch {
	case m.HistoryID != 0:
		h := m.HistoryID
		c.LastHistoryID = &h
	case m.UIDValidity != 0:
		v, n := m.UIDValidity, m.UIDNext
		c.LastUIDValidity, c.LastUIDNext = &v, &n
	case m.DeltaToken != "":
		t := m.DeltaToken
		c.LastDeltaToken = &t
	}
}
