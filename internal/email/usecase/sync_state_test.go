package usecase

import (
	"testing"

	emaildomain "mailcake-backend/internal/email/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanFetch(t *testing.T) {
	plan := PlanFetch(nil, 50)
	assert.Equal(t, FetchBootstrap, plan.Mode)
	assert.Nil(t, plan.Cursor)
	assert.Equal(t, 50, plan.Limit)
	assert.True(t, plan.Resets())

	plan = PlanFetch(&emaildomain.SyncCursor{AccountID: "a"}, 50)
	assert.Equal(t, FetchBootstrap, plan.Mode, "a cursor row without a mark bootstraps")

	h := uint64(812)
	plan = PlanFetch(&emaildomain.SyncCursor{AccountID: "a", LastHistoryID: &h}, 50)
	assert.Equal(t, FetchIncremental, plan.Mode)
	require.NotNil(t, plan.Cursor)
	assert.Equal(t, uint64(812), plan.Cursor.HistoryID)
	assert.False(t, plan.Resets())

	plan = plan.Invalidate()
	assert.Equal(t, FetchInvalidated, plan.Mode)
	assert.Nil(t, plan.Cursor)
	assert.Equal(t, 50, plan.Limit)
	assert.True(t, plan.Resets())
}

func TestMergeIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, mergeIDs([]string{"a", "b"}, []string{"b", "c", "a"}))
	assert.Empty(t, mergeIDs(nil, nil))
}
