package imap

import (
	"strings"
	"testing"
	"time"

	emaildomain "mailcake-backend/internal/email/domain"
	"mailcake-backend/pkg/mailparse"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeIDRoundTrip(t *testing.T) {
	id := formatNativeID(1700000000, 42)
	assert.Equal(t, "1700000000:42", id)

	validity, uid, err := parseNativeID(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(1700000000), validity)
	assert.Equal(t, uint32(42), uid)

	for _, bad := range []string{"", "42", "x:1", "1:y", "1:0", "99999999999:1"} {
		_, _, err := parseNativeID(bad)
		assert.Error(t, err, bad)
	}
}

func TestBuildDetail(t *testing.T) {
	raw := "From: Bob <bob@example.com>\r\n" +
		"To: alice@example.com\r\n" +
		"Subject: Lunch?\r\n" +
		"Message-Id: <m2@example.com>\r\n" +
		"In-Reply-To: <m1@example.com>\r\n" +
		"References: <m0@example.com> <m1@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Noodles at noon?\r\n"
	body, err := mailparse.ReadBody(strings.NewReader(raw))
	require.NoError(t, err)

	internal := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	detail := buildDetail("7:3", []string{imap.SeenFlag}, internal, body)

	assert.Equal(t, "7:3", detail.NativeID)
	assert.Equal(t, "m0@example.com", detail.ThreadID)
	assert.Equal(t, "m1@example.com", detail.InReplyTo)
	assert.Equal(t, "Lunch?", detail.Subject)
	assert.Equal(t, "bob@example.com", detail.Sender)
	assert.Equal(t, "Bob", detail.SenderName)
	assert.Equal(t, []string{"alice@example.com"}, detail.Recipients)
	assert.True(t, detail.IsRead)
	assert.False(t, detail.IsStarred)
	assert.Equal(t, "Noodles at noon?", detail.Snippet)
	require.NotNil(t, detail.ReceivedAt)
	assert.Equal(t, internal, *detail.ReceivedAt)
}

func TestCheckValidity(t *testing.T) {
	assert.NoError(t, checkValidity(nil, 7))
	assert.NoError(t, checkValidity(&emaildomain.CursorMark{}, 7))
	assert.NoError(t, checkValidity(&emaildomain.CursorMark{UIDValidity: 7, UIDNext: 40}, 7))
	assert.ErrorIs(t, checkValidity(&emaildomain.CursorMark{UIDValidity: 7, UIDNext: 40}, 8), emaildomain.ErrCursorInvalid)
}

func TestSelectUIDs(t *testing.T) {
	tests := []struct {
		name   string
		uids   []uint32
		cursor *emaildomain.CursorMark
		limit  int
		want   []uint32
	}{
		{
			name:  "bootstrap keeps newest",
			uids:  []uint32{9, 3, 12, 5, 7},
			limit: 3,
			want:  []uint32{7, 9, 12},
		},
		{
			name:  "bootstrap under limit",
			uids:  []uint32{4, 2},
			limit: 50,
			want:  []uint32{2, 4},
		},
		{
			name:   "zero cursor is bootstrap",
			uids:   []uint32{1, 2, 3},
			cursor: &emaildomain.CursorMark{},
			limit:  2,
			want:   []uint32{2, 3},
		},
		{
			name:   "incremental from uidnext ignores limit",
			uids:   []uint32{43, 41, 42},
			cursor: &emaildomain.CursorMark{UIDValidity: 7, UIDNext: 41},
			limit:  1,
			want:   []uint32{41, 42, 43},
		},
		{
			name:   "star match below uidnext dropped",
			uids:   []uint32{38},
			cursor: &emaildomain.CursorMark{UIDValidity: 7, UIDNext: 41},
			limit:  50,
			want:   []uint32{},
		},
		{
			name:  "empty mailbox",
			limit: 50,
			want:  []uint32{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectUIDs(tt.uids, tt.cursor, tt.limit)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectUIDsLeavesInputUntouched(t *testing.T) {
	uids := []uint32{9, 3, 12}
	selectUIDs(uids, &emaildomain.CursorMark{UIDValidity: 1, UIDNext: 10}, 50)
	assert.Equal(t, []uint32{9, 3, 12}, uids)
}
