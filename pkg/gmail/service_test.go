package gmail

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	emaildomain "mailcake-backend/internal/email/domain"
)

const plainMessage = `{
	"id": "m1",
	"threadId": "t1",
	"labelIds": ["INBOX"],
	"payload": {
		"mimeType": "text/plain",
		"headers": [{"name": "Subject", "value": "Invoice"}],
		"body": {"data": "aGVsbG8="}
	}
}`

func newTestSession(t *testing.T, handler http.HandlerFunc) *session {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	srv, err := gmail.NewService(context.Background(),
		option.WithEndpoint(server.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	s := newSession(srv, 1000, zaptest.NewLogger(t))
	s.retryBackoff = time.Millisecond
	return s
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func writeAPIError(w http.ResponseWriter, status int) {
	writeJSON(w, status, fmt.Sprintf(`{"error":{"code":%d,"message":"%s"}}`, status, http.StatusText(status)))
}

func TestListNewReferencesWithoutCursorListsInbox(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/messages", r.URL.Path)
		assert.Equal(t, "in:inbox", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("maxResults"))
		writeJSON(w, http.StatusOK, `{"messages":[{"id":"m2","threadId":"t2"},{"id":"m1","threadId":"t1"}]}`)
	})

	refs, err := s.ListNewReferences(context.Background(), nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []emaildomain.MessageRef{
		{NativeID: "m2", ThreadID: "t2"},
		{NativeID: "m1", ThreadID: "t1"},
	}, refs)
}

func TestListNewReferencesFollowsHistoryPages(t *testing.T) {
	var calls atomic.Int32
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/gmail/v1/users/me/history", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("startHistoryId"))
		assert.Equal(t, "messageAdded", r.URL.Query().Get("historyTypes"))

		switch r.URL.Query().Get("pageToken") {
		case "":
			writeJSON(w, http.StatusOK, `{
				"history": [
					{"id": "101", "messagesAdded": [{"message": {"id": "m1", "threadId": "t1"}}]},
					{"id": "102", "messagesAdded": [{"message": {"id": "m2", "threadId": "t1"}}]}
				],
				"nextPageToken": "p2",
				"historyId": "110"
			}`)
		case "p2":
			writeJSON(w, http.StatusOK, `{
				"history": [
					{"id": "103", "messagesAdded": [{"message": {"id": "m2", "threadId": "t1"}}, {"message": {"id": "m3", "threadId": "t3"}}]}
				],
				"historyId": "110"
			}`)
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	})

	refs, err := s.ListNewReferences(context.Background(), &emaildomain.CursorMark{HistoryID: 100}, 50)
	require.NoError(t, err)
	assert.Equal(t, []emaildomain.MessageRef{
		{NativeID: "m1", ThreadID: "t1"},
		{NativeID: "m2", ThreadID: "t1"},
		{NativeID: "m3", ThreadID: "t3"},
	}, refs)
	assert.EqualValues(t, 2, calls.Load())
}

func TestListNewReferencesExpiredHistoryInvalidatesCursor(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound)
	})

	_, err := s.ListNewReferences(context.Background(), &emaildomain.CursorMark{HistoryID: 5}, 50)
	assert.ErrorIs(t, err, emaildomain.ErrCursorInvalid)
}

func TestListNewReferencesOtherFailuresKeepCursor(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusInternalServerError)
	})

	_, err := s.ListNewReferences(context.Background(), &emaildomain.CursorMark{HistoryID: 5}, 50)
	require.Error(t, err)
	assert.NotErrorIs(t, err, emaildomain.ErrCursorInvalid)
}

func TestCurrentCursorMark(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/profile", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"emailAddress":"alice@example.com","historyId":"777"}`)
	})

	mark, err := s.CurrentCursorMark(context.Background())
	require.NoError(t, err)
	assert.Equal(t, emaildomain.CursorMark{HistoryID: 777}, mark)
}

func TestGetDetailRetriesRateLimitedFetch(t *testing.T) {
	var calls atomic.Int32
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/messages/m1", r.URL.Path)
		if calls.Add(1) < 3 {
			writeAPIError(w, http.StatusTooManyRequests)
			return
		}
		writeJSON(w, http.StatusOK, plainMessage)
	})

	detail, err := s.GetDetail(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", detail.NativeID)
	assert.Equal(t, "Invoice", detail.Subject)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGetDetailGivesUpOnPersistentRateLimit(t *testing.T) {
	var calls atomic.Int32
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusTooManyRequests)
	})

	_, err := s.GetDetail(context.Background(), "m1")
	require.Error(t, err)
	assert.True(t, isStatus(err, http.StatusTooManyRequests))
	assert.EqualValues(t, detailAttempts, calls.Load())
}

func TestGetDetailDoesNotRetryOtherErrors(t *testing.T) {
	var calls atomic.Int32
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusInternalServerError)
	})

	_, err := s.GetDetail(context.Background(), "m1")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGetDetailBackoffStopsOnContextDone(t *testing.T) {
	var calls atomic.Int32
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusTooManyRequests)
	})
	s.retryBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.GetDetail(ctx, "m1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.EqualValues(t, 1, calls.Load())
}
