package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	emaildomain "mailcake-backend/internal/email/domain"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type stubFinder struct {
	accounts []emaildomain.Account
	err      error
	lookups  []string
}

func (f *stubFinder) FindByAddress(ctx context.Context, provider emaildomain.ProviderKind, address string) ([]emaildomain.Account, error) {
	f.lookups = append(f.lookups, string(provider)+":"+address)
	return f.accounts, f.err
}

type stubSubmitter struct {
	mu        sync.Mutex
	submitted []string
	reject    bool
}

func (s *stubSubmitter) Submit(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, accountID)
	return !s.reject
}

func TestHandlePayloadQueuesMatchingAccounts(t *testing.T) {
	finder := &stubFinder{accounts: []emaildomain.Account{
		{ID: "a1", IsActive: true, SyncEnabled: true},
		{ID: "a2", IsActive: true, SyncEnabled: false},
		{ID: "a3", IsActive: true, SyncEnabled: true},
	}}
	submitter := &stubSubmitter{}
	s := newService(finder, submitter, "gmail-updates", zaptest.NewLogger(t))

	n := s.HandlePayload(context.Background(), []byte(`{"emailAddress":"me@example.com","historyId":120}`))
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a1", "a3"}, submitter.submitted)
	assert.Equal(t, []string{"gmail:me@example.com"}, finder.lookups)
	assert.Equal(t, "gmail-updates-sub", s.subName)
}

func TestHandlePayloadDropsStaleHistory(t *testing.T) {
	finder := &stubFinder{accounts: []emaildomain.Account{{ID: "a1", IsActive: true, SyncEnabled: true}}}
	submitter := &stubSubmitter{}
	s := newService(finder, submitter, "t", zaptest.NewLogger(t))
	ctx := context.Background()

	assert.Equal(t, 1, s.HandlePayload(ctx, []byte(`{"emailAddress":"me@example.com","historyId":120}`)))
	assert.Equal(t, 0, s.HandlePayload(ctx, []byte(`{"emailAddress":"me@example.com","historyId":120}`)))
	assert.Equal(t, 0, s.HandlePayload(ctx, []byte(`{"emailAddress":"me@example.com","historyId":99}`)))
	assert.Equal(t, 1, s.HandlePayload(ctx, []byte(`{"emailAddress":"me@example.com","historyId":121}`)))
	assert.Equal(t, []string{"a1", "a1"}, submitter.submitted)
}

func TestHandlePayloadIgnoresBadInput(t *testing.T) {
	finder := &stubFinder{}
	submitter := &stubSubmitter{}
	s := newService(finder, submitter, "t", zaptest.NewLogger(t))
	ctx := context.Background()

	assert.Zero(t, s.HandlePayload(ctx, []byte("not json")))
	assert.Zero(t, s.HandlePayload(ctx, []byte(`{"historyId":5}`)))
	assert.Zero(t, s.HandlePayload(ctx, []byte(`{"emailAddress":"nobody@example.com","historyId":5}`)))

	finder.err = errors.New("db down")
	assert.Zero(t, s.HandlePayload(ctx, []byte(`{"emailAddress":"me@example.com","historyId":6}`)))
	assert.Empty(t, submitter.submitted)
}

func TestHandlePayloadCountsOnlyAcceptedSubmissions(t *testing.T) {
	finder := &stubFinder{accounts: []emaildomain.Account{{ID: "a1", IsActive: true, SyncEnabled: true}}}
	submitter := &stubSubmitter{reject: true}
	s := newService(finder, submitter, "t", zaptest.NewLogger(t))

	assert.Zero(t, s.HandlePayload(context.Background(), []byte(`{"emailAddress":"me@example.com","historyId":1}`)))
	assert.Equal(t, []string{"a1"}, submitter.submitted)
	assert.NoError(t, s.Close())
}
