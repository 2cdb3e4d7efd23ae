package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	authdomain "mailcake-backend/internal/auth/domain"
	authrepo "mailcake-backend/internal/auth/repository"
	emaildomain "mailcake-backend/internal/email/domain"
	"mailcake-backend/internal/email/repository"
	"mailcake-backend/internal/testutil"
	"mailcake-backend/pkg/ai"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// fakeProvider is an in-memory mailbox whose history id grows by one per added message.
type fakeProvider struct {
	mu            sync.Mutex
	messages      []emaildomain.MessageDetail
	addedAt       map[string]uint64
	historyID     uint64
	invalidCursor bool
	failDetail    map[string]bool
	markOverride  *emaildomain.CursorMark
	listCalls     []*emaildomain.CursorMark
	detailCalls   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{addedAt: map[string]uint64{}, failDetail: map[string]bool{}}
}

func (p *fakeProvider) add(details ...emaildomain.MessageDetail) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range details {
		p.historyID++
		p.addedAt[d.NativeID] = p.historyID
		p.messages = append(p.messages, d)
	}
}

func (p *fakeProvider) ListNewReferences(ctx context.Context, cursor *emaildomain.CursorMark, limit int) ([]emaildomain.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cursor != nil {
		c := *cursor
		p.listCalls = append(p.listCalls, &c)
	} else {
		p.listCalls = append(p.listCalls, nil)
	}

	var refs []emaildomain.MessageRef
	if cursor == nil {
		// newest first, like an inbox listing
		for i := len(p.messages) - 1; i >= 0 && len(refs) < limit; i-- {
			refs = append(refs, emaildomain.MessageRef{NativeID: p.messages[i].NativeID, ThreadID: p.messages[i].ThreadID})
		}
		return refs, nil
	}
	if p.invalidCursor {
		return nil, fmt.Errorf("history %d: %w", cursor.HistoryID, emaildomain.ErrCursorInvalid)
	}
	for _, m := range p.messages {
		if p.addedAt[m.NativeID] > cursor.HistoryID {
			refs = append(refs, emaildomain.MessageRef{NativeID: m.NativeID, ThreadID: m.ThreadID})
		}
	}
	return refs, nil
}

func (p *fakeProvider) GetDetail(ctx context.Context, nativeID string) (*emaildomain.MessageDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detailCalls++
	if p.failDetail[nativeID] {
		return nil, errors.New("detail fetch failed")
	}
	for _, m := range p.messages {
		if m.NativeID == nativeID {
			d := m
			return &d, nil
		}
	}
	return nil, errors.New("not found")
}

func (p *fakeProvider) CurrentCursorMark(ctx context.Context) (emaildomain.CursorMark, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.markOverride != nil {
		return *p.markOverride, nil
	}
	return emaildomain.CursorMark{HistoryID: p.historyID}, nil
}

func (p *fakeProvider) Close() error { return nil }

type fakeConnector struct {
	provider *fakeProvider
	err      error
	connects atomic.Int32
}

func (c *fakeConnector) Connect(ctx context.Context, account *emaildomain.Account, token *oauth2.Token, onRefresh emaildomain.TokenUpdateFunc) (emaildomain.MailProvider, error) {
	c.connects.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.provider, nil
}

type fakeGate struct {
	err error
}

func (g *fakeGate) Resolve(encryptedAccess, encryptedRefresh string, expiresAt *time.Time) (*oauth2.Token, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &oauth2.Token{AccessToken: encryptedAccess, RefreshToken: encryptedRefresh}, nil
}

func (g *fakeGate) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

const defaultModelOutput = `{"summary":["Budget approved","Kickoff on Monday",""],"urgency_score":4,` +
	`"importance_score":"3","action_required":true,"category":"work","sentiment":"neutral",` +
	`"reply_suggestions":"[\"Thanks!\",\"Will do\"]"}`

// fakeGateway records calls and tracks how many are in flight at once.
type fakeGateway struct {
	delay   time.Duration
	respond func(req ai.CompletionRequest) (string, error)

	mu       sync.Mutex
	requests []ai.CompletionRequest

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (g *fakeGateway) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
	n := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	for {
		m := g.maxInflight.Load()
		if n <= m || g.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if strings.Contains(req.User, "PANIC") {
		panic("gateway exploded")
	}
	if strings.Contains(req.User, "FAIL") {
		return nil, errors.New("model returned 500")
	}
	if strings.Contains(req.User, "HANG") {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	content := defaultModelOutput
	if g.respond != nil {
		var err error
		content, err = g.respond(req)
		if err != nil {
			return nil, err
		}
	}
	tokens := 321
	return &ai.Completion{Content: content, TotalTokens: &tokens}, nil
}

func (g *fakeGateway) calls() []ai.CompletionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ai.CompletionRequest(nil), g.requests...)
}

var userSeq atomic.Int64

type fixture struct {
	db       *gorm.DB
	users    authrepo.UserRepository
	accounts repository.AccountRepository
	cursors  repository.SyncCursorRepository
	messages repository.MessageRepository
	results  repository.EnrichmentRepository

	provider  *fakeProvider
	connector *fakeConnector
	gate      *fakeGate
	gateway   *fakeGateway

	ingester *Ingester
	enricher *Enricher
	sync     *SyncService
}

func testEnricherConfig() EnricherConfig {
	return EnricherConfig{
		Concurrency:        5,
		DefaultModel:       "claude-haiku",
		CloudFallbackModel: "claude-haiku",
		DefaultStyle:       "bullet_points",
		DefaultLanguage:    "zh-TW",
		MaxTokensPerEmail:  1000,
		CallTimeout:        5 * time.Second,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, testEnricherConfig())
}

func newFixtureWithConfig(t *testing.T, cfg EnricherConfig) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	logger := zaptest.NewLogger(t)

	f := &fixture{
		db:       db,
		users:    authrepo.NewUserRepository(db),
		accounts: repository.NewAccountRepository(db),
		cursors:  repository.NewSyncCursorRepository(db),
		messages: repository.NewMessageRepository(db),
		results:  repository.NewEnrichmentRepository(db),
		provider: newFakeProvider(),
		gate:     &fakeGate{},
		gateway:  &fakeGateway{},
	}
	f.connector = &fakeConnector{provider: f.provider}
	f.ingester = NewIngester(f.messages, logger)
	f.enricher = NewEnricher(f.messages, f.accounts, f.users, f.results, f.gateway, cfg, logger)
	f.sync = NewSyncService(f.accounts, f.cursors, f.users, f.gate,
		map[emaildomain.ProviderKind]emaildomain.ProviderConnector{emaildomain.ProviderGmail: f.connector},
		f.ingester, f.enricher, SyncConfig{BootstrapLimit: 50, BackfillLimit: 20}, logger)
	return f
}

func (f *fixture) createUser(t *testing.T, mutate func(*authdomain.User)) *authdomain.User {
	t.Helper()
	workspace := "ws-1"
	u := &authdomain.User{
		Email:       fmt.Sprintf("owner-%d@example.com", userSeq.Add(1)),
		Name:        "Owner",
		IsActive:    true,
		WorkspaceID: &workspace,
	}
	if mutate != nil {
		mutate(u)
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) createAccount(t *testing.T, mutate func(*emaildomain.Account)) *emaildomain.Account {
	t.Helper()
	owner := f.createUser(t, nil)
	a := &emaildomain.Account{
		UserID:                owner.ID,
		Provider:              emaildomain.ProviderGmail,
		EmailAddress:          "me@example.com",
		EncryptedAccessToken:  "access",
		EncryptedRefreshToken: "refresh",
		IsActive:              true,
		SyncEnabled:           true,
	}
	if mutate != nil {
		mutate(a)
	}
	require.NoError(t, f.accounts.Create(context.Background(), a))
	return a
}

// storeMessage inserts a message directly, bypassing the provider.
func (f *fixture) storeMessage(t *testing.T, accountID, nativeID, body string, receivedAt time.Time) *emaildomain.Message {
	t.Helper()
	ts := receivedAt.UTC()
	m := &emaildomain.Message{
		AccountID:         accountID,
		ProviderMessageID: nativeID,
		Subject:           "subject " + nativeID,
		BodyPlain:         body,
		ReceivedAt:        &ts,
	}
	created, err := f.messages.Create(context.Background(), m)
	require.NoError(t, err)
	require.True(t, created)
	return m
}

func (f *fixture) messageCount(t *testing.T, accountID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&emaildomain.Message{}).Where("account_id = ?", accountID).Count(&n).Error)
	return n
}

func (f *fixture) resultCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&emaildomain.EnrichmentResult{}).Count(&n).Error)
	return n
}

func detail(id string, body string) emaildomain.MessageDetail {
	received := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return emaildomain.MessageDetail{
		NativeID:   id,
		ThreadID:   "thread-" + id,
		Subject:    "Subject " + id,
		Sender:     "sender@example.com",
		Recipients: []string{"me@example.com"},
		BodyPlain:  body,
		Snippet:    body,
		Labels:     []string{"INBOX"},
		ReceivedAt: &received,
	}
}

func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
