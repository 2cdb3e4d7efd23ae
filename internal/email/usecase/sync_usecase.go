package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	authrepo "mailcake-backend/internal/auth/repository"
	emaildomain "mailcake-backend/internal/email/domain"
	"mailcake-backend/internal/email/repository"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// CredentialGate turns stored encrypted tokens into a usable OAuth token.
type CredentialGate interface {
	Resolve(encryptedAccess, encryptedRefresh string, expiresAt *time.Time) (*oauth2.Token, error)
	Encrypt(plaintext string) (string, error)
}

// SyncConfig carries the sync limits from the process config.
type SyncConfig struct {
	BootstrapLimit int
	BackfillLimit  int
}

// SyncService runs the per-account cycle: list, ingest, advance cursor, enrich.
type SyncService struct {
	accounts   repository.AccountRepository
	cursors    repository.SyncCursorRepository
	users      authrepo.UserRepository
	gate       CredentialGate
	connectors map[emaildomain.ProviderKind]emaildomain.ProviderConnector
	ingester   *Ingester
	enricher   *Enricher
	cfg        SyncConfig
	logger     *zap.Logger
	now        func() time.Time

	inflight singleflight.Group
}

func NewSyncService(
	accounts repository.AccountRepository,
	cursors repository.SyncCursorRepository,
	users authrepo.UserRepository,
	gate CredentialGate,
	connectors map[emaildomain.ProviderKind]emaildomain.ProviderConnector,
	ingester *Ingester,
	enricher *Enricher,
	cfg SyncConfig,
	logger *zap.Logger,
) *SyncService {
	if cfg.BootstrapLimit <= 0 {
		cfg.BootstrapLimit = 50
	}
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = 20
	}
	return &SyncService{
		accounts:   accounts,
		cursors:    cursors,
		users:      users,
		gate:       gate,
		connectors: connectors,
		ingester:   ingester,
		enricher:   enricher,
		cfg:        cfg,
		logger:     logger.Named("sync"),
		now:        time.Now,
	}
}

// SyncAllAccounts syncs every active, sync-enabled account one after another. A failing
// account is recorded on that account and does not stop the others.
func (s *SyncService) SyncAllAccounts(ctx context.Context) error {
	accounts, err := s.accounts.ListSyncable(ctx)
	if err != nil {
		return fmt.Errorf("list syncable accounts: %w", err)
	}
	s.logger.Info("starting sync for all accounts", zap.Int("accounts", len(accounts)))

	failed := 0
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.SyncAccount(ctx, account.ID); err != nil {
			failed++
		}
	}
	s.logger.Info("sync for all accounts finished", zap.Int("accounts", len(accounts)), zap.Int("failed", failed))
	return nil
}

// SyncAccount runs one cycle for the account. Concurrent calls for the same account
// share a single run. Account-level failures are written to the account's sync error
// and returned.
func (s *SyncService) SyncAccount(ctx context.Context, accountID string) error {
	_, err, shared := s.inflight.Do(accountID, func() (interface{}, error) {
		return nil, s.syncAccount(ctx, accountID)
	})
	if shared {
		s.logger.Debug("joined in-flight sync", zap.String("account_id", accountID))
	}
	return err
}

func (s *SyncService) syncAccount(ctx context.Context, accountID string) error {
	log := s.logger.With(zap.String("account_id", accountID))

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account %s: %w", accountID, err)
	}
	if account == nil || !account.IsActive {
		log.Info("account missing or inactive, skipping")
		return nil
	}

	report, err := s.runCycle(ctx, account, log)
	if errors.Is(err, context.Canceled) {
		log.Info("sync interrupted", zap.Error(err))
		return err
	}
	if err != nil {
		log.Error("sync failed", zap.Error(err))
		if markErr := s.accounts.MarkSyncError(context.WithoutCancel(ctx), account.ID, err.Error()); markErr != nil {
			log.Error("failed to record sync error", zap.Error(markErr))
		}
		return err
	}

	log.Info("sync finished",
		zap.Int("enriched", report.Enriched),
		zap.Int("enrich_failed", report.Failed),
		zap.Int("enrich_skipped", report.Skipped))
	return nil
}

func (s *SyncService) runCycle(ctx context.Context, account *emaildomain.Account, log *zap.Logger) (BatchReport, error) {
	connector, ok := s.connectors[account.Provider]
	if !ok {
		return BatchReport{}, fmt.Errorf("%w: %s", emaildomain.ErrUnsupportedProvider, account.Provider)
	}

	token, err := s.gate.Resolve(account.EncryptedAccessToken, account.EncryptedRefreshToken, account.TokenExpiresAt)
	if err != nil {
		return BatchReport{}, err
	}

	owner, err := s.users.FindByID(ctx, account.UserID)
	if err != nil {
		return BatchReport{}, fmt.Errorf("load owner: %w", err)
	}
	var workspaceID *string
	if owner != nil {
		workspaceID = owner.WorkspaceID
	}

	provider, err := connector.Connect(ctx, account, token, s.tokenUpdater(account.ID, log))
	if err != nil {
		return BatchReport{}, fmt.Errorf("connect %s: %w", account.Provider, err)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			log.Debug("failed to close provider session", zap.Error(err))
		}
	}()

	cursor, err := s.cursors.Get(ctx, account.ID)
	if err != nil {
		return BatchReport{}, fmt.Errorf("load cursor: %w", err)
	}
	plan := PlanFetch(cursor, s.cfg.BootstrapLimit)

	refs, err := provider.ListNewReferences(ctx, plan.Cursor, plan.Limit)
	if errors.Is(err, emaildomain.ErrCursorInvalid) {
		log.Info("sync cursor rejected by provider, falling back to bootstrap", zap.Error(err))
		plan = plan.Invalidate()
		refs, err = provider.ListNewReferences(ctx, nil, plan.Limit)
	}
	if err != nil {
		return BatchReport{}, fmt.Errorf("list new messages (%s): %w", plan.Mode, err)
	}
	log.Info("listed new messages", zap.String("mode", string(plan.Mode)), zap.Int("count", len(refs)))

	newIDs, err := s.ingester.Ingest(ctx, account, workspaceID, provider, refs)
	if err != nil {
		return BatchReport{}, fmt.Errorf("ingest: %w", err)
	}

	// The mark is read after ingestion so that nothing stored above is skipped by it.
	mark, err := provider.CurrentCursorMark(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("read cursor mark: %w", err)
	}
	applied, err := s.cursors.Advance(ctx, account.ID, mark, plan.Resets())
	if err != nil {
		return BatchReport{}, fmt.Errorf("advance cursor: %w", err)
	}
	if !applied {
		log.Warn("provider mark is behind the stored cursor, keeping stored cursor")
	}

	if err := s.accounts.MarkSynced(ctx, account.ID, s.now()); err != nil {
		return BatchReport{}, fmt.Errorf("mark synced: %w", err)
	}

	backfill, err := s.ingester.SelectUnenriched(ctx, account.ID, s.cfg.BackfillLimit)
	if err != nil {
		// the cycle itself succeeded; enrich what was just stored
		log.Warn("backfill selection failed", zap.Error(err))
	}
	return s.enricher.Enrich(ctx, mergeIDs(newIDs, backfill)), nil
}

// tokenUpdater re-encrypts and stores tokens refreshed by the provider adapter.
func (s *SyncService) tokenUpdater(accountID string, log *zap.Logger) emaildomain.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		access, err := s.gate.Encrypt(token.AccessToken)
		if err != nil {
			return err
		}
		var refresh string
		if token.RefreshToken != "" {
			if refresh, err = s.gate.Encrypt(token.RefreshToken); err != nil {
				return err
			}
		}
		var expiry *time.Time
		if !token.Expiry.IsZero() {
			e := token.Expiry.UTC()
			expiry = &e
		}
		log.Debug("persisting refreshed token")
		return s.accounts.UpdateTokens(context.Background(), accountID, access, refresh, expiry)
	}
}

// mergeIDs returns a followed by the ids of b not already present, without duplicates.
func mergeIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
