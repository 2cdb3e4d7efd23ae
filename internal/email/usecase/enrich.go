package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	authrepo "mailcake-backend/internal/auth/repository"
	emaildomain "mailcake-backend/internal/email/domain"
	"mailcake-backend/internal/email/repository"
	"mailcake-backend/pkg/ai"

	"go.uber.org/zap"
)

const (
	enrichTemperature = 0.3
	enrichMaxTokens   = 800
	charsPerToken     = 3
)

var errEmptyContent = errors.New("message has no content to enrich")

// EnricherConfig carries the enrichment settings from the process config.
type EnricherConfig struct {
	Concurrency        int
	DefaultModel       string
	CloudFallbackModel string
	DefaultStyle       string
	DefaultLanguage    string
	MaxTokensPerEmail  int
	CallTimeout        time.Duration
}

// BatchReport counts the outcome of one Enrich call.
type BatchReport struct {
	Enriched int
	Failed   int
	Skipped  int
}

// Enricher runs model enrichment over a batch of stored messages on a fixed-size
// worker pool. Every message is its own failure domain.
type Enricher struct {
	messages repository.MessageRepository
	accounts repository.AccountRepository
	users    authrepo.UserRepository
	results  repository.EnrichmentRepository
	gateway  ai.Gateway
	cfg      EnricherConfig
	logger   *zap.Logger
}

func NewEnricher(
	messages repository.MessageRepository,
	accounts repository.AccountRepository,
	users authrepo.UserRepository,
	results repository.EnrichmentRepository,
	gateway ai.Gateway,
	cfg EnricherConfig,
	logger *zap.Logger,
) *Enricher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Enricher{
		messages: messages,
		accounts: accounts,
		users:    users,
		results:  results,
		gateway:  gateway,
		cfg:      cfg,
		logger:   logger.Named("enrich"),
	}
}

type unitOutcome int

const (
	outcomeEnriched unitOutcome = iota
	outcomeFailed
	outcomeSkipped
)

// Enrich processes every id and returns once all of them are settled. It never fails;
// per-message errors are logged and counted.
func (e *Enricher) Enrich(ctx context.Context, messageIDs []string) BatchReport {
	var report BatchReport
	if len(messageIDs) == 0 {
		return report
	}

	workers := e.cfg.Concurrency
	if workers > len(messageIDs) {
		workers = len(messageIDs)
	}

	jobs := make(chan string)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(o unitOutcome) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case outcomeEnriched:
			report.Enriched++
		case outcomeFailed:
			report.Failed++
		case outcomeSkipped:
			report.Skipped++
		}
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				record(e.runUnit(ctx, id))
			}
		}()
	}

	sent := 0
feed:
	for _, id := range messageIDs {
		select {
		case jobs <- id:
			sent++
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	report.Skipped += len(messageIDs) - sent
	e.logger.Info("enrichment batch finished",
		zap.Int("total", len(messageIDs)),
		zap.Int("enriched", report.Enriched),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report
}

// runUnit contains any failure of one message, panics included.
func (e *Enricher) runUnit(ctx context.Context, messageID string) (outcome unitOutcome) {
	log := e.logger.With(zap.String("message_id", messageID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("enrichment panicked", zap.Any("panic", r), zap.Stack("stack"))
			outcome = outcomeFailed
		}
	}()

	err := e.EnrichMessage(ctx, messageID)
	switch {
	case err == nil:
		return outcomeEnriched
	case errors.Is(err, errEmptyContent):
		log.Warn("skipping message without content")
		return outcomeSkipped
	default:
		log.Error("enrichment failed", zap.String("kind", ai.Classify(err)), zap.Error(err))
		return outcomeFailed
	}
}

// EnrichMessage enriches one message and persists the result in a single transaction.
// On error nothing is written.
func (e *Enricher) EnrichMessage(ctx context.Context, messageID string) error {
	msg, err := e.messages.FindByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("message %s not found", messageID)
	}

	content := msg.EnrichmentContent()
	if strings.TrimSpace(content) == "" {
		return errEmptyContent
	}

	account, err := e.accounts.FindByID(ctx, msg.AccountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return fmt.Errorf("account %s: %w", msg.AccountID, emaildomain.ErrAccountNotFound)
	}
	owner, err := e.users.FindByID(ctx, account.UserID)
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}

	var ownerModel, ownerStyle, language string
	if owner != nil {
		ownerModel, ownerStyle, language = owner.DefaultModel, owner.DefaultSummaryStyle, owner.SummaryLanguage
	}
	if language == "" {
		language = e.cfg.DefaultLanguage
	}
	style := resolveStyle(ownerStyle, e.cfg.DefaultStyle)

	choice := ResolveModel(account.ModelOverride, ownerModel, e.cfg.DefaultModel, e.cfg.CloudFallbackModel)
	if choice.Substituted {
		e.logger.Warn("local model is not available for background enrichment, using cloud fallback",
			zap.String("message_id", messageID),
			zap.String("requested_model", choice.Requested),
			zap.String("model", choice.Model))
	}

	content = truncateRunes(content, e.cfg.MaxTokensPerEmail*charsPerToken)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	started := time.Now()
	completion, err := e.gateway.Complete(callCtx, ai.CompletionRequest{
		Model:       choice.Model,
		System:      buildSystemPrompt(style, language),
		User:        buildUserPrompt(content),
		JSON:        true,
		Temperature: enrichTemperature,
		MaxTokens:   enrichMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("model %s: %w", choice.Model, err)
	}
	elapsed := time.Since(started)

	analysis, err := ParseAnalysis(completion.Content)
	if err != nil {
		return err
	}

	result := &emaildomain.EnrichmentResult{
		SummaryText:      analysis.Summary,
		Style:            style,
		ReplySuggestions: emaildomain.StringArray(analysis.ReplySuggestions),
		RequestedModel:   choice.Requested,
		ModelUsed:        choice.Model,
		ModelSubstituted: choice.Substituted,
		TokensUsed:       completion.TotalTokens,
		GenerationMS:     elapsed.Milliseconds(),
	}
	if err := e.results.Save(ctx, msg.ID, analysis.Scores, result); err != nil {
		return fmt.Errorf("save enrichment: %w", err)
	}
	return nil
}
