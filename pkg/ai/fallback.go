package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
)

// Router sends gemini-* models to the Gemini SDK when it is configured and everything
// else to the LiteLLM proxy. A Gemini quota or connection failure is retried once
// through the proxy, which can serve the same model.
type Router struct {
	proxy  Gateway
	gemini Gateway
	logger *zap.Logger
}

func NewRouter(proxy, gemini Gateway, logger *zap.Logger) *Router {
	return &Router{proxy: proxy, gemini: gemini, logger: logger.Named("ai")}
}

func isGeminiModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "gemini")
}

// Complete implements Gateway
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if r.gemini != nil && (isGeminiModel(req.Model) || r.proxy == nil) {
		out, err := r.gemini.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		if r.proxy == nil || !(isQuotaError(err) || isConnectionError(err)) {
			return nil, err
		}
		r.logger.Warn("gemini unavailable, falling back to proxy",
			zap.String("model", req.Model), zap.Error(err))
	}
	if r.proxy == nil {
		return nil, fmt.Errorf("no AI provider available for model %q", req.Model)
	}
	return r.proxy.Complete(ctx, req)
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource_exhausted",
		"resource exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// Classify labels a gateway error for logging.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case isQuotaError(err):
		return "quota"
	case isConnectionError(err):
		return "connection"
	default:
		return "model"
	}
}
