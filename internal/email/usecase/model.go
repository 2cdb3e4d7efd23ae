package usecase

import "strings"

var localModelPrefixes = []string{"llama", "mistral", "ollama", "phi", "gemma", "qwen"}

// IsLocalModel reports whether name refers to a locally hosted model that the
// enrichment backend cannot serve.
func IsLocalModel(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if strings.HasSuffix(lower, "-local") {
		return true
	}
	for _, p := range localModelPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// ModelChoice is the outcome of model resolution for one message.
type ModelChoice struct {
	Requested   string
	Model       string
	Substituted bool
}

// ResolveModel picks the first non-empty of the account override, the owner default
// and the system default, then swaps local models for the cloud fallback.
func ResolveModel(accountOverride *string, ownerDefault, systemDefault, cloudFallback string) ModelChoice {
	requested := systemDefault
	switch {
	case accountOverride != nil && strings.TrimSpace(*accountOverride) != "":
		requested = strings.TrimSpace(*accountOverride)
	case strings.TrimSpace(ownerDefault) != "":
		requested = strings.TrimSpace(ownerDefault)
	}

	if IsLocalModel(requested) {
		return ModelChoice{Requested: requested, Model: cloudFallback, Substituted: true}
	}
	return ModelChoice{Requested: requested, Model: requested}
}
