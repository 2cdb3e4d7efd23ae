package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	emaildomain "mailcake-backend/internal/email/domain"
)

const maxReplySuggestions = 3

var categories = map[string]string{
	"work":       "work",
	"newsletter": "newsletter",
	"billing":    "billing",
	"meeting":    "meeting",
	"promotion":  "promotion",
	"personal":   "personal",
	"other":      "other",
	"工作信件":       "work",
	"電子報":        "newsletter",
	"帳單財務":       "billing",
	"會議邀請":       "meeting",
	"促銷廣告":       "promotion",
	"個人通知":       "personal",
	"其他":         "other",
}

var sentiments = map[string]bool{"positive": true, "neutral": true, "negative": true}

// Analysis is the normalized model output for one message.
type Analysis struct {
	Summary          string
	Scores           emaildomain.Scores
	ReplySuggestions []string
}

// ParseAnalysis decodes raw model output into a loose map and normalizes it.
func ParseAnalysis(content string) (Analysis, error) {
	content = stripCodeFence(content)

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Analysis{}, fmt.Errorf("model output is not a JSON object: %w", err)
	}
	if raw == nil {
		return Analysis{}, errors.New("model output is null")
	}
	return NormalizeAnalysis(raw), nil
}

// NormalizeAnalysis coerces every field to its stored type. It never fails.
func NormalizeAnalysis(raw map[string]interface{}) Analysis {
	return Analysis{
		Summary: normalizeSummary(raw["summary"]),
		Scores: emaildomain.Scores{
			UrgencyScore:    normalizeScore(raw["urgency_score"]),
			ImportanceScore: normalizeScore(raw["importance_score"]),
			ActionRequired:  normalizeBool(raw, "action_required"),
			Category:        normalizeCategory(raw, "category"),
			Sentiment:       normalizeSentiment(raw["sentiment"]),
		},
		ReplySuggestions: normalizeSuggestions(raw["reply_suggestions"]),
	}
}

// normalizeSummary turns a list into "• item" lines and anything else into a string.
func normalizeSummary(v interface{}) string {
	items, ok := v.([]interface{})
	if !ok {
		return stringify(v)
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if isEmpty(item) {
			continue
		}
		lines = append(lines, "• "+stringify(item))
	}
	return strings.Join(lines, "\n")
}

// normalizeSuggestions accepts a list, or a string holding a JSON list. A string that
// is not JSON becomes a single suggestion; any other shape yields none.
func normalizeSuggestions(v interface{}) []string {
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return []string{s}
		}
		v = parsed
	}

	items, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, maxReplySuggestions)
	for _, item := range items {
		if isEmpty(item) {
			continue
		}
		out = append(out, stringify(item))
		if len(out) == maxReplySuggestions {
			break
		}
	}
	return out
}

func normalizeScore(v interface{}) *int {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	score := int(math.Round(f))
	if score < 1 {
		score = 1
	}
	if score > 5 {
		score = 5
	}
	return &score
}

func normalizeBool(raw map[string]interface{}, key string) *bool {
	v, present := raw[key]
	if !present || v == nil {
		return nil
	}
	var b bool
	switch x := v.(type) {
	case bool:
		b = x
	case float64:
		b = x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "1":
			b = true
		}
	}
	return &b
}

func normalizeCategory(raw map[string]interface{}, key string) *string {
	v, present := raw[key]
	if !present || v == nil {
		return nil
	}
	s := strings.ToLower(strings.TrimSpace(stringify(v)))
	if s == "" {
		return nil
	}
	c, ok := categories[s]
	if !ok {
		c = "other"
	}
	return &c
}

func normalizeSentiment(v interface{}) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if !sentiments[s] {
		return nil
	}
	return &s
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func isEmpty(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}

// stripCodeFence removes a ```json ... ``` wrapper some models add despite JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
