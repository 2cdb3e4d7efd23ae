package usecase

import (
	"fmt"
	"strings"
)

const defaultStyle = "bullet_points"

var styleInstructions = map[string]string{
	"bullet_points": "Summarize the message as 5-7 short bullet points ordered by importance. Keep names, dates and numbers.",
	"executive":     "Write a 100-150 word executive brief: core message, decisions needed, recommended action.",
	"action_items":  "List only the concrete action items as \"[deadline or ASAP] task (owner)\". Ignore purely informational content.",
	"detailed":      "Write complete notes covering main content, decisions, follow-ups and people involved.",
	"one_liner":     "Describe the core of the message in one sentence of at most 30 words.",
}

var languageNames = map[string]string{
	"zh-TW": "Traditional Chinese (Taiwan)",
	"zh-CN": "Simplified Chinese",
	"en":    "English",
	"ja":    "Japanese",
}

// resolveStyle returns a known style, falling back to fallback and then bullet points.
func resolveStyle(preferred, fallback string) string {
	for _, s := range []string{preferred, fallback} {
		if _, ok := styleInstructions[s]; ok {
			return s
		}
	}
	return defaultStyle
}

func buildSystemPrompt(style, language string) string {
	lang := languageNames[language]
	if lang == "" {
		lang = language
	}

	var b strings.Builder
	b.WriteString("You analyze email messages. Respond with a single JSON object with the fields:\n")
	b.WriteString(`{"summary": string, "urgency_score": 1-5, "importance_score": 1-5, "action_required": boolean, `)
	b.WriteString(`"category": "work|newsletter|billing|meeting|promotion|personal|other", `)
	b.WriteString(`"sentiment": "positive|neutral|negative", "reply_suggestions": [up to 3 short replies]}`)
	b.WriteString("\n\nSummary style: ")
	b.WriteString(styleInstructions[style])
	fmt.Fprintf(&b, "\nWrite summary and replies in %s.", lang)
	b.WriteString("\nUse an empty reply_suggestions list for newsletters and promotions.")
	return b.String()
}

func buildUserPrompt(content string) string {
	return "<email>\n" + content + "\n</email>"
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
