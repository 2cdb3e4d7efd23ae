// Package mailparse turns RFC 5322 headers and bodies into the fields stored for a message.
package mailparse

import (
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const (
	NoSubject    = "(no subject)"
	SnippetLimit = 300
)

// HeaderFromPairs builds a mail header from name/value pairs as returned by APIs
// that pre-split headers.
func HeaderFromPairs(pairs [][2]string) mail.Header {
	var h mail.Header
	for _, p := range pairs {
		h.Add(p[0], p[1])
	}
	return h
}

func Subject(h mail.Header) string {
	s, err := h.Subject()
	if err != nil {
		s = h.Get("Subject")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return NoSubject
	}
	return s
}

// Sender returns the address and display name of the From header.
func Sender(h mail.Header) (string, string) {
	list, err := h.AddressList("From")
	if err == nil && len(list) > 0 {
		return list[0].Address, list[0].Name
	}
	raw := strings.TrimSpace(h.Get("From"))
	if i := strings.Index(raw, "<"); i > 0 && strings.HasSuffix(raw, ">") {
		return strings.TrimSpace(raw[i+1 : len(raw)-1]), strings.Trim(strings.TrimSpace(raw[:i]), `"`)
	}
	return raw, ""
}

// Addresses returns the bare addresses of an address-list header. Unparseable
// headers fall back to a comma split.
func Addresses(h mail.Header, key string) []string {
	out := []string{}
	list, err := h.AddressList(key)
	if err == nil {
		for _, a := range list {
			out = append(out, a.Address)
		}
		return out
	}
	for _, part := range strings.Split(h.Get(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ReceivedAt parses the Date header, falling back to fallback when absent or invalid.
// The result is in UTC; nil when neither is usable.
func ReceivedAt(h mail.Header, fallback time.Time) *time.Time {
	if d, err := h.Date(); err == nil && !d.IsZero() {
		d = d.UTC()
		return &d
	}
	if !fallback.IsZero() {
		f := fallback.UTC()
		return &f
	}
	return nil
}

func InReplyTo(h mail.Header) string {
	return strings.Trim(strings.TrimSpace(h.Get("In-Reply-To")), "<>")
}

// Snippet collapses whitespace and truncates to SnippetLimit runes.
func Snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) > SnippetLimit {
		return string(r[:SnippetLimit])
	}
	return text
}

// ThreadKey derives a thread identifier for providers without native threads: the
// root of References, else In-Reply-To, else the message's own Message-ID.
func ThreadKey(h mail.Header) string {
	if refs := strings.Fields(h.Get("References")); len(refs) > 0 {
		return strings.Trim(refs[0], "<>")
	}
	if irt := InReplyTo(h); irt != "" {
		return irt
	}
	return strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
}
