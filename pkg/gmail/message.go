package gmail

import (
	"encoding/base64"
	"strings"
	"time"

	emaildomain "mailcake-backend/internal/email/domain"
	"mailcake-backend/pkg/mailparse"

	"google.golang.org/api/gmail/v1"
)

func convertMessage(msg *gmail.Message) *emaildomain.MessageDetail {
	detail := &emaildomain.MessageDetail{
		NativeID:  msg.Id,
		ThreadID:  msg.ThreadId,
		Labels:    append([]string{}, msg.LabelIds...),
		IsRead:    !hasLabel(msg.LabelIds, "UNREAD"),
		IsStarred: hasLabel(msg.LabelIds, "STARRED"),
		Snippet:   mailparse.Snippet(msg.Snippet),
	}
	if msg.Payload == nil {
		detail.Subject = mailparse.NoSubject
		detail.Recipients, detail.Cc = []string{}, []string{}
		return detail
	}

	pairs := make([][2]string, 0, len(msg.Payload.Headers))
	for _, h := range msg.Payload.Headers {
		pairs = append(pairs, [2]string{h.Name, h.Value})
	}
	header := mailparse.HeaderFromPairs(pairs)

	detail.Subject = mailparse.Subject(header)
	detail.Sender, detail.SenderName = mailparse.Sender(header)
	detail.Recipients = mailparse.Addresses(header, "To")
	detail.Cc = mailparse.Addresses(header, "Cc")
	detail.InReplyTo = mailparse.InReplyTo(header)

	var internal time.Time
	if msg.InternalDate > 0 {
		internal = time.UnixMilli(msg.InternalDate)
	}
	detail.ReceivedAt = mailparse.ReceivedAt(header, internal)

	detail.BodyPlain, detail.BodyHTML = getEmailBody(msg.Payload)
	detail.HasAttachments = hasAttachments(msg.Payload)
	if detail.Snippet == "" {
		detail.Snippet = mailparse.Snippet(detail.BodyPlain)
	}
	return detail
}

// getEmailBody returns the first text/plain and text/html bodies found in the part tree.
func getEmailBody(payload *gmail.MessagePart) (string, string) {
	var plainBody, htmlBody string

	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part.Body != nil && part.Body.Data != "" && part.Filename == "" {
			if data, ok := decodeData(part.Body.Data); ok {
				switch {
				case strings.HasPrefix(part.MimeType, "text/html") && htmlBody == "":
					htmlBody = data
				case strings.HasPrefix(part.MimeType, "text/plain") && plainBody == "":
					plainBody = data
				}
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)

	return plainBody, htmlBody
}

func hasAttachments(part *gmail.MessagePart) bool {
	if part.Filename != "" {
		return true
	}
	for _, child := range part.Parts {
		if hasAttachments(child) {
			return true
		}
	}
	return false
}

func decodeData(data string) (string, bool) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return "", false
		}
	}
	return string(b), true
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
