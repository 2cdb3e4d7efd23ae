package mailparse

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// Body is the decoded content of a MIME message.
type Body struct {
	Header         mail.Header
	Plain          string
	HTML           string
	HasAttachments bool
}

// ReadBody walks a raw RFC 5322 message and keeps the first text/plain and text/html parts.
func ReadBody(r io.Reader) (*Body, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("create mail reader: %w", err)
	}
	defer mr.Close()

	body := &Body{Header: mr.Header}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return body, fmt.Errorf("read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			if ct == "" {
				ct = "text/plain"
			}
			if !strings.HasPrefix(ct, "text/") {
				continue
			}
			b, err := io.ReadAll(part.Body)
			if err != nil {
				return body, fmt.Errorf("read %s part: %w", ct, err)
			}
			switch {
			case ct == "text/html" && body.HTML == "":
				body.HTML = string(b)
			case ct == "text/plain" && body.Plain == "":
				body.Plain = string(b)
			}
		case *mail.AttachmentHeader:
			body.HasAttachments = true
		}
	}
	return body, nil
}
