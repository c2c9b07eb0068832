package loader

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

var emlHeaders = []string{"Subject", "From", "To", "Date"}

// extractEML renders the main headers followed by the text parts of the
// message. HTML parts are reduced to their visible text.
func extractEML(_ context.Context, data []byte) (string, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse email: %w", err)
	}

	var sb strings.Builder
	dec := new(mime.WordDecoder)
	for _, h := range emlHeaders {
		v := msg.Header.Get(h)
		if v == "" {
			continue
		}
		if decoded, err := dec.DecodeHeader(v); err == nil {
			v = decoded
		}
		sb.WriteString(h + ": " + v + "\n")
	}
	sb.WriteByte('\n')

	body, err := emailBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return "", err
	}
	sb.WriteString(body)
	return sb.String(), nil
}

func emailBody(contentType, encoding string, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || contentType == "" {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		var plain, html []string
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return "", fmt.Errorf("read email part: %w", err)
			}
			text, err := emailBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			pt, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
			if pt == "text/html" {
				html = append(html, text)
			} else {
				plain = append(plain, text)
			}
		}
		// prefer the plain alternative when both exist
		if len(plain) > 0 {
			return strings.Join(plain, "\n\n"), nil
		}
		return strings.Join(html, "\n\n"), nil
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return "", nil
	}

	decoded, err := io.ReadAll(transferDecoder(encoding, r))
	if err != nil {
		return "", fmt.Errorf("decode email body: %w", err)
	}
	if mediaType == "text/html" {
		return htmlText(bytes.NewReader(decoded))
	}
	return string(decoded), nil
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}
