package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

func extractHTML(_ context.Context, data []byte) (string, error) {
	return htmlText(bytes.NewReader(data))
}

// htmlText returns the title and visible body text of an HTML document.
func htmlText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, head").Remove()

	// block elements end a line so paragraphs survive
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, br").Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml("\n")
	})

	var sb strings.Builder
	if title != "" {
		sb.WriteString(title)
		sb.WriteString("\n\n")
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		sb.WriteString(doc.Text())
	} else {
		sb.WriteString(body.Text())
	}
	return sb.String(), nil
}
