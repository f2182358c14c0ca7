package connector

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText renders an answer for text-only channels. Answers written as
// HTML keep their line structure; everything else is returned trimmed.
func PlainText(answer string) string {
	if !strings.Contains(answer, "<") {
		return strings.TrimSpace(answer)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(answer))
	if err != nil {
		return strings.TrimSpace(answer)
	}

	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, h1, h2, h3, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href != "" && strings.TrimSpace(s.Text()) != href {
			s.AppendHtml(" (" + html.EscapeString(href) + ")")
		}
	})

	lines := strings.Split(doc.Text(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// PlainMessages applies PlainText to every message and drops empty ones.
func PlainMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if text := PlainText(m.Text); text != "" {
			out = append(out, Message{Text: text})
		}
	}
	return out
}
