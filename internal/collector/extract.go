package collector

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/analytica/internal/social"
)

// ErrMissingField marks a card that rendered without one of the required parts.
var ErrMissingField = errors.New("missing field")

// Extract parses one card's outer HTML into a Post.
func Extract(markup string) (social.Post, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return social.Post{}, fmt.Errorf("parse card: %w", err)
	}

	var handle string
	doc.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if len(text) > 1 && strings.HasPrefix(text, "@") && !strings.ContainsAny(text, " \n") {
			handle = text
			return false
		}
		return true
	})
	if handle == "" {
		return social.Post{}, fmt.Errorf("%w: handle", ErrMissingField)
	}

	textNode := doc.Find(`div[data-testid="tweetText"]`).First()
	if textNode.Length() == 0 {
		return social.Post{}, fmt.Errorf("%w: text", ErrMissingField)
	}
	text := strings.TrimSpace(textNode.Text())

	timestamp, ok := doc.Find("time[datetime]").First().Attr("datetime")
	if !ok || strings.TrimSpace(timestamp) == "" {
		return social.Post{}, fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	if _, err := time.Parse(time.RFC3339, timestamp); err != nil {
		return social.Post{}, fmt.Errorf("timestamp %q: %w", timestamp, err)
	}

	id := statusID(doc)
	if id == "" {
		return social.Post{}, fmt.Errorf("%w: platform id", ErrMissingField)
	}

	return social.Post{
		PlatformID: id,
		Handle:     handle,
		Text:       text,
		Timestamp:  timestamp,
	}, nil
}

// statusID prefers the permalink wrapping the timestamp, then any status link.
func statusID(doc *goquery.Document) string {
	links := doc.Find(`a[href*="/status/"]`)
	permalink := links.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("time").Length() > 0
	})
	if permalink.Length() > 0 {
		links = permalink
	}
	href, ok := links.First().Attr("href")
	if !ok {
		return ""
	}
	_, rest, found := strings.Cut(href, "/status/")
	if !found {
		return ""
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}
