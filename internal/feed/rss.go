package feed

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	rssFetchTimeout = 30 * time.Second
	rssUserAgent    = "Mozilla/5.0 (compatible; rulesift/1.0; +https://github.com/ppiankov/rulesift)"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s{3,}`)
)

// RSSSource fetches posts from RSS/Atom feeds.
type RSSSource struct {
	client *http.Client
}

// NewRSS creates an RSS/Atom source. A nil client gets a default one
// with a fetch timeout.
func NewRSS(client *http.Client) *RSSSource {
	if client == nil {
		client = &http.Client{
			Timeout:   rssFetchTimeout,
			Transport: &rssTransport{base: http.DefaultTransport},
		}
	}
	return &RSSSource{client: client}
}

func (rs *RSSSource) Fetch(ctx context.Context, feedURL string, since time.Time) ([]Post, error) {
	ctx, cancel := context.WithTimeout(ctx, rssFetchTimeout)
	defer cancel()

	fp := gofeed.NewParser()
	fp.Client = rs.client
	parsed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", feedURL, err)
	}

	return postsFromFeed(parsed, since), nil
}

// rssTransport injects a User-Agent header into every request.
type rssTransport struct {
	base http.RoundTripper
}

func (t *rssTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", rssUserAgent)
	return t.base.RoundTrip(req)
}

func postsFromFeed(parsed *gofeed.Feed, since time.Time) []Post {
	var posts []Post
	for _, item := range parsed.Items {
		published := itemPublishedTime(item)
		if published.IsZero() || !published.After(since) {
			continue
		}

		posts = append(posts, Post{
			Title:     strings.TrimSpace(item.Title),
			Brief:     itemBrief(item),
			Tags:      item.Categories,
			Author:    itemAuthor(item),
			URL:       item.Link,
			Published: published,
		})
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Published.Before(posts[j].Published)
	})

	return posts
}

func itemPublishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func itemBrief(item *gofeed.Item) string {
	raw := item.Description
	if raw == "" {
		raw = item.Content
	}
	return stripHTML(raw)
}

func itemAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	if item.Author != nil {
		return item.Author.Name
	}
	return ""
}

func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
