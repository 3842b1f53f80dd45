package feed

import (
	"context"
	"time"
)

// Post represents a single entry from a syndication feed.
// Posts are immutable once constructed.
type Post struct {
	Title     string    // entry title
	Brief     string    // short description, may be empty
	Tags      []string  // entry categories, may be empty
	Author    string    // entry author
	URL       string    // link to the original entry
	Published time.Time // publication timestamp
}

// Source fetches posts from one syndication feed.
type Source interface {
	// Fetch returns posts from url published strictly after since,
	// ordered ascending by Published.
	Fetch(ctx context.Context, url string, since time.Time) ([]Post, error)
}
