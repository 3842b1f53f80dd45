package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/rulesift/internal/feed"
)

// Multi fans one notification out to every sub-notifier concurrently.
// It completes only after all sub-notifications have completed or
// failed; one target's failure never suppresses the others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, post feed.Post, reason string) error {
	errs := make([]error, len(m))

	var wg sync.WaitGroup
	for i, n := range m {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			errs[i] = n.Notify(ctx, post, reason)
		}(i, n)
	}
	wg.Wait()

	return errors.Join(errs...)
}
