package beacon

import (
	"context"
	"sync"
	"time"
)

// ScrollTracker reports scroll depth in 25% milestones, each once per page.
type ScrollTracker struct {
	client  *Client
	mu      sync.Mutex
	reached map[int]bool
}

// NewScrollTracker starts milestone tracking for the current page.
func (c *Client) NewScrollTracker() *ScrollTracker {
	return &ScrollTracker{client: c, reached: make(map[int]bool)}
}

// Update reports every milestone at or below percent not yet reported.
func (s *ScrollTracker) Update(ctx context.Context, percent float64) {
	s.mu.Lock()
	var crossed []int
	for milestone := 25; milestone <= 100; milestone += 25 {
		if percent >= float64(milestone) && !s.reached[milestone] {
			s.reached[milestone] = true
			crossed = append(crossed, milestone)
		}
	}
	s.mu.Unlock()

	for _, milestone := range crossed {
		s.client.TrackUserAction(ctx, "scroll_depth", map[string]any{"percent": milestone})
	}
}

// StartTimeOnPage reports a time_on_page action every interval with the
// seconds spent so far. The returned func stops it; Close stops it too.
func (c *Client) StartTimeOnPage() (stop func()) {
	stopCh := make(chan struct{})
	interval := c.opts.TimeOnPageInterval

	c.spawn(func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		ticks := 0
		for {
			select {
			case <-ticker.C:
				ticks++
				c.TrackUserAction(ctx, "time_on_page", map[string]any{
					"seconds": int((time.Duration(ticks) * interval).Seconds()),
				})
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	})

	var once sync.Once
	return func() { once.Do(func() { close(stopCh) }) }
}
