// Package beacon is the client side of folio: it keeps a visitor's session
// id and reports page views, user actions and heartbeats to the server.
// Every network call is best effort; failures are logged and never
// returned to the host program.
package beacon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"folio/internal/visitors"
)

const (
	DefaultHeartbeatInterval  = 30 * time.Second
	DefaultNavigationDelay    = 100 * time.Millisecond
	DefaultTimeOnPageInterval = 30 * time.Second
	DefaultQueueLimit         = 1000
	DefaultRequestTimeout     = 5 * time.Second
	defaultActivityInterval   = 5 * time.Second
)

// Options configures a Client. Endpoint is the server's base URL. SiteURL
// is the public origin of the tracked site; page views without an explicit
// URL report SiteURL plus the page path, or no URL when SiteURL is empty.
type Options struct {
	Endpoint           string
	SiteURL            string
	Store              Store
	HTTPClient         *http.Client
	Logger             *slog.Logger
	UserAgent          string
	HeartbeatInterval  time.Duration
	NavigationDelay    time.Duration
	TimeOnPageInterval time.Duration
	QueueLimit         int
	// ActivityHeartbeatEvery throttles heartbeats triggered by interaction.
	ActivityHeartbeatEvery time.Duration
	Now                    func() time.Time
}

// PageViewExtra carries the optional page view fields a browser knows.
type PageViewExtra struct {
	URL          string
	Referrer     string
	ScreenSize   string
	ViewportSize string
	Language     string
	Timezone     string
}

// Client reports one visitor's activity.
type Client struct {
	opts     Options
	endpoint string
	http     *http.Client
	logger   *slog.Logger
	limiter  *rate.Limiter

	mu           sync.Mutex
	sessionID    string
	userID       string
	page         string
	lastActivity time.Time
	pending      []QueuedAction
	onlineUsers  int
	loaded       bool
	navTimer     *time.Timer

	monitorMu     sync.Mutex
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}

	// bgCtx is cancelled by Close and scopes every background goroutine
	// other than the monitor loop.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgMu     sync.Mutex
	bgWG     sync.WaitGroup
	closed   bool
}

// New builds a Client, filling unset options with defaults.
func New(opts Options) *Client {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.NavigationDelay <= 0 {
		opts.NavigationDelay = DefaultNavigationDelay
	}
	if opts.TimeOnPageInterval <= 0 {
		opts.TimeOnPageInterval = DefaultTimeOnPageInterval
	}
	if opts.QueueLimit <= 0 {
		opts.QueueLimit = DefaultQueueLimit
	}
	if opts.ActivityHeartbeatEvery <= 0 {
		opts.ActivityHeartbeatEvery = defaultActivityInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Client{
		opts:     opts,
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		http:     opts.HTTPClient,
		logger:   opts.Logger,
		limiter:  rate.NewLimiter(rate.Every(opts.ActivityHeartbeatEvery), 1),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
}

// spawn runs fn on a tracked goroutine bound to the client's lifetime.
// It reports false once the client is closed.
func (c *Client) spawn(fn func(ctx context.Context)) bool {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.closed {
		return false
	}
	c.bgWG.Add(1)
	go func() {
		defer c.bgWG.Done()
		fn(c.bgCtx)
	}()
	return true
}

// loadLocked hydrates in-memory state from the store once.
func (c *Client) loadLocked() {
	if c.loaded {
		return
	}
	c.loaded = true

	state, err := c.opts.Store.Load()
	if err != nil {
		c.logger.Warn("Beacon state unreadable, starting fresh", slog.Any("error", err))
		return
	}
	c.sessionID = state.SessionID
	c.userID = state.UserID
	c.lastActivity = state.LastActivity
	c.pending = state.Pending
}

// persistLocked writes in-memory state back to the store.
func (c *Client) persistLocked() {
	err := c.opts.Store.Save(State{
		SessionID:    c.sessionID,
		UserID:       c.userID,
		LastActivity: c.lastActivity,
		Pending:      c.pending,
	})
	if err != nil {
		c.logger.Warn("Failed to persist beacon state", slog.Any("error", err))
	}
}

// GetOrCreateSessionID returns the persisted session id, creating and
// persisting one on first use.
func (c *Client) GetOrCreateSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionLocked()
}

func (c *Client) sessionLocked() string {
	c.loadLocked()
	if c.sessionID == "" {
		c.sessionID = visitors.NewSessionID()
		c.persistLocked()
	}
	return c.sessionID
}

// SetUser attaches a user id to subsequent events. It does not change the
// session.
func (c *Client) SetUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	c.userID = strings.TrimSpace(userID)
	c.persistLocked()
}

// CurrentPage is the page of the last tracked page view.
func (c *Client) CurrentPage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// LastActivity is when the visitor last did something.
func (c *Client) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// OnlineUsers is the count echoed by the last successful heartbeat.
func (c *Client) OnlineUsers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onlineUsers
}

// identity returns session and user ids, touching activity when touch is set.
func (c *Client) identity(touch bool) (string, string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessionID := c.sessionLocked()
	if touch {
		c.lastActivity = c.opts.Now()
	}
	return sessionID, c.userID, c.lastActivity
}

// TrackPageView reports a page view now.
func (c *Client) TrackPageView(ctx context.Context, page string, extra PageViewExtra) {
	sessionID, userID, now := c.identity(true)

	c.mu.Lock()
	c.page = page
	c.mu.Unlock()

	body := map[string]any{
		"page":         page,
		"url":          extra.URL,
		"userAgent":    c.opts.UserAgent,
		"referrer":     extra.Referrer,
		"sessionId":    sessionID,
		"userId":       userID,
		"screenSize":   extra.ScreenSize,
		"viewportSize": extra.ViewportSize,
		"language":     extra.Language,
		"timezone":     extra.Timezone,
		"timestamp":    now,
	}
	if extra.URL == "" && c.opts.SiteURL != "" {
		body["url"] = strings.TrimRight(c.opts.SiteURL, "/") + page
	}

	if _, err := c.post(ctx, "/analytics", body); err != nil {
		c.logger.Debug("Page view not delivered", slog.String("page", page), slog.Any("error", err))
	}
}

// Navigate schedules a page view after the navigation delay, replacing any
// navigation still pending so rapid route changes report once.
func (c *Client) Navigate(page string, extra PageViewExtra) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.navTimer != nil {
		c.navTimer.Stop()
	}
	c.navTimer = time.AfterFunc(c.opts.NavigationDelay, func() {
		c.spawn(func(ctx context.Context) {
			c.TrackPageView(ctx, page, extra)
		})
	})
}

// TrackUserAction reports an action. Undeliverable actions are kept in a
// bounded local queue, dropping the oldest first. The queue is never
// replayed to the server.
func (c *Client) TrackUserAction(ctx context.Context, action string, data map[string]any) {
	sessionID, userID, now := c.identity(true)

	c.mu.Lock()
	page := c.page
	c.mu.Unlock()

	if data == nil {
		data = map[string]any{}
	}

	_, err := c.post(ctx, "/analytics/events", map[string]any{
		"action":    action,
		"page":      page,
		"sessionId": sessionID,
		"userId":    userID,
		"data":      data,
		"timestamp": now,
	})
	if err == nil {
		return
	}

	c.logger.Debug("User action not delivered, queueing", slog.String("action", action), slog.Any("error", err))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, QueuedAction{
		Action:    action,
		Page:      page,
		SessionID: sessionID,
		UserID:    userID,
		Data:      data,
		Timestamp: now,
	})
	if over := len(c.pending) - c.opts.QueueLimit; over > 0 {
		c.pending = append([]QueuedAction(nil), c.pending[over:]...)
	}
	c.persistLocked()
}

// PendingActions returns a copy of the local fallback queue.
func (c *Client) PendingActions() []QueuedAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	return append([]QueuedAction(nil), c.pending...)
}

// Heartbeat marks the visitor active and reports it.
func (c *Client) Heartbeat(ctx context.Context) {
	sessionID, userID, last := c.identity(true)

	resp, err := c.post(ctx, "/analytics/heartbeat", map[string]any{
		"sessionId":    sessionID,
		"userId":       userID,
		"userAgent":    c.opts.UserAgent,
		"lastActivity": last,
	})
	if err != nil {
		c.logger.Debug("Heartbeat not delivered", slog.Any("error", err))
		return
	}

	var echo struct {
		OnlineUsers int `json:"onlineUsers"`
	}
	if err := json.Unmarshal(resp, &echo); err == nil {
		c.mu.Lock()
		c.onlineUsers = echo.OnlineUsers
		c.mu.Unlock()
	}
}

// StartOnlineMonitoring sends a heartbeat now and then every heartbeat
// interval until StopOnlineMonitoring. Calling it twice is a no-op.
func (c *Client) StartOnlineMonitoring() {
	c.monitorMu.Lock()
	defer c.monitorMu.Unlock()
	if c.monitorCancel != nil || c.isClosed() {
		return
	}

	ctx, cancel := context.WithCancel(c.bgCtx)
	done := make(chan struct{})
	c.monitorCancel = cancel
	c.monitorDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.opts.HeartbeatInterval)
		defer ticker.Stop()

		c.Heartbeat(ctx)
		for {
			select {
			case <-ticker.C:
				c.Heartbeat(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopOnlineMonitoring stops the heartbeat loop and waits for it to exit.
// Other background work, such as time-on-page reporting, keeps running.
func (c *Client) StopOnlineMonitoring() {
	c.monitorMu.Lock()
	cancel, done := c.monitorCancel, c.monitorDone
	c.monitorCancel, c.monitorDone = nil, nil
	c.monitorMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Client) monitoring() bool {
	c.monitorMu.Lock()
	defer c.monitorMu.Unlock()
	return c.monitorCancel != nil
}

// NotifyActivity records an interaction (mouse move, key press, scroll,
// touch). While monitoring, it also sends a throttled heartbeat.
func (c *Client) NotifyActivity() {
	c.identity(true)
	if c.monitoring() && c.limiter.Allow() {
		c.asyncHeartbeat()
	}
}

// NotifyVisible reports that the page became visible again.
func (c *Client) NotifyVisible() {
	if c.monitoring() {
		c.asyncHeartbeat()
	}
}

func (c *Client) asyncHeartbeat() {
	c.spawn(c.Heartbeat)
}

func (c *Client) isClosed() bool {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	return c.closed
}

// Close stops monitoring, pending navigation and time-on-page reporting,
// then waits for in-flight requests to finish. It is safe to call twice.
func (c *Client) Close() {
	c.bgMu.Lock()
	c.closed = true
	c.bgMu.Unlock()
	c.bgCancel()

	c.mu.Lock()
	if c.navTimer != nil {
		c.navTimer.Stop()
	}
	c.mu.Unlock()

	c.StopOnlineMonitoring()
	c.bgWG.Wait()
}

// post sends body as JSON and returns the response body. Any status
// outside 2xx is an error.
func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return respBody, nil
}
