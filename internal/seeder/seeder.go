package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/goccy/go-json"

	"folio/internal/events"
	"folio/internal/presence"
	"folio/internal/visitors"
)

// Seeder generates synthetic visitor traffic for development.
type Seeder struct {
	DBManager events.Connector
	Logger    *slog.Logger
	Sessions  int
	Days      int
	Host      string

	rng *rand.Rand
	now func() time.Time
}

// Result counts what a run created.
type Result struct {
	Sessions    int
	PageViews   int
	UserActions int
	Heartbeats  int
}

// NewSeeder creates a new seeder instance. seed makes runs reproducible.
func NewSeeder(dbManager events.Connector, logger *slog.Logger, sessions, days int, seed uint64) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if days < 1 {
		days = 1
	}
	return &Seeder{
		DBManager: dbManager,
		Logger:    logger,
		Sessions:  sessions,
		Days:      days,
		Host:      "folio.dev",
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:       time.Now,
	}
}

// Portfolio visits usually start on the home page or a shared blog post.
var journeyTemplates = [][]string{
	{"/", "/projects", "/projects/folio"},
	{"/", "/blog", "/blog/go-generics"},
	{"/blog/go-generics"},
	{"/blog/sqlite-wal", "/blog", "/about"},
	{"/", "/resume"},
	{"/", "/skills", "/resume", "/contact"},
	{"/projects/folio", "/projects", "/"},
	{"/", "/about", "/contact"},
	{"/blog", "/blog/sqlite-wal"},
}

// Run writes Sessions synthetic visits spread over the trailing Days.
// The most recent few sessions land inside the online window.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result

	db := s.DBManager.GetConnection()
	if db == nil {
		return res, fmt.Errorf("seeder: database unavailable")
	}

	s.Logger.Info("Starting database seeding...",
		slog.Int("sessions", s.Sessions),
		slog.Int("days", s.Days))

	ipPool := s.generateIPPool(50)
	userAgents := getUserAgents()
	referrers := getReferrers()
	now := s.now()
	window := time.Duration(s.Days)*24*time.Hour - time.Hour

	for i := 0; i < s.Sessions; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sessionID := visitors.NewSessionID()
		userID := ""
		if s.rng.Float64() < 0.1 {
			userID = fmt.Sprintf("user-%d", s.rng.IntN(20)+1)
		}
		journey := journeyTemplates[s.rng.IntN(len(journeyTemplates))]
		ip := ipPool[s.rng.IntN(len(ipPool))]
		userAgent := userAgents[s.rng.IntN(len(userAgents))]
		referrer := referrers[s.rng.IntN(len(referrers))]

		var visitStart time.Time
		if i < 3 {
			visitStart = now.Add(-time.Duration(s.rng.IntN(60)+len(journey)*30) * time.Second)
		} else {
			visitStart = now.Add(-time.Duration(s.rng.Int64N(int64(window))))
		}

		at := visitStart
		for idx, page := range journey {
			if idx > 0 {
				at = at.Add(time.Duration(s.rng.IntN(50)+10) * time.Second)
			}
			if at.After(now) {
				at = now
			}

			_, err := events.RecordPageView(s.DBManager, s.Logger, &events.PageViewInput{
				URL:          fmt.Sprintf("https://%s%s", s.Host, page),
				UserAgent:    userAgent,
				Referrer:     referrer,
				SessionID:    sessionID,
				UserID:       userID,
				ScreenSize:   "1920x1080",
				ViewportSize: "1440x900",
				Language:     "en-US",
				IPAddress:    ip,
				Timestamp:    at,
			})
			if err != nil {
				s.Logger.Error("Failed to record page view during seeding", slog.Any("error", err))
				continue
			}
			res.PageViews++
			referrer = "https://" + s.Host + page

			if err := presence.TouchSession(db, s.Logger, presence.SessionInput{
				SessionID: sessionID,
				UserID:    userID,
				UserAgent: userAgent,
				PageView:  true,
				At:        at,
			}); err != nil {
				s.Logger.Error("Failed to touch session during seeding", slog.Any("error", err))
			}

			res.UserActions += s.seedActions(sessionID, userID, page, at)
		}

		if err := presence.RecordHeartbeat(db, s.Logger, presence.HeartbeatInput{
			SessionID:    sessionID,
			UserID:       userID,
			UserAgent:    userAgent,
			LastActivity: at,
			At:           at,
		}); err == nil {
			res.Heartbeats++
		}
		res.Sessions++
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("sessions", res.Sessions),
		slog.Int("page_views", res.PageViews),
		slog.Int("user_actions", res.UserActions),
		slog.Duration("elapsed", time.Since(start)))
	return res, nil
}

// seedActions records the scroll and click actions a reader might produce on page.
func (s *Seeder) seedActions(sessionID, userID, page string, at time.Time) int {
	created := 0
	record := func(action string, data map[string]any, offset time.Duration) {
		payload, _ := json.Marshal(data)
		_, err := events.RecordUserAction(s.DBManager, s.Logger, &events.UserActionInput{
			Action:    action,
			Page:      page,
			SessionID: sessionID,
			UserID:    userID,
			Data:      payload,
			Timestamp: at.Add(offset),
		})
		if err == nil {
			created++
		}
	}

	depth := 25 * s.rng.IntN(5)
	for milestone := 25; milestone <= depth; milestone += 25 {
		record("scroll_depth", map[string]any{"percent": milestone}, time.Duration(milestone/5)*time.Second)
	}
	if s.rng.Float64() < 0.3 {
		record("click", map[string]any{"element": "a", "text": "GitHub"}, 8*time.Second)
	}
	return created
}

func (s *Seeder) generateIPPool(count int) []string {
	seen := make(map[string]bool)
	var ips []string
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", s.rng.IntN(223)+1, s.rng.IntN(256), s.rng.IntN(256), s.rng.IntN(255)+1)
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

// getUserAgents returns a list of common user agent strings
func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
	}
}

// getReferrers returns the places developers arrive from
func getReferrers() []string {
	return []string{
		"", // Direct visit
		"",
		"https://www.google.com/",
		"https://duckduckgo.com/",
		"https://news.ycombinator.com/item?id=40000000",
		"https://www.reddit.com/r/golang/",
		"https://github.com/",
		"https://www.linkedin.com/",
		"https://dev.to/",
	}
}
