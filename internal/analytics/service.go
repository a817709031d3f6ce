package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"gorm.io/gorm"

	"folio/internal/config"
	"folio/internal/events"
	"folio/internal/metrics"
	"folio/internal/pkg/async"
	"folio/internal/pkg/referrers"
	"folio/internal/presence"
	"folio/internal/settings"
	"folio/internal/timeframe"
)

// ErrCircuitOpen is returned while the store breaker rejects calls.
var ErrCircuitOpen = errors.New("analytics: store circuit open")

const breakerName = "store"

// Options tunes a Service.
type Options struct {
	OnlineWindow            time.Duration
	PresenceSource          presence.Source
	Location                *time.Location
	TimeProvider            timeframe.TimeProvider
	BreakerFailureThreshold uint32
	BreakerCooldown         time.Duration
	Workers                 int
}

// OptionsFromConfig maps application configuration onto service options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OnlineWindow:            cfg.OnlineWindow(),
		PresenceSource:          presence.ParseSource(cfg.PresenceSource),
		Location:                timeframe.ParseLocation(cfg.Timezone),
		TimeProvider:            &timeframe.DefaultTimeProvider{},
		BreakerFailureThreshold: uint32(cfg.BreakerFailureThreshold),
		BreakerCooldown:         cfg.BreakerCooldown(),
		Workers:                 2,
	}
}

func (o Options) withDefaults() Options {
	if o.OnlineWindow <= 0 {
		o.OnlineWindow = 5 * time.Minute
	}
	if o.PresenceSource == "" {
		o.PresenceSource = presence.SourceSessions
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.TimeProvider == nil {
		o.TimeProvider = &timeframe.DefaultTimeProvider{}
	}
	if o.BreakerFailureThreshold == 0 {
		o.BreakerFailureThreshold = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	if o.Workers < 1 {
		o.Workers = 2
	}
	return o
}

// Service answers analytics reads and records ingestion writes. Every store
// call goes through one circuit breaker so a failing database is not
// hammered by each request.
type Service struct {
	db      events.Connector
	logger  *slog.Logger
	opts    Options
	breaker *gobreaker.CircuitBreaker[any]
	pool    *async.Pool
}

// NewService builds a Service over db.
func NewService(db events.Connector, logger *slog.Logger, opts Options) *Service {
	opts = opts.withDefaults()
	threshold := opts.BreakerFailureThreshold

	metrics.BreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Store circuit breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
		// Rejected input is the caller's fault, not the store's.
		IsSuccessful: func(err error) bool {
			return err == nil || isCallerError(err)
		},
	})

	return &Service{
		db:      db,
		logger:  logger,
		opts:    opts,
		breaker: breaker,
		pool:    async.NewPool(opts.Workers),
	}
}

// BreakerState reports the store breaker state ("closed", "half-open", "open").
func (s *Service) BreakerState() string {
	return s.breaker.State().String()
}

// OnlineWindow is the configured presence window.
func (s *Service) OnlineWindow() time.Duration {
	return s.opts.OnlineWindow
}

func (s *Service) now() time.Time {
	return s.opts.TimeProvider.Now(s.opts.Location)
}

// conn returns the live connection or ErrStoreUnavailable.
func (s *Service) conn() (*gorm.DB, error) {
	if s.db == nil {
		return nil, ErrStoreUnavailable
	}
	db := s.db.GetConnection()
	if db == nil {
		return nil, ErrStoreUnavailable
	}
	return db, nil
}

// guard runs fn behind the breaker.
func (s *Service) guard(operation string, fn func() (any, error)) (any, error) {
	result, err := s.breaker.Execute(fn)
	if err != nil {
		if isCallerError(err) {
			return nil, err
		}
		metrics.RecordStoreFailure(operation)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	return result, nil
}

type realTimeCounts struct {
	online int
	today  int
	total  int
}

// RealTime returns live counts. It never fails: when the store cannot
// answer, DefaultRealTimeStats is returned and a warning logged.
func (s *Service) RealTime(ctx context.Context) RealTimeStats {
	now := s.now()

	db, err := s.conn()
	if err != nil {
		s.logger.Warn("Real-time stats unavailable, returning defaults", slog.Any("error", err))
		return DefaultRealTimeStats(now)
	}

	result, err := s.guard("realtime", func() (any, error) {
		tx := db.WithContext(ctx)

		activity, err := presence.ActivitySince(tx, s.opts.PresenceSource, now.Add(-s.opts.OnlineWindow))
		if err != nil {
			return nil, fmt.Errorf("online sessions: %w", err)
		}
		todayIDs, err := events.SessionIDsSince(tx, timeframe.StartOfDay(now, s.opts.Location))
		if err != nil {
			return nil, fmt.Errorf("today sessions: %w", err)
		}
		total, err := events.CountDistinctSessions(tx)
		if err != nil {
			return nil, fmt.Errorf("total sessions: %w", err)
		}

		return realTimeCounts{
			online: CountOnline(activity, now, s.opts.OnlineWindow),
			today:  DistinctCount(todayIDs),
			total:  int(total),
		}, nil
	})
	if err != nil {
		s.logger.Warn("Real-time stats query failed, returning defaults", slog.Any("error", err))
		return DefaultRealTimeStats(now)
	}

	counts := result.(realTimeCounts)
	metrics.OnlineUsers.Set(float64(counts.online))

	return RealTimeStats{
		OnlineUsers: counts.online,
		TodayViews:  counts.today,
		TotalViews:  counts.total,
		Timestamp:   now,
	}
}

// OnlineCount is the number of sessions online now, 0 when unknown.
func (s *Service) OnlineCount(ctx context.Context) int {
	now := s.now()
	db, err := s.conn()
	if err != nil {
		return 0
	}

	result, err := s.guard("online", func() (any, error) {
		return presence.ActivitySince(db.WithContext(ctx), s.opts.PresenceSource, now.Add(-s.opts.OnlineWindow))
	})
	if err != nil {
		s.logger.Warn("Online count unavailable", slog.Any("error", err))
		return 0
	}

	online := CountOnline(result.([]presence.Activity), now, s.opts.OnlineWindow)
	metrics.OnlineUsers.Set(float64(online))
	return online
}

// Historical summarizes the trailing days. The totals and the daily series
// are computed independently; whichever succeeds is kept.
func (s *Service) Historical(ctx context.Context, days int) HistoricalStats {
	now := s.now()
	loc := s.opts.Location
	stats := EmptyHistoricalStats(days, now, loc)
	if days < 1 {
		return stats
	}

	db, err := s.conn()
	if err != nil {
		s.logger.Warn("Historical stats unavailable, returning empty stats", slog.Any("error", err))
		return stats
	}

	trailing := timeframe.TrailingDays(now, days, loc)
	windowStart := timeframe.WindowStart(now, days)

	tasks := []async.Task{
		{
			Name: "window",
			Execute: func(ctx context.Context) (interface{}, error) {
				return s.guard("history_window", func() (any, error) {
					return events.PageViewsSince(db.WithContext(ctx), windowStart)
				})
			},
		},
		{
			Name: "daily",
			Execute: func(ctx context.Context) (interface{}, error) {
				return s.guard("history_daily", func() (any, error) {
					return events.PageViewsBetween(db.WithContext(ctx), trailing[0].Start, trailing[len(trailing)-1].End)
				})
			},
		},
	}

	results := s.pool.Execute(ctx, tasks)

	if r, ok := results["window"]; ok && r.Err == nil {
		summary := Summarize(r.Data.([]events.PageView), days)
		stats.TotalViews = summary.TotalViews
		stats.UniqueUsers = summary.UniqueUsers
		stats.UniqueSessions = summary.UniqueSessions
		stats.TopPages = summary.TopPages
	} else {
		s.logger.Warn("Historical totals failed", slog.Int("days", days), slog.Any("error", resultErr(r, ok)))
	}

	if r, ok := results["daily"]; ok && r.Err == nil {
		stats.DailyStats = DailyStats(r.Data.([]events.PageView), days, now, loc)
	} else {
		s.logger.Warn("Historical daily breakdown failed", slog.Int("days", days), slog.Any("error", resultErr(r, ok)))
	}

	return stats
}

func resultErr(r async.Result, ok bool) error {
	if !ok {
		return context.Canceled
	}
	return r.Err
}

type pageStatsRows struct {
	rows     []events.PageView
	siteHost string
}

// PageStats breaks down the trailing days for one page, or the whole site
// when page is empty.
func (s *Service) PageStats(ctx context.Context, page string, days int) PageStats {
	page = strings.TrimSpace(page)
	stats := EmptyPageStats(page, days)

	db, err := s.conn()
	if err != nil {
		s.logger.Warn("Page stats unavailable, returning empty stats", slog.Any("error", err))
		return stats
	}

	from := timeframe.WindowStart(s.now(), days)
	result, err := s.guard("page_stats", func() (any, error) {
		tx := db.WithContext(ctx)
		var (
			rows []events.PageView
			err  error
		)
		if page == "" {
			rows, err = events.PageViewsSince(tx, from)
		} else {
			rows, err = events.PageViewsForPage(tx, page, from)
		}
		if err != nil {
			return nil, err
		}
		return pageStatsRows{rows: rows, siteHost: settings.GetSiteHost(tx)}, nil
	})
	if err != nil {
		s.logger.Warn("Page stats query failed", slog.String("page", page), slog.Any("error", err))
		return stats
	}

	loaded := result.(pageStatsRows)
	rows, siteHost := loaded.rows, loaded.siteHost

	stats.TotalViews = len(rows)
	stats.UniqueSessions = DistinctSessions(rows)
	stats.UniqueUsers = DistinctUsers(rows)
	stats.UniqueVisitors = DistinctVisitors(rows)
	stats.TopPages = RankPages(TopPages(rows), TopPagesLimit)
	stats.TopCountries = WithCountryNames(RankBy(rows, TopPagesLimit, UnknownCountry, func(pv events.PageView) string {
		return pv.Country
	}))
	stats.TopReferrers = RankBy(rows, TopPagesLimit, referrers.Direct, func(pv events.PageView) string {
		return referrers.FromURL(pv.Referrer, siteHost)
	})
	return stats
}

// RecordPageView stores a page view and refreshes its session. A session
// refresh failure is logged; the page view itself is already stored.
func (s *Service) RecordPageView(ctx context.Context, input *events.PageViewInput) (*events.PageView, error) {
	const kind = "page_view"

	db, err := s.conn()
	if err != nil {
		metrics.RecordIngest(kind, metrics.OutcomeSkipped)
		return nil, err
	}

	result, err := s.guard("record_page_view", func() (any, error) {
		return events.RecordPageView(s.db, s.logger, input)
	})
	if err != nil {
		metrics.RecordIngest(kind, outcomeFor(err))
		return nil, err
	}
	pageView := result.(*events.PageView)

	err = presence.TouchSession(db.WithContext(ctx), s.logger, presence.SessionInput{
		SessionID: pageView.SessionID,
		UserID:    pageView.UserID,
		UserAgent: pageView.UserAgent,
		PageView:  true,
		At:        s.now(),
	})
	if err != nil {
		s.logger.Warn("Failed to refresh session after page view",
			slog.String("session_id", pageView.SessionID),
			slog.Any("error", err))
	}

	metrics.RecordIngest(kind, metrics.OutcomeStored)
	return pageView, nil
}

// RecordUserAction stores a user action.
func (s *Service) RecordUserAction(ctx context.Context, input *events.UserActionInput) (*events.UserAction, error) {
	const kind = "user_action"

	if _, err := s.conn(); err != nil {
		metrics.RecordIngest(kind, metrics.OutcomeSkipped)
		return nil, err
	}

	result, err := s.guard("record_user_action", func() (any, error) {
		return events.RecordUserAction(s.db, s.logger, input)
	})
	if err != nil {
		metrics.RecordIngest(kind, outcomeFor(err))
		return nil, err
	}

	metrics.RecordIngest(kind, metrics.OutcomeStored)
	return result.(*events.UserAction), nil
}

// Heartbeat marks a session active at server time and appends it to the
// heartbeat log.
func (s *Service) Heartbeat(ctx context.Context, input presence.HeartbeatInput) error {
	const kind = "heartbeat"

	db, err := s.conn()
	if err != nil {
		metrics.RecordIngest(kind, metrics.OutcomeSkipped)
		return err
	}

	if input.At.IsZero() {
		input.At = s.now()
	}

	_, err = s.guard("heartbeat", func() (any, error) {
		return nil, presence.RecordHeartbeat(db.WithContext(ctx), s.logger, input)
	})
	if err != nil {
		metrics.RecordIngest(kind, outcomeFor(err))
		return err
	}

	metrics.RecordIngest(kind, metrics.OutcomeStored)
	return nil
}

func isCallerError(err error) bool {
	return errors.Is(err, events.ErrInvalidInput) ||
		errors.Is(err, events.ErrExcluded) ||
		errors.Is(err, presence.ErrInvalidSession)
}

// IsInvalidInput reports whether err was caused by a malformed request.
func IsInvalidInput(err error) bool {
	return errors.Is(err, events.ErrInvalidInput) || errors.Is(err, presence.ErrInvalidSession)
}

func outcomeFor(err error) string {
	if errors.Is(err, events.ErrExcluded) || errors.Is(err, ErrStoreUnavailable) {
		return metrics.OutcomeSkipped
	}
	return metrics.OutcomeFailed
}
