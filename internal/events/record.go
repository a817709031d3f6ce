package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"folio/internal/config"
	"folio/internal/pkg/geoip"
	"folio/internal/settings"
	"folio/internal/visitors"
)

// PageViewInput defines the input required to record a page view.
type PageViewInput struct {
	Page         string
	URL          string
	UserAgent    string
	Referrer     string
	SessionID    string
	UserID       string
	ScreenSize   string
	ViewportSize string
	Language     string
	Timezone     string
	IPAddress    string
	Timestamp    time.Time
}

// UserActionInput defines the input required to record a user action.
type UserActionInput struct {
	Action    string
	Page      string
	SessionID string
	UserID    string
	Data      json.RawMessage
	IPAddress string
	Timestamp time.Time
}

// urlData holds parsed URL components
type urlData struct {
	hostname string
	pathname string
}

// Connector is the part of cartridge.DBManager the event store needs.
type Connector interface {
	GetConnection() *gorm.DB
}

// RecordPageView stores a page view. Events from excluded IPs are skipped
// with ErrExcluded.
func RecordPageView(dbManager Connector, logger *slog.Logger, input *PageViewInput) (*PageView, error) {
	db := dbManager.GetConnection()
	if db == nil {
		return nil, gorm.ErrInvalidDB
	}

	if !visitors.IsValidSessionID(input.SessionID) {
		return nil, fmt.Errorf("%w: invalid session id %q", ErrInvalidInput, input.SessionID)
	}

	if skip := isExcluded(logger, input.IPAddress); skip {
		return nil, ErrExcluded
	}

	pageView, err := preparePageView(logger, input)
	if err != nil {
		return nil, err
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(pageView).Error
	})
	if err != nil {
		logger.Error("Failed to store page view", slog.Any("error", err))
		return nil, fmt.Errorf("failed to store page view: %w", err)
	}

	return pageView, nil
}

// RecordUserAction stores a user action with its payload as JSON text.
func RecordUserAction(dbManager Connector, logger *slog.Logger, input *UserActionInput) (*UserAction, error) {
	db := dbManager.GetConnection()
	if db == nil {
		return nil, gorm.ErrInvalidDB
	}

	if !visitors.IsValidSessionID(input.SessionID) {
		return nil, fmt.Errorf("%w: invalid session id %q", ErrInvalidInput, input.SessionID)
	}
	action := strings.TrimSpace(input.Action)
	if action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidInput)
	}

	if skip := isExcluded(logger, input.IPAddress); skip {
		return nil, ErrExcluded
	}

	data := "{}"
	if len(input.Data) > 0 {
		if !json.Valid(input.Data) {
			return nil, fmt.Errorf("%w: action data is not valid JSON", ErrInvalidInput)
		}
		data = string(input.Data)
	}

	userAction := &UserAction{
		Action:    action,
		Page:      strings.TrimSpace(input.Page),
		SessionID: input.SessionID,
		UserID:    strings.TrimSpace(input.UserID),
		Data:      data,
		Timestamp: timestampOrNow(input.Timestamp),
		CreatedAt: time.Now().UTC(),
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(userAction).Error
	})
	if err != nil {
		logger.Error("Failed to store user action", slog.Any("error", err))
		return nil, fmt.Errorf("failed to store user action: %w", err)
	}

	return userAction, nil
}

func isExcluded(logger *slog.Logger, ip string) bool {
	if ip == "" {
		return false
	}
	excluded, err := settings.IsIPExcluded(ip)
	if err != nil {
		logger.Error("Error checking IP exclusion", slog.Any("error", err))
		return false
	}
	if excluded {
		logger.Debug("Skipping event for excluded IP", slog.String("ip", ip))
	}
	return excluded
}

// preparePageView normalizes the input into a PageView row
func preparePageView(logger *slog.Logger, input *PageViewInput) (*PageView, error) {
	page := strings.TrimSpace(input.Page)
	var hostname string

	if input.URL != "" {
		parsed, err := parseInputURL(input.URL)
		if err != nil {
			if page == "" {
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			logger.Debug("Ignoring unparsable page URL", slog.String("url", input.URL), slog.Any("error", err))
		} else {
			hostname = parsed.hostname
			if page == "" {
				page = parsed.pathname
			}
		}
	}
	if page == "" {
		return nil, fmt.Errorf("%w: page or url is required", ErrInvalidInput)
	}

	userAgent := strings.TrimSpace(input.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	var referrerHostname string
	if input.Referrer != "" {
		if ref, err := parseInputURL(input.Referrer); err == nil {
			referrerHostname = ref.hostname
		} else {
			logger.Debug("Ignoring unparsable referrer", slog.String("referrer", input.Referrer))
		}
	}

	var signature, country string
	if input.IPAddress != "" {
		signature = visitors.BuildVisitorSignature(hostname, input.IPAddress, userAgent, config.GetConfig().PrivateKey)
		country = geoip.Default(logger).CountryCode(input.IPAddress)
	}

	return &PageView{
		Page:             page,
		URL:              input.URL,
		Hostname:         hostname,
		UserAgent:        userAgent,
		Referrer:         input.Referrer,
		ReferrerHostname: referrerHostname,
		SessionID:        input.SessionID,
		UserID:           strings.TrimSpace(input.UserID),
		VisitorSignature: signature,
		Country:          country,
		ScreenSize:       input.ScreenSize,
		ViewportSize:     input.ViewportSize,
		Language:         input.Language,
		Timezone:         input.Timezone,
		Timestamp:        timestampOrNow(input.Timestamp),
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// parseInputURL parses an absolute URL into its components
func parseInputURL(urlStr string) (*urlData, error) {
	parsedURL, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return nil, fmt.Errorf("URL missing hostname")
	}

	pathname := parsedURL.Path
	if pathname == "" {
		pathname = "/"
	}

	return &urlData{
		hostname: strings.ToLower(hostname),
		pathname: pathname,
	}, nil
}

func timestampOrNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}
