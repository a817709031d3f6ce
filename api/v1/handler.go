package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"folio/internal/analytics"
	"folio/internal/config"
	"folio/internal/events"
	"folio/internal/presence"
)

const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeStoreError     = "STORE_ERROR"
	errInvalidRequest  = "Invalid request"
)

// API serves the analytics endpoints over one shared Service.
type API struct {
	svc *analytics.Service
	cfg *config.Config
}

// NewAPI builds the handlers.
func NewAPI(svc *analytics.Service, cfg *config.Config) *API {
	return &API{svc: svc, cfg: cfg}
}

// PageViewRequest is the body of POST /analytics.
type PageViewRequest struct {
	Page         string    `json:"page" validate:"max=2048"`
	URL          string    `json:"url" validate:"required_without=Page,max=4096"`
	UserAgent    string    `json:"userAgent" validate:"max=1024"`
	Referrer     string    `json:"referrer" validate:"max=4096"`
	SessionID    string    `json:"sessionId" validate:"sessionid"`
	UserID       string    `json:"userId" validate:"max=256"`
	ScreenSize   string    `json:"screenSize" validate:"max=32"`
	ViewportSize string    `json:"viewportSize" validate:"max=32"`
	Language     string    `json:"language" validate:"max=35"`
	Timezone     string    `json:"timezone" validate:"max=64"`
	Timestamp    time.Time `json:"timestamp"`
}

// UserActionRequest is the body of POST /analytics/events.
type UserActionRequest struct {
	Action    string          `json:"action" validate:"required,max=128"`
	Page      string          `json:"page" validate:"max=2048"`
	SessionID string          `json:"sessionId" validate:"sessionid"`
	UserID    string          `json:"userId" validate:"max=256"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// HeartbeatRequest is the body of POST /analytics/heartbeat.
type HeartbeatRequest struct {
	SessionID    string    `json:"sessionId" validate:"sessionid"`
	UserID       string    `json:"userId" validate:"max=256"`
	UserAgent    string    `json:"userAgent" validate:"max=1024"`
	LastActivity time.Time `json:"lastActivity"`
}

// CreatePageViewHandler records a page view and echoes the stored record.
func (a *API) CreatePageViewHandler(ctx *cartridge.Context) error {
	var req PageViewRequest
	if err := parseRequest(ctx, &req); err != nil {
		return invalidRequest(ctx, err)
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = requestUserAgent(ctx.Ctx)
	}

	pageView, err := a.svc.RecordPageView(ctx.UserContext(), &events.PageViewInput{
		Page:         req.Page,
		URL:          req.URL,
		UserAgent:    userAgent,
		Referrer:     req.Referrer,
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		ScreenSize:   req.ScreenSize,
		ViewportSize: req.ViewportSize,
		Language:     req.Language,
		Timezone:     req.Timezone,
		IPAddress:    clientIP(ctx.Ctx),
		Timestamp:    req.Timestamp,
	})
	if err != nil {
		return writeError(ctx, "page view", err)
	}

	ctx.Logger.Debug("Recorded page view",
		slog.String("page", pageView.Page),
		slog.String("session_id", pageView.SessionID))
	return ctx.Status(http.StatusCreated).JSON(pageView)
}

// CreateUserActionHandler records a user action.
func (a *API) CreateUserActionHandler(ctx *cartridge.Context) error {
	var req UserActionRequest
	if err := parseRequest(ctx, &req); err != nil {
		return invalidRequest(ctx, err)
	}

	action, err := a.svc.RecordUserAction(ctx.UserContext(), &events.UserActionInput{
		Action:    req.Action,
		Page:      req.Page,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Data:      []byte(req.Data),
		IPAddress: clientIP(ctx.Ctx),
		Timestamp: req.Timestamp,
	})
	if err != nil {
		return writeError(ctx, "user action", err)
	}

	return ctx.Status(http.StatusCreated).JSON(fiber.Map{
		"id":        action.ID,
		"action":    action.Action,
		"page":      action.Page,
		"sessionId": action.SessionID,
		"userId":    action.UserID,
		"data":      json.RawMessage(action.Data),
		"timestamp": action.Timestamp,
	})
}

// HeartbeatHandler marks the session online and echoes the online count.
func (a *API) HeartbeatHandler(ctx *cartridge.Context) error {
	var req HeartbeatRequest
	if err := parseRequest(ctx, &req); err != nil {
		return invalidRequest(ctx, err)
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = requestUserAgent(ctx.Ctx)
	}

	err := a.svc.Heartbeat(ctx.UserContext(), presence.HeartbeatInput{
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		UserAgent:    userAgent,
		LastActivity: req.LastActivity,
	})
	if err != nil {
		return writeError(ctx, "heartbeat", err)
	}

	online := a.svc.OnlineCount(ctx.UserContext())
	if a.cfg.DisplayFloor {
		online = analytics.FloorAtOne(online)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"success":     true,
		"sessionId":   req.SessionID,
		"onlineUsers": online,
	})
}

// parseRequest decodes the JSON body into req and validates it. Bodies sent
// with navigator.sendBeacon arrive as text/plain, so the content type is
// not checked.
func parseRequest(ctx *cartridge.Context, req interface{}) error {
	body := ctx.Body()
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(body, req); err != nil {
		return err
	}
	return validateRequest(req)
}

func invalidRequest(ctx *cartridge.Context, err error) error {
	ctx.Logger.Debug("Rejected analytics request", slog.String("path", ctx.Path()), slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error":   errInvalidRequest,
		"code":    codeInvalidRequest,
		"details": err.Error(),
	})
}

// writeError maps a failed ingestion write to a response. Skipped writes
// are acknowledged so clients do not retry them; real failures answer 500
// so the client keeps the event queued.
func writeError(ctx *cartridge.Context, kind string, err error) error {
	switch {
	case errors.Is(err, events.ErrExcluded):
		return ctx.SendStatus(http.StatusNoContent)
	case errors.Is(err, analytics.ErrStoreUnavailable):
		ctx.Logger.Warn("Store unavailable, skipping write", slog.String("kind", kind))
		return ctx.Status(http.StatusAccepted).JSON(fiber.Map{"skipped": true})
	case analytics.IsInvalidInput(err):
		return invalidRequest(ctx, err)
	}

	ctx.Logger.Error("Failed to record analytics event", slog.String("kind", kind), slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to record " + kind,
		"code":  codeStoreError,
	})
}
