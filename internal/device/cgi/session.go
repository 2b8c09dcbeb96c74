// Package cgi sends messages through the router's /cgi endpoint, reusing the
// JSESSIONID cookie obtained from a browser login. The browser is only needed
// for the login itself and is shut down as soon as the cookie is read.
package cgi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/router-sms-gateway/internal/device"
	"github.com/jmehdipour/router-sms-gateway/internal/device/browser"
)

const (
	SessionCookie = "JSESSIONID"
	sendPath      = "/cgi?2"
	sendCommand   = "[LTE_SMS_SENDNEWMSG#0,0,0,0,0,0#0,0,0,0,0,0]0,3"
)

var errNoSession = errors.New("no session cookie, login first")

// the command body is line-based, so field values must stay on one line
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// LoginFunc authenticates and returns the session cookie value.
type LoginFunc func(ctx context.Context) (string, error)

type Config struct {
	BaseURL string
	Timeout time.Duration // per request
}

type Session struct {
	baseURL   string
	client    *http.Client
	login     LoginFunc
	log       *zap.Logger
	sessionID string
}

var _ device.Session = (*Session)(nil)

func New(cfg Config, login LoginFunc, log *zap.Logger) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		login:   login,
		log:     log,
	}
}

// NewFactory builds cgi sessions that log in through a short-lived browser.
func NewFactory(cfg Config, browserCfg browser.Config, log *zap.Logger) device.Factory {
	return func(ctx context.Context) (device.Session, error) {
		return New(cfg, BrowserLogin(browserCfg, log), log), nil
	}
}

// BrowserLogin logs in with a throwaway browser and returns its JSESSIONID.
func BrowserLogin(cfg browser.Config, log *zap.Logger) LoginFunc {
	return func(ctx context.Context) (string, error) {
		d, err := browser.Start(ctx, cfg, log)
		if err != nil {
			return "", err
		}
		defer d.Close()

		if err := d.Login(ctx); err != nil {
			return "", err
		}
		return d.Cookie(ctx, SessionCookie)
	}
}

// Command renders the router's send-message command body. Line breaks in
// either field are sent as spaces.
func Command(phoneNumber, message string) string {
	return sendCommand + "\nindex=1\nto=" + lineBreaks.Replace(phoneNumber) + "\ntextContent=" + lineBreaks.Replace(message)
}

func (s *Session) Login(ctx context.Context) error {
	id, err := s.login(ctx)
	if err != nil {
		if errors.Is(err, device.ErrLoginFailed) {
			return err
		}
		return device.LoginError(err)
	}
	if id == "" {
		return device.LoginError(errNoSession)
	}
	s.sessionID = id
	return nil
}

// NavigateToCompose is a no-op: the cgi endpoint needs no page state.
func (s *Session) NavigateToCompose(context.Context) error { return nil }

func (s *Session) Send(ctx context.Context, phoneNumber, message string) error {
	if s.sessionID == "" {
		return device.SendError(errNoSession)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+sendPath, strings.NewReader(Command(phoneNumber, message)))
	if err != nil {
		return device.SendError(err)
	}
	req.Header.Set("Cookie", SessionCookie+"="+s.sessionID)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Referer", s.baseURL+"/")

	res, err := s.client.Do(req)
	if err != nil {
		return device.SendError(err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))

	s.log.Debug("cgi send response",
		zap.Int("status", res.StatusCode),
		zap.ByteString("body", body),
	)

	if res.StatusCode != http.StatusOK {
		return device.SendError(fmt.Errorf("failed to send sms: status %d", res.StatusCode))
	}
	return nil
}

// Close forgets the session cookie; the browser was already shut down after login.
func (s *Session) Close() error {
	s.sessionID = ""
	return nil
}
