// Package browser drives the router's web administration UI with a headless
// Chrome instance controlled over the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jmehdipour/router-sms-gateway/internal/device"
)

// Element ids and selectors of the router UI.
const (
	selPassword   = "pc-login-password"
	selLoginBtn   = "pc-login-btn"
	selConfirm    = "confirm-yes"
	selAdvanced   = "advanced"
	selInboxLink  = `a[url='lteSmsInbox.htm']`
	selNewMsgLink = `a[url='lteSmsNewMsg.htm']`
	selToNumber   = "toNumber"
	selContent    = "inputContent"
	selSend       = "send"

	jsInterfaceReady = `(() => { const el = document.getElementById("interfaceName"); return !!el && el.value !== ""; })()`
	jsMaskCleared    = `(() => {
		const m = document.getElementById("mask");
		if (!m) return true;
		const s = window.getComputedStyle(m);
		return s.display === "none" || s.visibility === "hidden" || (m.offsetWidth === 0 && m.offsetHeight === 0);
	})()`
)

const (
	pollInterval       = 200 * time.Millisecond
	cookiePollInterval = 500 * time.Millisecond
)

var ErrClosed = errors.New("browser session closed")

type Config struct {
	BaseURL  string
	Password string
	Headless bool
	// NoSandbox is needed when Chrome runs as root inside a container.
	NoSandbox bool
	ExecPath  string

	ElementTimeout time.Duration // per element wait
	ConfirmTimeout time.Duration // optional login confirmation dialog
	SettleDelay    time.Duration // pause before clicking menu links
}

func (c Config) withDefaults() Config {
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = 10 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = c.ElementTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	return c
}

// Driver owns one Chrome process and the tab logged into the router.
type Driver struct {
	cfg Config
	log *zap.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

var _ device.Session = (*Driver)(nil)

// NewFactory returns a device.Factory producing browser sessions.
func NewFactory(cfg Config, log *zap.Logger) device.Factory {
	return func(ctx context.Context) (device.Session, error) {
		return Start(ctx, cfg, log)
	}
}

// Start launches Chrome. The process lives until Close, independent of ctx.
func Start(ctx context.Context, cfg Config, log *zap.Logger) (*Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	sugar := log.Sugar()
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	// The first Run allocates the browser; it must get the chromedp context itself,
	// a derived deadline would tear the process down when it fires.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	log.Debug("browser started", zap.String("base_url", cfg.BaseURL))

	return &Driver{
		cfg:           cfg,
		log:           log,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// run executes actions within timeout, aborting early if ctx ends.
func (d *Driver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	d.mu.Lock()
	bctx := d.browserCtx
	d.mu.Unlock()
	if bctx == nil {
		return ErrClosed
	}

	runCtx, cancel := context.WithTimeout(bctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (d *Driver) step(ctx context.Context, name string, actions ...chromedp.Action) error {
	if err := d.run(ctx, d.cfg.ElementTimeout, actions...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Login opens the router, submits the password and accepts the
// "another admin is logged in" dialog when the router shows one.
func (d *Driver) Login(ctx context.Context) error {
	if err := d.login(ctx); err != nil {
		_ = d.Close()
		return device.LoginError(err)
	}
	return nil
}

func (d *Driver) login(ctx context.Context) error {
	if err := d.step(ctx, "open "+d.cfg.BaseURL, chromedp.Navigate(d.cfg.BaseURL)); err != nil {
		return err
	}
	if err := d.step(ctx, "password field",
		chromedp.WaitVisible(selPassword, chromedp.ByID),
		chromedp.SendKeys(selPassword, d.cfg.Password, chromedp.ByID),
	); err != nil {
		return err
	}
	if err := d.step(ctx, "login button", chromedp.Click(selLoginBtn, chromedp.ByID)); err != nil {
		return err
	}

	// optional
	if err := d.run(ctx, d.cfg.ConfirmTimeout, chromedp.Click(selConfirm, chromedp.ByID)); err != nil {
		d.log.Debug("no login confirmation dialog", zap.Error(err))
	}
	return nil
}

// Cookie polls the browser cookie jar until name shows up or the element timeout passes.
func (d *Driver) Cookie(ctx context.Context, name string) (string, error) {
	var value string
	err := d.run(ctx, d.cfg.ElementTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		for {
			cookies, err := network.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			for _, c := range cookies {
				if c.Name == name && c.Value != "" {
					value = c.Value
					return nil
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cookiePollInterval):
			}
		}
	}))
	if err != nil {
		return "", fmt.Errorf("cookie %s not set after %s: %w", name, d.cfg.ElementTimeout, err)
	}
	return value, nil
}

// NavigateToCompose walks Advanced -> SMS inbox -> New message.
func (d *Driver) NavigateToCompose(ctx context.Context) error {
	var ready bool
	steps := []struct {
		name    string
		actions []chromedp.Action
	}{
		{"interface name", []chromedp.Action{chromedp.Poll(jsInterfaceReady, &ready, chromedp.WithPollingInterval(pollInterval))}},
		{"advanced button", []chromedp.Action{chromedp.Click(selAdvanced, chromedp.ByID)}},
		{"sms inbox link", []chromedp.Action{chromedp.Sleep(d.cfg.SettleDelay), chromedp.Click(selInboxLink, chromedp.ByQuery)}},
		{"new message link", []chromedp.Action{chromedp.Sleep(d.cfg.SettleDelay), chromedp.Click(selNewMsgLink, chromedp.ByQuery)}},
	}

	for _, s := range steps {
		if err := d.step(ctx, s.name, s.actions...); err != nil {
			return device.NavigationError(err)
		}
	}

	d.log.Debug("navigated to sms compose page")
	return nil
}

// Send fills the compose form and presses send.
func (d *Driver) Send(ctx context.Context, phoneNumber, message string) error {
	var cleared bool
	err := d.step(ctx, "compose form",
		chromedp.Poll(jsMaskCleared, &cleared, chromedp.WithPollingInterval(pollInterval)),
		chromedp.WaitVisible(selToNumber, chromedp.ByID),
		chromedp.Clear(selToNumber, chromedp.ByID),
		chromedp.SendKeys(selToNumber, phoneNumber, chromedp.ByID),
		chromedp.Clear(selContent, chromedp.ByID),
		chromedp.SendKeys(selContent, message, chromedp.ByID),
		chromedp.Click(selSend, chromedp.ByID),
	)
	if err != nil {
		return device.SendError(err)
	}
	return nil
}

// Close terminates the Chrome process.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCtx == nil {
		return nil
	}

	err := chromedp.Cancel(d.browserCtx)
	d.browserCancel()
	d.allocCancel()
	d.browserCtx = nil

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
