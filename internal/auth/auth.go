// internal/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/browser"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/humanoid"
)

// ErrAuthenticationFailed is wrapped by every error Login returns.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Authenticator signs in to the career site through the two-step
// email-then-password form.
type Authenticator struct {
	account   config.AccountConfig
	site      config.SiteConfig
	timeouts  config.TimeoutsConfig
	humanoid  *humanoid.Humanoid
	artifacts *browser.Artifacts
	logger    *zap.Logger
}

// New creates an Authenticator.
func New(cfg *config.Config, h *humanoid.Humanoid, artifacts *browser.Artifacts, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		account:   cfg.Account,
		site:      cfg.Site,
		timeouts:  cfg.Timeouts,
		humanoid:  h,
		artifacts: artifacts,
		logger:    logger.Named("auth"),
	}
}

// Login signs in on page. It makes exactly one attempt. On failure a
// screenshot is saved and the returned error wraps ErrAuthenticationFailed
// together with the step's own cause.
func (a *Authenticator) Login(ctx context.Context, page browser.Page) error {
	if a.account.Email == "" || a.account.Password == "" {
		return fmt.Errorf("%w: credentials are not configured", ErrAuthenticationFailed)
	}
	a.logger.Info("Logging in.", zap.String("email", a.account.Email))

	if err := a.submitCredentials(ctx, page); err != nil {
		shot := a.artifacts.Capture(ctx, page, "login_exception")
		a.logger.Error("Login failed.", zap.Error(err), zap.String("screenshot", shot))
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	url, err := page.URL(ctx)
	if err != nil {
		shot := a.artifacts.Capture(ctx, page, "login_exception")
		a.logger.Error("Login failed.", zap.Error(err), zap.String("screenshot", shot))
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	if !a.landedAfterLogin(url) {
		shot := a.artifacts.Capture(ctx, page, "login_error")
		a.logger.Error("Login did not reach an authenticated page.",
			zap.String("url", url), zap.String("screenshot", shot))
		return fmt.Errorf("%w: unexpected page after sign in: %s", ErrAuthenticationFailed, url)
	}

	a.logger.Info("Login successful.", zap.String("url", url))
	return nil
}

func (a *Authenticator) submitCredentials(ctx context.Context, page browser.Page) error {
	email := browser.LocatorFromConfig(a.site.EmailInput)
	cont := browser.LocatorFromConfig(a.site.ContinueButton)
	password := browser.LocatorFromConfig(a.site.PasswordInput)
	signIn := browser.LocatorFromConfig(a.site.SignInButton)

	// 1. Login page.
	a.logger.Debug("Navigating to login page.", zap.String("url", a.site.LoginURL))
	navCtx, cancel := context.WithTimeout(ctx, a.timeouts.Navigation)
	err := page.Navigate(navCtx, a.site.LoginURL)
	cancel()
	if err != nil {
		return fmt.Errorf("navigate to login page: %w", err)
	}
	if err := a.humanoid.Pause(ctx, humanoid.Seconds(2, 4)); err != nil {
		return err
	}

	// 2. Email.
	if err := waitFor(ctx, page, email, a.timeouts.EmailInput); err != nil {
		return err
	}
	if err := a.typeInto(ctx, page, email, a.account.Email, humanoid.Between(50*time.Millisecond, 150*time.Millisecond)); err != nil {
		return err
	}
	if err := a.humanoid.Pause(ctx, humanoid.Seconds(0.5, 1)); err != nil {
		return err
	}

	// 3. Continue.
	if err := a.click(ctx, page, cont, a.timeouts.ContinueButton); err != nil {
		return err
	}
	if err := a.humanoid.Pause(ctx, humanoid.Seconds(2, 3)); err != nil {
		return err
	}

	// 4. Password.
	if err := waitFor(ctx, page, password, a.timeouts.PasswordInput); err != nil {
		return err
	}
	if err := a.typeInto(ctx, page, password, a.account.Password, humanoid.Between(50*time.Millisecond, 120*time.Millisecond)); err != nil {
		return err
	}
	if err := a.humanoid.Pause(ctx, humanoid.Seconds(0.5, 1.5)); err != nil {
		return err
	}

	// 5. Sign in and wait for the redirect.
	if err := a.click(ctx, page, signIn, a.timeouts.SignInButton); err != nil {
		return err
	}
	return a.humanoid.Pause(ctx, humanoid.Seconds(5, 8))
}

func (a *Authenticator) landedAfterLogin(url string) bool {
	for _, mark := range a.site.LoginSuccessMarks {
		if mark != "" && strings.Contains(url, mark) {
			return true
		}
	}
	return false
}

func (a *Authenticator) typeInto(ctx context.Context, page browser.Page, loc browser.Locator, text string, gap humanoid.Range) error {
	sink := func(ctx context.Context, keys string) error {
		return page.SendKeys(ctx, loc, keys)
	}
	if err := a.humanoid.Type(ctx, sink, text, gap); err != nil {
		return fmt.Errorf("type into %s: %w", loc.Description, err)
	}
	return nil
}

func (a *Authenticator) click(ctx context.Context, page browser.Page, loc browser.Locator, timeout time.Duration) error {
	if err := waitFor(ctx, page, loc, timeout); err != nil {
		return err
	}
	if err := page.Click(ctx, loc); err != nil {
		return fmt.Errorf("click %s: %w", loc.Description, err)
	}
	return nil
}

// waitFor waits for loc to become visible, reporting a timeout as
// browser.ErrElementNotFound.
func waitFor(ctx context.Context, page browser.Page, loc browser.Locator, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := page.WaitVisible(wctx, loc); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w", browser.ErrElementNotFound, loc, err)
	}
	return nil
}
