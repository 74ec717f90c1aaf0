package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/catalog-crawler/internal/site"
	"github.com/playwright-community/playwright-go"
)

const (
	scrollStepScript   = `() => { window.scrollBy(0, window.innerHeight); return window.scrollY; }`
	imagesLoadedScript = `() => Array.from(document.images).every(img => img.complete)`
)

type SessionOptions struct {
	NavigationTimeout time.Duration
	// StepTimeout bounds the wait for images after each reveal step.
	StepTimeout time.Duration
	Backoff     Backoff
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		NavigationTimeout: 30 * time.Second,
		StepTimeout:       2 * time.Second,
		Backoff:           DefaultBackoff(),
	}
}

// Session is the one browser tab a crawl drives. It is not safe for
// concurrent use.
type Session struct {
	page   playwright.Page
	opts   SessionOptions
	logger *slog.Logger
}

func newSession(page playwright.Page, opts SessionOptions, logger *slog.Logger) *Session {
	defaults := DefaultSessionOptions()
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = defaults.NavigationTimeout
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = defaults.StepTimeout
	}
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = defaults.Backoff
	}
	return &Session{
		page:   page,
		opts:   opts,
		logger: logger.With("component", "session"),
	}
}

// Goto loads url and returns once the DOM is parsed. A load that runs past
// the navigation timeout yields ErrNavigationTimeout.
func (s *Session) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.opts.NavigationTimeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitReady polls until any of selectors matches an element.
func (s *Session) WaitReady(ctx context.Context, selectors []string, timeout time.Duration) error {
	if len(selectors) == 0 {
		return nil
	}
	return Poll(ctx, timeout, s.opts.Backoff, func() (bool, error) {
		return s.anyPresent(selectors)
	})
}

func (s *Session) anyPresent(selectors []string) (bool, error) {
	for _, sel := range selectors {
		count, err := s.page.Locator(sel).Count()
		if err != nil {
			if errors.Is(err, playwright.ErrTargetClosed) {
				return false, err
			}
			// the document may be swapping mid-navigation; try again later
			s.logger.Debug("locator count failed", "selector", sel, "error", err)
			continue
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Reveal scrolls one viewport per step so lazy images enter the DOM,
// waiting after each step until the images present have finished loading.
func (s *Session) Reveal(ctx context.Context, steps int) error {
	for i := 0; i < steps; i++ {
		if _, err := s.page.Evaluate(scrollStepScript); err != nil {
			return fmt.Errorf("failed to scroll: %w", err)
		}

		err := Poll(ctx, s.opts.StepTimeout, s.opts.Backoff, func() (bool, error) {
			v, err := s.page.Evaluate(imagesLoadedScript)
			if err != nil {
				if errors.Is(err, playwright.ErrTargetClosed) {
					return false, err
				}
				return false, nil
			}
			done, _ := v.(bool)
			return done, nil
		})
		switch {
		case errors.Is(err, ErrNotReady):
			s.logger.Debug("images still loading after reveal step", "step", i+1)
		case err != nil:
			return err
		}
	}
	return nil
}

func (s *Session) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	html, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

// Login submits the site's login form and waits until the browser has left
// the login page or the logged-in marker appears.
func (s *Session) Login(ctx context.Context, loginURL string, rules site.LoginRules, creds site.Credentials) error {
	if loginURL == "" {
		return fmt.Errorf("%w: no login url", ErrLoginFailed)
	}
	if err := s.Goto(ctx, loginURL); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	fields := []struct{ name, value string }{
		{rules.UserField, creds.User},
		{rules.PasswordField, creds.Password},
	}
	for _, f := range fields {
		if err := s.page.Locator(fmt.Sprintf("[name=%q]", f.name)).First().Fill(f.value); err != nil {
			return fmt.Errorf("%w: fill %s: %w", ErrLoginFailed, f.name, err)
		}
	}

	if err := s.page.Locator(rules.Submit).First().Click(); err != nil {
		return fmt.Errorf("%w: submit: %w", ErrLoginFailed, err)
	}

	err := Poll(ctx, s.opts.NavigationTimeout, s.opts.Backoff, func() (bool, error) {
		if rules.LoggedInMarker != "" {
			return s.anyPresent([]string{rules.LoggedInMarker})
		}
		return !samePage(s.page.URL(), loginURL), nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: playwright.Float(float64(s.opts.NavigationTimeout.Milliseconds())),
	}); err != nil {
		s.logger.Warn("page after login did not settle", "error", err)
	}

	s.logger.Info("logged in", "user", creds.User)
	return nil
}

func (s *Session) Close() error {
	if err := s.page.Close(); err != nil {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}

func samePage(a, b string) bool {
	trim := func(u string) string {
		u, _, _ = strings.Cut(u, "#")
		return strings.TrimRight(u, "/")
	}
	return trim(a) == trim(b)
}
