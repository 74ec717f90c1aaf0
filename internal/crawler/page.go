package crawler

import (
	"context"
	"time"

	"github.com/maltedev/catalog-crawler/internal/media"
	"github.com/maltedev/catalog-crawler/internal/site"
)

// Page is the browser surface a crawl needs. *browser.Session implements it.
type Page interface {
	Login(ctx context.Context, loginURL string, rules site.LoginRules, creds site.Credentials) error
	Goto(ctx context.Context, url string) error
	WaitReady(ctx context.Context, selectors []string, timeout time.Duration) error
	Reveal(ctx context.Context, steps int) error
	Content(ctx context.Context) (string, error)
}

type Materializer interface {
	Materialize(ctx context.Context, rawURL, target string) (media.Outcome, error)
}

// Limiter paces navigations. *ratelimit.IntervalLimiter implements it.
type Limiter interface {
	Wait(ctx context.Context) error
}

type noLimit struct{}

func (noLimit) Wait(context.Context) error { return nil }
