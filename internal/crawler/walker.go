package crawler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-crawler/internal/browser"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/parser"
	"github.com/maltedev/catalog-crawler/internal/resolver"
	"github.com/maltedev/catalog-crawler/internal/site"
)

// Batch is the set of products found on one listing page.
type Batch struct {
	Page      int
	URL       string
	Summaries []models.ProductSummary
}

type Walker struct {
	page     Page
	rules    *site.Ruleset
	resolver *resolver.Resolver
	limiter  Limiter
	opts     Options
	logger   *slog.Logger
}

func NewWalker(page Page, rules *site.Ruleset, limiter Limiter, opts Options, logger *slog.Logger) *Walker {
	if limiter == nil {
		limiter = noLimit{}
	}
	return &Walker{
		page:     page,
		rules:    rules,
		resolver: resolver.New(rules.BaseURL),
		limiter:  limiter,
		opts:     opts.withDefaults(),
		logger:   logger.With("component", "walker"),
	}
}

// Pages walks the listing from start in increasing page order. A page is
// only loaded once the consumer asks for it. The walk ends at the first page
// that stays empty after the configured re-checks; that is the end of the
// catalog, not an error. A failed page is yielded with its error and ends
// the sequence.
func (w *Walker) Pages(ctx context.Context, start int) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		for n := max(start, 1); ; n++ {
			batch, err := w.fetch(ctx, n)
			if err != nil {
				yield(batch, err)
				return
			}
			if len(batch.Summaries) == 0 {
				w.logger.Info("end of catalog", "page", n)
				return
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}

func (w *Walker) fetch(ctx context.Context, n int) (Batch, error) {
	url, err := w.rules.PageURL(n)
	if err != nil {
		return Batch{Page: n}, err
	}
	batch := Batch{Page: n, URL: url}

	for attempt := 0; ; attempt++ {
		summaries, err := w.load(ctx, url, n)
		if err != nil {
			return batch, err
		}
		batch.Summaries = summaries
		if len(summaries) > 0 || attempt >= w.opts.EmptyPageRetries {
			return batch, nil
		}

		delay := w.opts.Backoff.Delay(attempt)
		w.logger.Warn("listing page empty, checking again", "page", n, "attempt", attempt+1, "delay", delay)
		if err := sleep(ctx, delay); err != nil {
			return batch, err
		}
	}
}

func (w *Walker) load(ctx context.Context, url string, n int) ([]models.ProductSummary, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	w.logger.Debug("loading listing page", "page", n, "url", url)
	if err := w.page.Goto(ctx, url); err != nil {
		if !errors.Is(err, browser.ErrNavigationTimeout) {
			return nil, err
		}
		w.logger.Warn("listing navigation timed out, reading partial page", "page", n)
	}

	err := w.page.WaitReady(ctx, []string{w.rules.Listing.Item}, w.opts.ReadyTimeout)
	if err != nil && !errors.Is(err, browser.ErrNotReady) {
		return nil, err
	}

	html, err := w.page.Content(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := parser.Parse(html)
	if err != nil {
		return nil, fmt.Errorf("listing page %d: %w", n, err)
	}
	return doc.Summaries(w.rules.Listing, w.resolver, n), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
