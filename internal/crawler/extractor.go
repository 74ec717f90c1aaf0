package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/catalog-crawler/internal/browser"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/parser"
	"github.com/maltedev/catalog-crawler/internal/resolver"
	"github.com/maltedev/catalog-crawler/internal/site"
)

type Extractor struct {
	page     Page
	rules    *site.Ruleset
	resolver *resolver.Resolver
	options  *parser.OptionParser
	limiter  Limiter
	opts     Options
	logger   *slog.Logger
}

func NewExtractor(page Page, rules *site.Ruleset, limiter Limiter, opts Options, logger *slog.Logger) (*Extractor, error) {
	options, err := parser.NewOptionParser(rules)
	if err != nil {
		return nil, err
	}
	if limiter == nil {
		limiter = noLimit{}
	}
	return &Extractor{
		page:     page,
		rules:    rules,
		resolver: resolver.New(rules.BaseURL),
		options:  options,
		limiter:  limiter,
		opts:     opts.withDefaults(),
		logger:   logger.With("component", "extractor"),
	}, nil
}

// Extract visits the product's detail page and reads its attributes. Slow or
// incomplete pages produce a partial detail with defaults; only failures
// outside that are returned as errors.
func (e *Extractor) Extract(ctx context.Context, summary models.ProductSummary) (models.ProductDetail, error) {
	url := summary.DetailURL
	partial := false

	if err := e.limiter.Wait(ctx); err != nil {
		return models.ProductDetail{}, err
	}

	if err := e.page.Goto(ctx, url); err != nil {
		if !errors.Is(err, browser.ErrNavigationTimeout) {
			return models.ProductDetail{}, err
		}
		e.logger.Warn("detail navigation timed out, reading partial page", "url", url)
		partial = true
	}

	err := e.page.WaitReady(ctx, e.rules.Detail.ReadyMarkers, e.opts.ReadyTimeout)
	switch {
	case errors.Is(err, browser.ErrNotReady):
		e.logger.Debug("no content marker appeared", "url", url)
		partial = true
	case err != nil:
		return models.ProductDetail{}, err
	}

	if err := e.page.Reveal(ctx, e.opts.RevealSteps); err != nil {
		return models.ProductDetail{}, err
	}

	html, err := e.page.Content(ctx)
	if err != nil {
		return models.ProductDetail{}, err
	}
	doc, err := parser.Parse(html)
	if err != nil {
		return models.ProductDetail{}, fmt.Errorf("detail page %s: %w", url, err)
	}

	detail := e.read(doc, summary)
	detail.Partial = partial
	return detail, nil
}

// read turns optional page lookups into a detail, supplying a default for
// everything that was not found.
func (e *Extractor) read(doc *parser.Document, summary models.ProductSummary) models.ProductDetail {
	code, ok := doc.Field(e.rules.Detail.Code)
	if !ok {
		code = ""
		if !e.rules.Detail.Code.IsZero() {
			e.logger.Debug("product code not found", "url", summary.DetailURL)
		}
	}

	fee, ok := doc.Price(e.rules.Detail.Delivery)
	if !ok {
		fee = 0
		e.logger.Debug("delivery fee not found", "url", summary.DetailURL)
	}

	groupID := code
	if groupID == "" {
		groupID = summary.Code
	}

	return models.ProductDetail{
		Code:          code,
		DeliveryPrice: fee,
		ReturnPrice:   e.rules.Pricing.ReturnPrice(fee),
		ChangePrice:   e.rules.Pricing.ChangePrice(fee),
		OptionGroups:  e.options.Parse(doc, groupID),
		GalleryURLs:   doc.Gallery(e.rules.Detail, e.resolver),
	}
}
