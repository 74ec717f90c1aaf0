package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/maltedev/catalog-crawler/internal/media"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/record"
	"github.com/maltedev/catalog-crawler/internal/site"
	"github.com/maltedev/catalog-crawler/internal/storage"
)

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Page         Page
	Rules        *site.Ruleset
	Materializer Materializer
	Layout       storage.Layout
	Sink         storage.Sink
	Limiter      Limiter
}

// Pipeline runs one full crawl: log in, walk the listing and turn every
// product into a persisted record. Work is strictly sequential.
type Pipeline struct {
	deps      Deps
	walker    *Walker
	extractor *Extractor
	assembler *record.Assembler
	opts      Options
	logger    *slog.Logger
}

func NewPipeline(deps Deps, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if deps.Page == nil || deps.Rules == nil || deps.Materializer == nil || deps.Sink == nil {
		return nil, errors.New("pipeline requires page, rules, materializer and sink")
	}
	if err := deps.Rules.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	extractor, err := NewExtractor(deps.Page, deps.Rules, deps.Limiter, opts, logger)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		deps:      deps,
		walker:    NewWalker(deps.Page, deps.Rules, deps.Limiter, opts, logger),
		extractor: extractor,
		assembler: record.NewAssembler(deps.Rules.Pricing),
		opts:      opts,
		logger:    logger.With("component", "pipeline", "site", deps.Rules.Name),
	}, nil
}

// Run crawls the whole catalog. Any error it returns aborted the run and
// satisfies errors.Is(err, ErrUnexpected); the stats cover the work done up
// to that point.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	cc := &CrawlContext{
		Page:  p.deps.Page,
		Rules: p.deps.Rules,
		Stats: Stats{StartedAt: time.Now()},
	}

	err := p.run(ctx, cc)
	cc.Stats.FinishedAt = time.Now()
	if err != nil {
		err = fail(cc, "", err)
		p.transition(cc, StateFailed)
		p.logger.Error("crawl aborted", "error", err, "page", cc.Current,
			"products", cc.Stats.Products, "duration", cc.Stats.FinishedAt.Sub(cc.Stats.StartedAt))
		return cc.Stats, err
	}

	p.transition(cc, StateDone)
	p.logger.Info("crawl finished",
		"pages", cc.Stats.Pages,
		"products", cc.Stats.Products,
		"images_saved", cc.Stats.ImagesSaved,
		"images_failed", cc.Stats.ImagesFailed,
		"partial_details", cc.Stats.PartialDetails,
		"duration", cc.Stats.FinishedAt.Sub(cc.Stats.StartedAt))
	return cc.Stats, nil
}

func (p *Pipeline) run(ctx context.Context, cc *CrawlContext) error {
	p.transition(cc, StateAuthenticating)
	if p.opts.Credentials.User != "" {
		if err := cc.Page.Login(ctx, cc.Rules.LoginURL, cc.Rules.Login, p.opts.Credentials); err != nil {
			return fail(cc, cc.Rules.LoginURL, err)
		}
	} else {
		p.logger.Info("no credentials configured, crawling anonymously")
	}

	for batch, err := range p.walker.Pages(ctx, p.opts.StartPage) {
		cc.Current = batch.Page
		if err != nil {
			cc.State = StateListing
			return fail(cc, batch.URL, err)
		}

		p.transition(cc, StateListing)
		cc.Stats.Pages++
		p.logger.Info("listing page loaded", "page", batch.Page, "products", len(batch.Summaries))

		for _, summary := range batch.Summaries {
			cc.Product = summary.DetailURL
			p.transition(cc, StateDetail)
			if err := p.product(ctx, cc, summary); err != nil {
				return fail(cc, summary.DetailURL, err)
			}
		}
		cc.Product = ""
	}
	return nil
}

func (p *Pipeline) product(ctx context.Context, cc *CrawlContext, summary models.ProductSummary) error {
	detail, err := p.extractor.Extract(ctx, summary)
	if err != nil {
		return err
	}
	if detail.Partial {
		cc.Stats.PartialDetails++
	}

	layout := p.deps.Layout
	dir := p.productDir(cc, summary, detail)
	manifest := layout.Plan(dir, record.Thumbnail(summary, detail), record.Dedupe(detail.GalleryURLs))

	for i := range manifest.Items {
		item := &manifest.Items[i]
		out, err := p.deps.Materializer.Materialize(ctx, item.URL, item.Path)
		if err != nil {
			if errors.Is(err, media.ErrDownloadFailure) {
				cc.Stats.ImagesFailed++
				p.logger.Warn("image skipped", "url", item.URL, "product", summary.Name, "error", err)
				continue
			}
			return fmt.Errorf("materialize %s: %w", item.URL, err)
		}
		item.Saved = out == media.Saved
		if item.Saved {
			cc.Stats.ImagesSaved++
		}
	}

	rec := p.assembler.Assemble(summary, detail, manifest)
	if err := p.deps.Sink.Persist(ctx, rec, manifest); err != nil {
		return fmt.Errorf("persist %q: %w", summary.Name, err)
	}
	cc.Stats.Products++

	p.logger.Debug("product stored",
		"name", rec.ProductName,
		"product_id", rec.ProductID,
		"options", len(rec.OptionCombList),
		"images", manifest.SavedCount())
	return nil
}

// productDir claims the directory named after the product. When another
// product of this run already holds it, the product key is appended.
func (p *Pipeline) productDir(cc *CrawlContext, summary models.ProductSummary, detail models.ProductDetail) string {
	layout := p.deps.Layout
	key := productKey(summary, detail)
	dir := layout.ProductDir(summary.Name, key)

	for n := 1; ; n++ {
		owner, taken := cc.dirs[dir]
		if !taken || owner == summary.DetailURL {
			break
		}
		suffix := key
		if n > 1 {
			suffix = fmt.Sprintf("%s_%d", key, n)
		}
		dir = layout.SuffixedDir(summary.Name, key, suffix)
		if n == 1 {
			p.logger.Warn("product name already used this run, adding key to directory",
				"name", summary.Name, "key", key, "url", summary.DetailURL)
		}
	}

	if cc.dirs == nil {
		cc.dirs = make(map[string]string)
	}
	cc.dirs[dir] = summary.DetailURL
	return dir
}

func (p *Pipeline) transition(cc *CrawlContext, to State) {
	if cc.State != to {
		p.logger.Debug("state change", "from", cc.State, "to", to, "page", cc.Current)
	}
	cc.State = to
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(Progress{State: to, Page: cc.Current, Product: cc.Product, Stats: cc.Stats})
	}
}

func productKey(summary models.ProductSummary, detail models.ProductDetail) string {
	switch {
	case detail.Code != "":
		return detail.Code
	case summary.Code != "":
		return summary.Code
	default:
		return fmt.Sprintf("page%d-%016x", summary.Page, xxhash.Sum64String(summary.DetailURL))
	}
}
