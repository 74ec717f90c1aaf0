package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/catalog-crawler/internal/browser"
	"github.com/maltedev/catalog-crawler/internal/media"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/parser"
	"github.com/maltedev/catalog-crawler/internal/site"
	"github.com/maltedev/catalog-crawler/internal/storage"
)

const (
	baseURL    = "https://shop.example.com"
	listingURL = baseURL + "/product/list.html?cate_no=24"
	loginURL   = baseURL + "/member/login.html"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRules() *site.Ruleset {
	rs, err := site.Preset(site.PresetCafe24)
	if err != nil {
		panic(err)
	}
	rs.Apply(site.Overrides{BaseURL: baseURL, LoginURL: loginURL, ListingURL: listingURL})
	return rs
}

func pageURL(n int) string {
	u, err := testRules().PageURL(n)
	if err != nil {
		panic(err)
	}
	return u
}

func detailURL(no int) string {
	return fmt.Sprintf("%s/product/detail.html?product_no=%d", baseURL, no)
}

type listingItem struct {
	no    int
	name  string
	price string
}

func listingHTML(items ...listingItem) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="prdList">`)
	for _, it := range items {
		fmt.Fprintf(&b, `<li class="item xans-record-">
  <div class="thumbnail"><a href="/product/detail.html?product_no=%[1]d"><img id="eListPrdImage%[1]d_1" src="//cdn.example.com/thumb/%[1]d.jpg"></a></div>
  <p class="name"><a href="/product/detail.html?product_no=%[1]d"><span>상품명 :</span> %[2]s</a></p>
  <ul><li class="xans-record-"><span style="font-size:12px">%[3]s</span></li></ul>
</li>`, it.no, it.name, it.price)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

const emptyListingHTML = `<html><body><ul class="prdList"></ul></body></html>`

func detailHTML(no int, delivery string, gallery ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<html><body><div class="xans-product-detail">
<table><tr><th><span>자체상품코드</span></th><td><span>P%04d</span></td></tr></table>
<div class="delv_price_B"><strong>%s</strong></div>
<select option_product_no="%d" option_title="색상">
  <option value="*">- [필수] 옵션을 선택해 주세요 -</option>
  <option value="**" disabled>-------------------</option>
  <option value="A">블랙</option>
  <option value="B">색상 랜덤옵션(+1,000원)</option>
</select></div><div id="prdDetail">`, no, delivery, no)
	for _, g := range gallery {
		fmt.Fprintf(&b, `<img src="%s">`, g)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

// fakePage serves canned HTML per URL. A URL with several responses serves
// them in turn and then repeats the last.
type fakePage struct {
	responses map[string][]string
	served    map[string]int
	gotoErrs  map[string]error
	loginErr  error

	current    string
	navigated  []string
	logins     []site.Credentials
	revealed   []int
	readyWaits int
}

func newFakePage() *fakePage {
	return &fakePage{
		responses: map[string][]string{},
		served:    map[string]int{},
		gotoErrs:  map[string]error{},
	}
}

func (p *fakePage) serve(url string, html ...string) {
	p.responses[url] = append(p.responses[url], html...)
}

func (p *fakePage) Login(_ context.Context, url string, _ site.LoginRules, creds site.Credentials) error {
	p.logins = append(p.logins, creds)
	p.navigated = append(p.navigated, url)
	return p.loginErr
}

func (p *fakePage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.navigated = append(p.navigated, url)
	seq := p.responses[url]
	n := p.served[url]
	p.served[url]++
	switch {
	case len(seq) == 0:
		p.current = "<html><body></body></html>"
	case n < len(seq):
		p.current = seq[n]
	default:
		p.current = seq[len(seq)-1]
	}
	if err, ok := p.gotoErrs[url]; ok {
		if errors.Is(err, browser.ErrNavigationTimeout) {
			p.current = "<html><body><p>loading</p></body></html>"
		}
		return err
	}
	return nil
}

func (p *fakePage) WaitReady(_ context.Context, selectors []string, _ time.Duration) error {
	p.readyWaits++
	doc, err := parser.Parse(p.current)
	if err != nil {
		return err
	}
	for _, sel := range selectors {
		if doc.Count(sel) > 0 {
			return nil
		}
	}
	return browser.ErrNotReady
}

func (p *fakePage) Reveal(_ context.Context, steps int) error {
	p.revealed = append(p.revealed, steps)
	return nil
}

func (p *fakePage) Content(context.Context) (string, error) {
	return p.current, nil
}

// fakeMaterializer writes the URL itself as the file body.
type fakeMaterializer struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (m *fakeMaterializer) Materialize(_ context.Context, rawURL, target string) (media.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, rawURL)
	if err, ok := m.fail[rawURL]; ok {
		return media.Skipped, err
	}
	if err := storage.WriteBytes(target, []byte(rawURL)); err != nil {
		return media.Skipped, err
	}
	return media.Saved, nil
}

type memorySink struct {
	records   []*models.ProductRecord
	manifests []models.MediaManifest
	err       error
}

func (s *memorySink) Persist(_ context.Context, rec *models.ProductRecord, manifest models.MediaManifest) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	s.manifests = append(s.manifests, manifest)
	return nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ReadyTimeout = 10 * time.Millisecond
	opts.EmptyPageRetries = 0
	opts.Backoff = browser.Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond}
	return opts
}

func listingSummary(no int) models.ProductSummary {
	return models.ProductSummary{
		Page:      1,
		Name:      fmt.Sprintf("상품 %d", no),
		DetailURL: detailURL(no),
	}
}
