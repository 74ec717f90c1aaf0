package crawler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maltedev/catalog-crawler/internal/browser"
	"github.com/maltedev/catalog-crawler/internal/media"
	"github.com/maltedev/catalog-crawler/internal/site"
	"github.com/maltedev/catalog-crawler/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	galleryA = baseURL + "/web/upload/NNEditor/20240101/a.jpg"
	galleryB = baseURL + "/web/upload/NNEditor/20240101/b.jpg"
)

// twoPageCatalog serves three products over two listing pages followed by
// an empty page.
func twoPageCatalog() *fakePage {
	p := newFakePage()
	p.serve(pageURL(1), listingHTML(
		listingItem{101, "린넨 셔츠", "12,000원"},
		listingItem{102, "와이드 팬츠", "29,000원"},
	))
	p.serve(pageURL(2), listingHTML(listingItem{103, "니트 조끼", "19,800원"}))
	p.serve(pageURL(3), emptyListingHTML)
	p.serve(detailURL(101), detailHTML(101, "3,000원", "/web/upload/NNEditor/20240101/a.jpg", "//shop.example.com/web/upload/NNEditor/20240101/b.jpg", "/web/upload/NNEditor/20240101/a.jpg"))
	p.serve(detailURL(102), detailHTML(102, "무료"))
	p.serve(detailURL(103), detailHTML(103, "2,500원"))
	return p
}

func newTestPipeline(t *testing.T, page Page, sink storage.Sink, mat Materializer, opts Options) *Pipeline {
	t.Helper()
	if mat == nil {
		mat = &fakeMaterializer{}
	}
	p, err := NewPipeline(Deps{
		Page:         page,
		Rules:        testRules(),
		Materializer: mat,
		Layout:       storage.DefaultLayout(t.TempDir()),
		Sink:         sink,
	}, opts, discardLogger())
	require.NoError(t, err)
	return p
}

func TestPipelineRun(t *testing.T) {
	page := twoPageCatalog()
	sink := &memorySink{}
	mat := &fakeMaterializer{}
	opts := testOptions()
	opts.Credentials = site.Credentials{User: "kim", Password: "pw"}

	stats, err := newTestPipeline(t, page, sink, mat, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		loginURL,
		pageURL(1), detailURL(101), detailURL(102),
		pageURL(2), detailURL(103),
		pageURL(3),
	}, page.navigated, "products in DOM order, pages in increasing order, nothing after the empty page")
	assert.Equal(t, []site.Credentials{{User: "kim", Password: "pw"}}, page.logins)
	assert.Equal(t, []int{8, 8, 8}, page.revealed)

	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 3, stats.Products)
	assert.Equal(t, 5, stats.ImagesSaved, "three thumbnails and two distinct gallery images")
	assert.False(t, stats.FinishedAt.IsZero())

	require.Len(t, sink.records, 3)
	first := sink.records[0]
	assert.Equal(t, 1, first.Idx)
	assert.Equal(t, "P0101", first.ProductID)
	assert.Equal(t, "린넨 셔츠", first.ProductName)
	assert.Equal(t, 12000, first.ProductPrice)
	assert.Equal(t, 3000, first.DeliveryPrice)
	assert.Equal(t, 3000, first.ReturnPrice)
	assert.Equal(t, 6000, first.ChangePrice)
	assert.Equal(t, "https://cdn.example.com/thumb/101.jpg", first.ThumbnailImg)
	assert.Equal(t, []string{galleryA, galleryB}, first.ProductInfoImgList)
	assert.Equal(t, 1, first.IsImgSave)
	require.Len(t, first.OptionCombList, 2)
	assert.Equal(t, "101:색상 랜덤옵션", first.OptionCombList[1].Path)
	assert.Equal(t, 1000, first.OptionCombList[1].Price)

	assert.Equal(t, 0, sink.records[1].DeliveryPrice, "unparseable fee defaults to zero")
	assert.Equal(t, 0, sink.records[1].ChangePrice)
	assert.Equal(t, 2, sink.records[2].Idx)
	assert.Equal(t, 5000, sink.records[2].ChangePrice)
}

func TestPipelineSkipsLoginWithoutCredentials(t *testing.T) {
	page := twoPageCatalog()
	_, err := newTestPipeline(t, page, &memorySink{}, nil, testOptions()).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, page.logins)
}

func TestPipelineLoginFailureAborts(t *testing.T) {
	page := twoPageCatalog()
	page.loginErr = browser.ErrLoginFailed
	opts := testOptions()
	opts.Credentials = site.Credentials{User: "kim"}

	_, err := newTestPipeline(t, page, &memorySink{}, nil, opts).Run(context.Background())
	require.ErrorIs(t, err, ErrUnexpected)
	assert.ErrorIs(t, err, browser.ErrLoginFailed)

	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, StateAuthenticating, f.State)
	assert.Equal(t, []string{loginURL}, page.navigated)
}

func TestPipelineEmptyFirstPage(t *testing.T) {
	page := newFakePage()
	page.serve(pageURL(1), emptyListingHTML)
	sink := &memorySink{}

	stats, err := newTestPipeline(t, page, sink, nil, testOptions()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{pageURL(1)}, page.navigated)
	assert.Zero(t, stats.Pages)
	assert.Empty(t, sink.records)
}

func TestPipelineEmptyPageIsCheckedAgain(t *testing.T) {
	page := twoPageCatalog()
	opts := testOptions()
	opts.EmptyPageRetries = 2

	_, err := newTestPipeline(t, page, &memorySink{}, nil, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, page.served[pageURL(3)], "empty page loaded once plus two re-checks")
	assert.NotContains(t, page.navigated, pageURL(4))
}

func TestPipelineTransientEmptyPageRecovers(t *testing.T) {
	page := twoPageCatalog()
	page.responses[pageURL(2)] = []string{emptyListingHTML, listingHTML(listingItem{103, "니트 조끼", "19,800원"})}
	opts := testOptions()
	opts.EmptyPageRetries = 1
	sink := &memorySink{}

	stats, err := newTestPipeline(t, page, sink, nil, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Products)
	assert.Equal(t, "니트 조끼", sink.records[2].ProductName)
}

func TestPipelineDetailTimeoutYieldsPartialRecord(t *testing.T) {
	page := twoPageCatalog()
	page.gotoErrs[detailURL(102)] = browser.ErrNavigationTimeout
	sink := &memorySink{}

	stats, err := newTestPipeline(t, page, sink, nil, testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Products)
	assert.Equal(t, 1, stats.PartialDetails)
	partial := sink.records[1]
	assert.Equal(t, "와이드 팬츠", partial.ProductName)
	assert.Equal(t, "https://cdn.example.com/thumb/102.jpg", partial.ThumbnailImg)
	assert.Equal(t, []string{"https://cdn.example.com/thumb/102.jpg"}, partial.ProductImgList)
	assert.Empty(t, partial.OptionCombList)
	assert.Zero(t, partial.DeliveryPrice)
}

func TestPipelineNavigationErrorAborts(t *testing.T) {
	page := twoPageCatalog()
	boom := errors.New("net::ERR_CONNECTION_RESET")
	page.gotoErrs[detailURL(102)] = boom
	sink := &memorySink{}

	stats, err := newTestPipeline(t, page, sink, nil, testOptions()).Run(context.Background())
	require.ErrorIs(t, err, ErrUnexpected)
	assert.ErrorIs(t, err, boom)

	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, StateDetail, f.State)
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, detailURL(102), f.URL)

	assert.Equal(t, 1, stats.Products)
	assert.NotContains(t, page.navigated, pageURL(2))
}

func TestPipelineListingErrorAborts(t *testing.T) {
	page := twoPageCatalog()
	page.gotoErrs[pageURL(2)] = errors.New("browser has been closed")

	_, err := newTestPipeline(t, page, &memorySink{}, nil, testOptions()).Run(context.Background())
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, StateListing, f.State)
	assert.Equal(t, 2, f.Page)
	assert.Equal(t, pageURL(2), f.URL)
}

func TestPipelineImageFailureIsSkipped(t *testing.T) {
	page := twoPageCatalog()
	mat := &fakeMaterializer{fail: map[string]error{
		galleryB: &media.DownloadError{URL: galleryB, StatusCode: 404},
	}}
	sink := &memorySink{}

	stats, err := newTestPipeline(t, page, sink, mat, testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Products)
	assert.Equal(t, 1, stats.ImagesFailed)
	assert.Equal(t, 0, sink.records[0].IsImgSave)
	assert.Equal(t, []string{galleryA, galleryB}, sink.records[0].ProductInfoImgList)
	assert.False(t, sink.manifests[0].Items[2].Saved)
}

func TestPipelineStorageFailureAborts(t *testing.T) {
	page := twoPageCatalog()
	mat := &fakeMaterializer{fail: map[string]error{galleryA: os.ErrPermission}}

	_, err := newTestPipeline(t, page, &memorySink{}, mat, testOptions()).Run(context.Background())
	require.ErrorIs(t, err, ErrUnexpected)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestPipelineSinkFailureAborts(t *testing.T) {
	page := twoPageCatalog()
	boom := errors.New("disk full")

	_, err := newTestPipeline(t, page, &memorySink{err: boom}, nil, testOptions()).Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{pageURL(1), detailURL(101)}, page.navigated)
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(t, twoPageCatalog(), &memorySink{}, nil, testOptions()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineProgress(t *testing.T) {
	var states []State
	opts := testOptions()
	opts.OnProgress = func(p Progress) {
		if len(states) == 0 || states[len(states)-1] != p.State {
			states = append(states, p.State)
		}
	}

	_, err := newTestPipeline(t, twoPageCatalog(), &memorySink{}, nil, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateAuthenticating,
		StateListing, StateDetail,
		StateListing, StateDetail,
		StateDone,
	}, states)
}

func TestPipelineDeterministicOutput(t *testing.T) {
	root := t.TempDir()
	layout := storage.DefaultLayout(root)

	run := func() []byte {
		p, err := NewPipeline(Deps{
			Page:         twoPageCatalog(),
			Rules:        testRules(),
			Materializer: &fakeMaterializer{},
			Layout:       layout,
			Sink:         storage.NewDirectorySink(layout, discardLogger()),
		}, testOptions(), discardLogger())
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(root, "린넨 셔츠", "productInfo.json"))
		require.NoError(t, err)
		return data
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)

	images, err := os.ReadDir(filepath.Join(root, "린넨 셔츠", "상세정보사진"))
	require.NoError(t, err)
	assert.Len(t, images, 2)
	_, err = os.Stat(filepath.Join(root, "린넨 셔츠", "대표이미지.jpg"))
	assert.NoError(t, err)
}

func TestPipelineSameNameGetsOwnDirectory(t *testing.T) {
	root := t.TempDir()
	layout := storage.DefaultLayout(root)

	page := newFakePage()
	page.serve(pageURL(1), listingHTML(
		listingItem{101, "반팔 티셔츠", "12,000원"},
		listingItem{102, "반팔 티셔츠", "15,000원"},
	))
	page.serve(pageURL(2), emptyListingHTML)
	page.serve(detailURL(101), detailHTML(101, "3,000원", galleryA))
	page.serve(detailURL(102), detailHTML(102, "3,000원", galleryB))

	p, err := NewPipeline(Deps{
		Page:         page,
		Rules:        testRules(),
		Materializer: &fakeMaterializer{},
		Layout:       layout,
		Sink:         storage.NewDirectorySink(layout, discardLogger()),
	}, testOptions(), discardLogger())
	require.NoError(t, err)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Products)

	tests := []struct {
		dir     string
		id      string
		gallery string
	}{
		{"반팔 티셔츠", "P0101", galleryA},
		{"반팔 티셔츠_P0102", "P0102", galleryB},
	}
	for _, tt := range tests {
		data, err := os.ReadFile(filepath.Join(root, tt.dir, "productInfo.json"))
		require.NoError(t, err, tt.dir)
		assert.Contains(t, string(data), `"product_id": "`+tt.id+`"`)

		img, err := os.ReadFile(filepath.Join(root, tt.dir, "상세정보사진", "상세이미지_1.jpg"))
		require.NoError(t, err, tt.dir)
		assert.Equal(t, tt.gallery, string(img))
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPipelineRerunReusesDirectory(t *testing.T) {
	root := t.TempDir()
	layout := storage.DefaultLayout(root)

	for i := 0; i < 2; i++ {
		p, err := NewPipeline(Deps{
			Page:         twoPageCatalog(),
			Rules:        testRules(),
			Materializer: &fakeMaterializer{},
			Layout:       layout,
			Sink:         storage.NewDirectorySink(layout, discardLogger()),
		}, testOptions(), discardLogger())
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "a second run overwrites instead of suffixing")
}

func TestNewPipelineValidates(t *testing.T) {
	_, err := NewPipeline(Deps{}, testOptions(), discardLogger())
	assert.Error(t, err)

	rules := testRules()
	rules.ListingURL = ""
	_, err = NewPipeline(Deps{Page: newFakePage(), Rules: rules, Materializer: &fakeMaterializer{}, Sink: &memorySink{}}, testOptions(), discardLogger())
	assert.ErrorIs(t, err, site.ErrInvalidRuleset)
}
