package browser

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/maltedev/catalog-crawler/internal/site"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage implements the parts of playwright.Page a Session uses. Calling
// anything else panics on the nil embedded interface.
type fakePage struct {
	playwright.Page

	gotoErr     error
	gotoURLs    []string
	url         string
	counts      map[string][]int
	countCalls  map[string]int
	evaluations []string
	imagesReady []bool
	filled      map[string]string
	clicked     []string
	onClick     func(p *fakePage)
	closed      bool
}

func newFakePage() *fakePage {
	return &fakePage{
		counts:     map[string][]int{},
		countCalls: map[string]int{},
		filled:     map[string]string{},
	}
}

func (p *fakePage) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.gotoURLs = append(p.gotoURLs, url)
	if p.gotoErr != nil {
		return nil, p.gotoErr
	}
	p.url = url
	return nil, nil
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Locator(selector string, _ ...playwright.PageLocatorOptions) playwright.Locator {
	return &fakeLocator{page: p, selector: selector}
}

func (p *fakePage) Evaluate(expression string, _ ...interface{}) (interface{}, error) {
	p.evaluations = append(p.evaluations, expression)
	if expression == imagesLoadedScript {
		if len(p.imagesReady) == 0 {
			return true, nil
		}
		v := p.imagesReady[0]
		p.imagesReady = p.imagesReady[1:]
		return v, nil
	}
	return 0, nil
}

func (p *fakePage) Content() (string, error) { return "<html></html>", nil }

func (p *fakePage) WaitForLoadState(...playwright.PageWaitForLoadStateOptions) error { return nil }

func (p *fakePage) Close(...playwright.PageCloseOptions) error {
	p.closed = true
	return nil
}

// pwLocator names the embedded interface so the field does not shadow the
// interface's own Locator method.
type pwLocator = playwright.Locator

type fakeLocator struct {
	pwLocator
	page     *fakePage
	selector string
}

func (l *fakeLocator) First() playwright.Locator { return l }

func (l *fakeLocator) Count() (int, error) {
	n := l.page.countCalls[l.selector]
	l.page.countCalls[l.selector]++
	seq := l.page.counts[l.selector]
	if len(seq) == 0 {
		return 0, nil
	}
	if n >= len(seq) {
		return seq[len(seq)-1], nil
	}
	return seq[n], nil
}

func (l *fakeLocator) Fill(value string, _ ...playwright.LocatorFillOptions) error {
	l.page.filled[l.selector] = value
	return nil
}

func (l *fakeLocator) Click(...playwright.LocatorClickOptions) error {
	l.page.clicked = append(l.page.clicked, l.selector)
	if l.page.onClick != nil {
		l.page.onClick(l.page)
	}
	return nil
}

func testSession(p *fakePage) *Session {
	return newSession(p, SessionOptions{
		NavigationTimeout: 200 * time.Millisecond,
		StepTimeout:       20 * time.Millisecond,
		Backoff:           Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, "ko-KR", opts.Locale)
	assert.Equal(t, "Asia/Seoul", opts.TimezoneID)
}

func TestGotoClassifiesTimeout(t *testing.T) {
	p := newFakePage()
	s := testSession(p)

	require.NoError(t, s.Goto(context.Background(), "https://shop.example.com/a"))

	p.gotoErr = playwright.ErrTimeout
	err := s.Goto(context.Background(), "https://shop.example.com/b")
	assert.ErrorIs(t, err, ErrNavigationTimeout)

	p.gotoErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	err = s.Goto(context.Background(), "https://shop.example.com/c")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNavigationTimeout)
}

func TestGotoHonoursCancelledContext(t *testing.T) {
	p := newFakePage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, testSession(p).Goto(ctx, "https://x"), context.Canceled)
	assert.Empty(t, p.gotoURLs)
}

func TestWaitReady(t *testing.T) {
	p := newFakePage()
	p.counts[".cont"] = []int{0, 0, 1}
	s := testSession(p)

	err := s.WaitReady(context.Background(), []string{"#prdDetail", ".cont"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, p.countCalls[".cont"])

	err = s.WaitReady(context.Background(), []string{"#missing"}, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotReady)

	assert.NoError(t, s.WaitReady(context.Background(), nil, 0))
}

func TestRevealScrollsFixedSteps(t *testing.T) {
	p := newFakePage()
	p.imagesReady = []bool{false, true, true, false, false, false, false, false, false, false}
	s := testSession(p)

	require.NoError(t, s.Reveal(context.Background(), 3))

	scrolls := 0
	for _, e := range p.evaluations {
		if e == scrollStepScript {
			scrolls++
		}
	}
	assert.Equal(t, 3, scrolls)
}

func TestLogin(t *testing.T) {
	p := newFakePage()
	p.onClick = func(p *fakePage) { p.url = "https://shop.example.com/" }
	s := testSession(p)

	rules := site.LoginRules{UserField: "member_id", PasswordField: "member_passwd", Submit: "a.-btn"}
	err := s.Login(context.Background(), "https://shop.example.com/member/login.html", rules,
		site.Credentials{User: "kim", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, "kim", p.filled[`[name="member_id"]`])
	assert.Equal(t, "secret", p.filled[`[name="member_passwd"]`])
	assert.Equal(t, []string{"a.-btn"}, p.clicked)
}

func TestLoginStuckOnLoginPage(t *testing.T) {
	p := newFakePage()
	s := testSession(p)

	rules := site.LoginRules{UserField: "m_id", PasswordField: "password", Submit: "input[type='image']"}
	err := s.Login(context.Background(), "https://godo.example.com/member/login.php", rules, site.Credentials{})
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestLoginWaitsForMarker(t *testing.T) {
	p := newFakePage()
	p.counts[".xans-layout-statelogon"] = []int{0, 1}
	s := testSession(p)

	rules := site.LoginRules{UserField: "u", PasswordField: "p", Submit: "button", LoggedInMarker: ".xans-layout-statelogon"}
	require.NoError(t, s.Login(context.Background(), "https://shop.example.com/login", rules, site.Credentials{User: "u"}))
}

func TestSessionClose(t *testing.T) {
	p := newFakePage()
	require.NoError(t, testSession(p).Close())
	assert.True(t, p.closed)
}

func TestSamePage(t *testing.T) {
	assert.True(t, samePage("https://a/login/", "https://a/login"))
	assert.True(t, samePage("https://a/login#top", "https://a/login"))
	assert.False(t, samePage("https://a/", "https://a/login"))
}
