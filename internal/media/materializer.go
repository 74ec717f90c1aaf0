// Package media writes product images to disk from network or inline
// sources.
package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/maltedev/catalog-crawler/internal/resolver"
	"github.com/maltedev/catalog-crawler/internal/storage"
)

// ErrDownloadFailure marks a single image that could not be fetched or
// decoded. It never aborts a crawl.
var ErrDownloadFailure = errors.New("image download failed")

type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("download %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("download %s failed", e.URL)
	}
}

func (e *DownloadError) Unwrap() error { return e.Err }

func (e *DownloadError) Is(target error) bool { return target == ErrDownloadFailure }

type Outcome int

const (
	Skipped Outcome = iota
	Saved
)

func (o Outcome) String() string {
	if o == Saved {
		return "saved"
	}
	return "skipped"
}

// sniffLen is how much of a response is inspected to confirm it is an image.
const sniffLen = 3072

type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	// Client replaces the default transport, e.g. for a custom TLS setup.
	Client *http.Client
}

func DefaultOptions() Options {
	return Options{
		Timeout:   30 * time.Second,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

type Materializer struct {
	client   *resty.Client
	resolver *resolver.Resolver
	logger   *slog.Logger
}

func New(res *resolver.Resolver, opts Options, logger *slog.Logger) *Materializer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	client := resty.New()
	if opts.Client != nil {
		client = resty.NewWithClient(opts.Client)
	}
	client.SetTimeout(opts.Timeout).
		SetHeaders(opts.Headers)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Materializer{
		client:   client,
		resolver: res,
		logger:   logger.With("component", "materializer"),
	}
}

// Materialize writes the image behind rawURL to target, replacing any
// previous file. Unsupported schemes are skipped without error. Failures of
// the image itself satisfy errors.Is(err, ErrDownloadFailure); any other
// error comes from the local file system or a cancelled context.
func (m *Materializer) Materialize(ctx context.Context, rawURL, target string) (Outcome, error) {
	u := m.resolver.Resolve(rawURL)
	if u == "" {
		return Skipped, nil
	}

	if resolver.IsInline(u) {
		data, err := decodeInline(u)
		if err != nil {
			return Skipped, &DownloadError{URL: truncate(u), Err: err}
		}
		if err := storage.WriteBytes(target, data); err != nil {
			return Skipped, err
		}
		return Saved, nil
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return Skipped, &DownloadError{URL: u, Err: err}
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return m.fetch(ctx, u, target)
	default:
		m.logger.Debug("unsupported image scheme", "url", u)
		return Skipped, nil
	}
}

func (m *Materializer) fetch(ctx context.Context, u, target string) (Outcome, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Skipped, ctxErr
		}
		return Skipped, &DownloadError{URL: u, Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return Skipped, &DownloadError{URL: u, StatusCode: resp.StatusCode()}
	}

	br := bufio.NewReaderSize(body, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return Skipped, &DownloadError{URL: u, Err: err}
	}
	if len(head) == 0 {
		return Skipped, &DownloadError{URL: u, Err: errors.New("empty body")}
	}
	if mt := mimetype.Detect(head); !strings.HasPrefix(mt.String(), "image/") {
		return Skipped, &DownloadError{URL: u, Err: fmt.Errorf("unexpected content type %s", mt.String())}
	}

	src := &trackingReader{r: br}
	if err := storage.WriteFile(target, src); err != nil {
		if src.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Skipped, ctxErr
			}
			return Skipped, &DownloadError{URL: u, Err: src.err}
		}
		return Skipped, err
	}
	return Saved, nil
}

// trackingReader remembers read errors so a broken response body can be
// told apart from a local write failure.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}

func decodeInline(u string) ([]byte, error) {
	header, payload, ok := strings.Cut(u, ",")
	if !ok {
		return nil, errors.New("malformed data url")
	}
	var data []byte
	if strings.HasSuffix(strings.ToLower(header), ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			return nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
		data = []byte(unescaped)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty payload")
	}
	return data, nil
}

func truncate(u string) string {
	if len(u) > 64 {
		return u[:64] + "..."
	}
	return u
}
