package crawler

import (
	"time"

	"github.com/maltedev/catalog-crawler/internal/browser"
	"github.com/maltedev/catalog-crawler/internal/site"
)

type Options struct {
	StartPage    int
	ReadyTimeout time.Duration
	RevealSteps  int

	// EmptyPageRetries is how many times an empty listing page is loaded
	// again before it is taken as the end of the catalog.
	EmptyPageRetries int
	Backoff          browser.Backoff
	Credentials      site.Credentials
	OnProgress       func(Progress)
}

func DefaultOptions() Options {
	return Options{
		StartPage:        1,
		ReadyTimeout:     5 * time.Second,
		RevealSteps:      8,
		EmptyPageRetries: 1,
		Backoff:          browser.Backoff{Initial: 500 * time.Millisecond, Max: 5 * time.Second},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StartPage < 1 {
		o.StartPage = d.StartPage
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = d.ReadyTimeout
	}
	if o.RevealSteps < 0 {
		o.RevealSteps = 0
	}
	if o.EmptyPageRetries < 0 {
		o.EmptyPageRetries = 0
	}
	if o.Backoff.Initial <= 0 {
		o.Backoff = d.Backoff
	}
	return o
}
