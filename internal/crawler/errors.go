package crawler

import (
	"errors"
	"fmt"
)

// ErrUnexpected marks a failure that aborts the run.
var ErrUnexpected = errors.New("unexpected crawl failure")

// Failure records where a run stopped.
type Failure struct {
	State State
	Page  int
	URL   string
	Err   error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("crawl failed while %s", f.State)
	if f.Page > 0 {
		msg += fmt.Sprintf(" (page %d)", f.Page)
	}
	if f.URL != "" {
		msg += " at " + f.URL
	}
	return msg + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Is(target error) bool { return target == ErrUnexpected }

func fail(cc *CrawlContext, url string, err error) error {
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return &Failure{State: cc.State, Page: cc.Current, URL: url, Err: err}
}
