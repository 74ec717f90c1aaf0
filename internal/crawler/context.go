package crawler

import (
	"time"

	"github.com/maltedev/catalog-crawler/internal/site"
)

type State int

const (
	StateAuthenticating State = iota
	StateListing
	StateDetail
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateListing:
		return "listing"
	case StateDetail:
		return "detail"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Stats struct {
	Pages          int       `json:"pages"`
	Products       int       `json:"products"`
	ImagesSaved    int       `json:"images_saved"`
	ImagesFailed   int       `json:"images_failed"`
	PartialDetails int       `json:"partial_details"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
}

// Progress is a snapshot handed to Options.OnProgress at every state change.
type Progress struct {
	State   State
	Page    int
	Product string
	Stats   Stats

	// dirs maps each product directory written this run to the detail URL
	// of the product that owns it.
	dirs map[string]string
}

// CrawlContext carries the state of one run through every step.
type CrawlContext struct {
	Page    Page
	Rules   *site.Ruleset
	State   State
	Current int
	Product string
	Stats   Stats

	// dirs maps each product directory written this run to the detail URL
	// of the product that owns it.
	dirs map[string]string
}
