package model

import "time"

type FilterAction string

const (
	FilterActionWarn FilterAction = "warn"
	FilterActionHide FilterAction = "hide"
)

// Filter is one per-account keyword/status filter as stored.
type Filter struct {
	Id        string       `json:"id"`
	AccountId string       `json:"account_id"`
	Title     string       `json:"title"`
	Action    FilterAction `json:"action"`
	Keywords  []string     `json:"keywords,omitempty"`
	StatusIds []string     `json:"status_ids,omitempty"`
	WithQuote bool         `json:"with_quote"`

	ExcludeFollows bool `json:"exclude_follows"`
	ExcludeLocal   bool `json:"exclude_localusers"`

	ExpiresAt time.Time `json:"expires_at"`
}

func (f Filter) Expired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && !f.ExpiresAt.After(now)
}

// FilterVerdict reports which parts of a filter matched a status, for
// downstream UI annotation.
type FilterVerdict struct {
	Filter         Filter   `json:"filter"`
	KeywordMatches []string `json:"keyword_matches,omitempty"`
	StatusMatches  []string `json:"status_matches,omitempty"`
}
