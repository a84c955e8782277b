package model

import (
	"fmt"
	"strings"
)

// Filter narrows a page request to messages matching enrichment-derived
// fields. A zero Filter means the provider-paginated path; any set field
// switches the request to store-layer filtering.
type Filter struct {
	Category  string `json:"category,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
	Unread    *bool  `json:"unread,omitempty"`
}

func (f Filter) IsZero() bool {
	return f.Category == "" && f.Priority == "" && f.Sentiment == "" && f.Unread == nil
}

// Key returns a canonical string for request-identity keys, so two requests
// differing only in filters never collapse into one debounce entry.
func (f Filter) Key() string {
	if f.IsZero() {
		return "-"
	}
	parts := []string{f.Category, f.Priority, f.Sentiment}
	if f.Unread != nil {
		parts = append(parts, fmt.Sprintf("unread=%t", *f.Unread))
	}
	return strings.Join(parts, "|")
}
