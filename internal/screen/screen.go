// Package screen describes the host page stack and the last viewed page
// record used for screen view and engagement tracking.
package screen

import (
	"net/url"
	"sort"
	"strings"
	"sync"

	"clickstream/internal/events"
	"clickstream/internal/storage"
)

// Page is one entry of the host page stack.
type Page struct {
	ID      string
	Route   string
	Options map[string]string
	Title   string
}

// FullRoute returns the route with its options as a query string.
func (p Page) FullRoute() string {
	if len(p.Options) == 0 {
		return p.Route
	}
	return p.Route + "?" + QueryString(p.Options)
}

// QueryString encodes options in key order, escaping spaces as %20.
func QueryString(options map[string]string) string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, escape(k)+"="+escape(options[k]))
	}
	return strings.Join(parts, "&")
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Registry exposes the host page stack, oldest first.
type Registry interface {
	Pages() []Page
}

// Current returns the top of the stack.
func Current(r Registry) (Page, bool) {
	if r == nil {
		return Page{}, false
	}
	pages := r.Pages()
	if len(pages) == 0 {
		return Page{}, false
	}
	return pages[len(pages)-1], true
}

// Previous returns the page below the top of the stack.
func Previous(r Registry) (Page, bool) {
	if r == nil {
		return Page{}, false
	}
	pages := r.Pages()
	if len(pages) < 2 {
		return Page{}, false
	}
	return pages[len(pages)-2], true
}

// Attributes returns the screen attributes of the current stack. Missing
// pages contribute empty strings.
func Attributes(r Registry) events.Attributes {
	current, _ := Current(r)
	previous, _ := Previous(r)
	return events.Attributes{
		{Name: events.AttrScreenID, Value: current.ID},
		{Name: events.AttrScreenRoute, Value: current.FullRoute()},
		{Name: events.AttrPreviousScreenID, Value: previous.ID},
		{Name: events.AttrPreviousScreenRoute, Value: previous.FullRoute()},
	}
}

// Stack is an in-memory Registry hosts push pages onto.
type Stack struct {
	mu    sync.RWMutex
	pages []Page
}

func NewStack(pages ...Page) *Stack {
	return &Stack{pages: pages}
}

func (s *Stack) Pages() []Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Page, len(s.pages))
	copy(out, s.pages)
	return out
}

// Push navigates to p.
func (s *Stack) Push(p Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, p)
}

// Pop navigates back, returning false on an empty stack.
func (s *Stack) Pop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return false
	}
	s.pages = s.pages[:len(s.pages)-1]
	return true
}

// Replace swaps the top of the stack for p.
func (s *Stack) Replace(p Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		s.pages = append(s.pages, p)
		return
	}
	s.pages[len(s.pages)-1] = p
}

// PageInfo is the persisted last viewed page. A zero Timestamp means its
// engagement was already recorded.
type PageInfo struct {
	ID        string `json:"id"`
	Route     string `json:"route"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
}

// DefaultPageInfo stands in when no page was viewed yet.
var DefaultPageInfo = PageInfo{
	ID:    events.NotApplicable,
	Route: events.NotApplicable,
	Name:  events.NotApplicable,
}

// Viewed reports whether the record refers to a real page.
func (p PageInfo) Viewed() bool {
	return p.ID != events.NotApplicable
}

// EngagementPending reports whether engagement time on the page has not
// been recorded yet.
func (p PageInfo) EngagementPending() bool {
	return p.Viewed() && p.Timestamp > 0
}

// LoadLast reads the last viewed page, falling back to DefaultPageInfo.
func LoadLast(store storage.Store) (PageInfo, error) {
	info := DefaultPageInfo
	found, err := storage.GetJSON(store, storage.KeyPageInfo, &info)
	if err != nil || !found {
		return DefaultPageInfo, err
	}
	return info, nil
}

// SaveLast persists the last viewed page.
func SaveLast(store storage.Store, info PageInfo) error {
	return storage.SetJSON(store, storage.KeyPageInfo, info)
}
