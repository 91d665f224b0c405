// Package endpoint models the downstream destinations of lead payloads.
package endpoint

import (
	"errors"
	"strings"
	"sync"
)

// Well-known endpoint names, in dispatch order.
const (
	Zapier    = "zapier"
	Pipedrive = "pipedrive"
	Email     = "email"
	Backup    = "backup"
)

// CriticalPriority is the highest priority number whose failures are queued.
const CriticalPriority = 2

// ErrInvalidName is returned for blank endpoint names.
var ErrInvalidName = errors.New("endpoint: name must not be empty")

var defaultPriorities = []struct {
	name     string
	priority int
}{
	{Zapier, 1},
	{Pipedrive, 2},
	{Email, 3},
	{Backup, 4},
}

// Endpoint is one configured HTTP destination. Lower priority numbers are more critical.
type Endpoint struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Priority int    `json:"priority"`
}

// Critical reports whether failures of this endpoint are durably queued.
func (e Endpoint) Critical() bool {
	return e.Priority <= CriticalPriority
}

// Configured reports whether the endpoint has a URL.
func (e Endpoint) Configured() bool {
	return strings.TrimSpace(e.URL) != ""
}

// Defaults returns the four standard endpoints with URLs taken from urls.
// Names missing from urls are kept with an empty URL.
func Defaults(urls map[string]string) []Endpoint {
	out := make([]Endpoint, 0, len(defaultPriorities))
	for _, d := range defaultPriorities {
		out = append(out, Endpoint{Name: d.name, URL: urls[d.name], Priority: d.priority})
	}
	return out
}

// Set is a concurrency-safe, ordered collection of endpoints.
type Set struct {
	mu        sync.RWMutex
	endpoints []Endpoint
}

// NewSet returns a Set holding eps in the given order.
func NewSet(eps ...Endpoint) *Set {
	return &Set{endpoints: append([]Endpoint(nil), eps...)}
}

// List returns a copy of all endpoints in configuration order.
func (s *Set) List() []Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Endpoint(nil), s.endpoints...)
}

// Get returns the endpoint with the given name.
func (s *Set) Get(name string) (Endpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.endpoints {
		if e.Name == name {
			return e, true
		}
	}
	return Endpoint{}, false
}

// SetURL changes the URL of name. Unknown names are appended after the
// existing endpoints with the next priority number.
func (s *Set) SetURL(name, url string) (Endpoint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Endpoint{}, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.endpoints {
		if s.endpoints[i].Name == name {
			s.endpoints[i].URL = url
			return s.endpoints[i], nil
		}
	}

	next := 1
	for _, e := range s.endpoints {
		if e.Priority >= next {
			next = e.Priority + 1
		}
	}
	e := Endpoint{Name: name, URL: url, Priority: next}
	s.endpoints = append(s.endpoints, e)
	return e, nil
}

// URLs returns the configured URLs keyed by name.
func (s *Set) URLs() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.endpoints))
	for _, e := range s.endpoints {
		out[e.Name] = e.URL
	}
	return out
}
