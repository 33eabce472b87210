package config

import (
	"strings"
	"sync"
)

// Endpoint identifies a remote Workflow Engine instance: where it lives and
// the API key used against it.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// Normalize trims the trailing slash so path joining stays uniform.
func (e Endpoint) Normalize() Endpoint {
	e.BaseURL = strings.TrimRight(e.BaseURL, "/")
	return e
}

// Guard is the single-writer/multi-reader cell holding the active engine
// endpoint. Operator-driven rotation swaps it at runtime without
// reconstructing the HTTP client; readers always see a consistent pair.
type Guard struct {
	mu sync.RWMutex
	ep Endpoint
}

// NewGuard creates a guard holding the given endpoint.
func NewGuard(ep Endpoint) *Guard {
	return &Guard{ep: ep.Normalize()}
}

// Current returns the active endpoint.
func (g *Guard) Current() Endpoint {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ep
}

// Rotate swaps the active endpoint and returns the previous one, letting the
// caller decide whether the base URL actually changed (a changed instance
// invalidates the local mirror).
func (g *Guard) Rotate(ep Endpoint) Endpoint {
	ep = ep.Normalize()
	g.mu.Lock()
	defer g.mu.Unlock()
	prev := g.ep
	g.ep = ep
	return prev
}
