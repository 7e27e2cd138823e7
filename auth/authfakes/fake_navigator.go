package authfakes

import (
	"net/url"
	"sync"

	"github.com/laagencias/go-panel-auth/auth"
)

var _ auth.Navigator = (*FakeNavigator)(nil)

// Navigation records a single NavigateTo call.
type Navigation struct {
	Route string
	Query url.Values
}

// FakeNavigator records navigations and serves a configurable current route.
type FakeNavigator struct {
	mu          sync.Mutex
	route       string
	navigations []Navigation
}

func NewFakeNavigator(currentRoute string) *FakeNavigator {
	return &FakeNavigator{route: currentRoute}
}

func (fn *FakeNavigator) NavigateTo(route string, query url.Values) {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	fn.route = route
	fn.navigations = append(fn.navigations, Navigation{Route: route, Query: query})
}

func (fn *FakeNavigator) CurrentRoute() string {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	return fn.route
}

// SetCurrentRoute overrides the current route without recording a navigation.
func (fn *FakeNavigator) SetCurrentRoute(route string) {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	fn.route = route
}

// Navigations returns a copy of the recorded navigations.
func (fn *FakeNavigator) Navigations() []Navigation {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	out := make([]Navigation, len(fn.navigations))
	copy(out, fn.navigations)
	return out
}
