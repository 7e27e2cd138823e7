package main

import (
	"net/url"
	"sync"

	"github.com/rs/zerolog"
)

// cliNavigator stands in for the dashboard router: it remembers the current
// route and logs where the session layer wants the user to go.
type cliNavigator struct {
	logger zerolog.Logger
	mu     sync.Mutex
	route  string
}

func (n *cliNavigator) NavigateTo(route string, query url.Values) {
	n.mu.Lock()
	n.route = route
	n.mu.Unlock()

	event := n.logger.Info().Str("route", route)
	if len(query) > 0 {
		event = event.Str("query", query.Encode())
	}
	event.Msg("navigate")
}

func (n *cliNavigator) CurrentRoute() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}
