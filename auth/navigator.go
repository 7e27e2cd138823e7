package auth

import "net/url"

// Dashboard routes the session layer navigates to. The UI owns everything
// else.
const (
	RouteSignIn    = "/signin"
	RouteSignUp    = "/signup"
	RouteCalendar  = "/calendar"
	RouteDashboard = "/"
)

// ReturnURLParam carries the route to restore after re-authentication.
const ReturnURLParam = "returnUrl"

// Navigator is the UI-side routing collaborator. The session manager tells
// it where the user should land; the request pipeline asks it where the user
// currently is before a forced sign-out redirect.
type Navigator interface {
	NavigateTo(route string, query url.Values)
	CurrentRoute() string
}
