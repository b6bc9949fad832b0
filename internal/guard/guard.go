// Package guard decides whether a request may reach a protected view and
// provides the net/http middleware that enforces the decision.
package guard

import (
	"agrispy.dev/agrispy/internal/identity"
)

// Decision is the outcome of evaluating a navigation.
type Decision int

const (
	// Allow renders the protected view.
	Allow Decision = iota
	// Pending renders a placeholder while a session operation is outstanding.
	Pending
	// RedirectLogin sends an anonymous visitor to the login page.
	RedirectLogin
	// RedirectHome sends a signed-in operator without the required role home.
	RedirectHome
)

// Redirect targets.
const (
	LoginPath = "/login"
	HomePath  = "/"
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Pending:
		return "pending"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Location returns the redirect target, or "" for non-redirect decisions.
func (d Decision) Location() string {
	switch d {
	case RedirectLogin:
		return LoginPath
	case RedirectHome:
		return HomePath
	default:
		return ""
	}
}

// Evaluate decides a navigation. ok reports whether id is set; an empty
// allowed set admits every role.
func Evaluate(id identity.Identity, ok, loading bool, allowed ...identity.Role) Decision {
	switch {
	case loading:
		return Pending
	case !ok:
		return RedirectLogin
	case len(allowed) > 0 && !id.HasRole(allowed...):
		return RedirectHome
	default:
		return Allow
	}
}
