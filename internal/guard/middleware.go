package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"agrispy.dev/agrispy/internal/identity"
	"agrispy.dev/agrispy/pkg/metrics"
)

// DefaultRetryAfter is how long the pending placeholder asks the browser to
// wait before retrying.
const DefaultRetryAfter = time.Second

// IdentitySource exposes the current identity.
type IdentitySource interface {
	Current() (identity.Identity, bool)
}

// LoadingSource reports whether a session operation is outstanding.
type LoadingSource interface {
	Loading() bool
}

// Config configures a Guard.
type Config struct {
	Identities IdentitySource
	Session    LoadingSource
	Logger     *slog.Logger
	// Metrics is optional.
	Metrics *metrics.WebMetrics
	// Placeholder renders the Pending page. Defaults to a plain text page.
	Placeholder http.Handler
	RetryAfter  time.Duration
}

// Guard wraps handlers with authentication and role checks.
type Guard struct {
	cfg Config
}

// New returns a Guard. Identities and Session are required.
func New(cfg Config) (*Guard, error) {
	if cfg.Identities == nil {
		return nil, errors.New("identity source cannot be nil")
	}
	if cfg.Session == nil {
		return nil, errors.New("session cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = DefaultRetryAfter
	}
	if cfg.Placeholder == nil {
		cfg.Placeholder = http.HandlerFunc(defaultPlaceholder)
	}
	return &Guard{cfg: cfg}, nil
}

// RequireAuth admits any signed-in operator.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return g.RequireRole(next)
}

// RequireRole admits signed-in operators holding one of roles. With no roles
// it behaves like RequireAuth.
func (g *Guard) RequireRole(next http.Handler, roles ...identity.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.cfg.Identities.Current()
		decision := Evaluate(id, ok, g.cfg.Session.Loading(), roles...)

		if g.cfg.Metrics != nil {
			g.cfg.Metrics.GuardDecisions.WithLabelValues(decision.String()).Inc()
		}

		switch decision {
		case Allow:
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		case Pending:
			w.Header().Set("Refresh", strconv.Itoa(int(g.cfg.RetryAfter.Round(time.Second).Seconds())))
			w.Header().Set("Cache-Control", "no-store")
			g.cfg.Placeholder.ServeHTTP(w, r)
		default:
			g.cfg.Logger.Debug("guard redirect",
				"path", r.URL.Path,
				"decision", decision.String(),
				"location", decision.Location(),
			)
			Redirect(w, r, decision.Location())
		}
	})
}

// Redirect sends a 303 to location, or an HX-Redirect header for htmx
// requests so the whole page navigates.
func Redirect(w http.ResponseWriter, r *http.Request, location string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", location)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func defaultPlaceholder(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Loading..."))
}

type contextKey struct{}

// WithIdentity stores id in ctx for downstream handlers.
func WithIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity the guard admitted.
func FromContext(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(identity.Identity)
	return id, ok
}
