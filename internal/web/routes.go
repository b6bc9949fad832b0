package web

import (
	"net/http"

	"agrispy.dev/agrispy/internal/guard"
	"agrispy.dev/agrispy/internal/identity"
	"agrispy.dev/agrispy/pkg/metrics"
)

// reportRoles may open the reports view.
var reportRoles = []identity.Role{identity.RoleAdmin, identity.RoleResearcher}

// Handler returns the dashboard's routes wrapped in request metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /signup", s.handleSignupPage)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("POST /logout", s.handleLogout)

	// Signed-in operators
	auth := func(h http.HandlerFunc) http.Handler { return s.guard.RequireAuth(h) }

	mux.Handle("GET /{$}", auth(s.handleDashboard))
	mux.Handle("GET /monitoring", auth(s.handleMonitoring))
	mux.Handle("POST /monitoring/refresh", auth(s.handleRefresh))
	mux.Handle("GET /api/telemetry", auth(s.handleAPITelemetry))
	mux.Handle("GET /pesticides", auth(s.handlePesticides))
	mux.Handle("GET /drone", auth(s.handleDrone))
	mux.Handle("GET /api/drone", auth(s.handleAPIDrone))
	mux.Handle("POST /drone/spray", auth(s.droneAction(s.config.Drone.ToggleSpraying)))
	mux.Handle("POST /drone/camera", auth(s.droneAction(s.config.Drone.ToggleCamera)))
	mux.Handle("POST /drone/sensors", auth(s.droneAction(s.config.Drone.ToggleSensors)))
	mux.Handle("POST /drone/reset", auth(s.droneAction(s.config.Drone.Reset)))
	mux.Handle("POST /drone/flight-path", auth(s.handleFlightPath))
	mux.Handle("GET /settings", auth(s.handleSettings))
	mux.Handle("POST /settings", auth(s.handleSaveSettings))

	// Administrators and researchers
	mux.Handle("GET /reports", s.guard.RequireRole(http.HandlerFunc(s.handleReports), reportRoles...))

	// Anything else goes home
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		guard.Redirect(w, r, guard.HomePath)
	})

	return s.instrument(mux)
}
