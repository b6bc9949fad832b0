package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"agrispy.dev/agrispy/internal/archive"
	"agrispy.dev/agrispy/internal/fixtures"
	"agrispy.dev/agrispy/internal/guard"
	"agrispy.dev/agrispy/internal/session"
	"agrispy.dev/agrispy/internal/settings"
	"agrispy.dev/agrispy/internal/telemetry"
)

const (
	historyTimeout  = 5 * time.Second
	maxUploadMemory = 1 << 20
)

// handleHealth serves health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		s.logger.Error("failed to write health response", "error", err)
	}
}

// handleLoading is the guard's placeholder while a session operation runs.
func (s *Server) handleLoading(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "loading", loadingView())
}

// signedIn reports whether an identity is current.
func (s *Server) signedIn() bool {
	_, ok := s.config.Session.Identities().Current()
	return ok
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.signedIn() {
		guard.Redirect(w, r, guard.HomePath)
		return
	}
	s.renderPage(w, r, http.StatusOK, "login", "Sign in", loginView(loginData{}))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))

	err := s.config.Session.Login(r.Context(), email, r.PostFormValue("password"))
	if err == nil {
		guard.Redirect(w, r, guard.HomePath)
		return
	}

	status := http.StatusInternalServerError
	if errors.Is(err, session.ErrInvalidCredentials) {
		status = http.StatusUnauthorized
	}
	s.renderPage(w, r, status, "login", "Sign in", loginView(loginData{
		Email: email,
		Error: session.Message(err),
	}))
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	if s.signedIn() {
		guard.Redirect(w, r, guard.HomePath)
		return
	}
	s.renderPage(w, r, http.StatusOK, "signup", "Sign up", signupView(signupData{}))
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	form := session.SignupForm{
		Name:            strings.TrimSpace(r.PostFormValue("name")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
		Role:            r.PostFormValue("role"),
	}

	if errs := form.Validate(); errs != nil {
		s.renderPage(w, r, http.StatusUnprocessableEntity, "signup", "Sign up", signupView(signupData{Form: form, Errors: errs}))
		return
	}

	role, err := form.ParsedRole()
	if err != nil {
		s.renderPage(w, r, http.StatusUnprocessableEntity, "signup", "Sign up", signupView(signupData{
			Form:   form,
			Errors: session.FieldErrors{"role": "Role is invalid"},
		}))
		return
	}

	if err := s.config.Session.Signup(r.Context(), form.Name, form.Email, form.Password, role); err != nil {
		s.renderPage(w, r, http.StatusInternalServerError, "signup", "Sign up", signupView(signupData{
			Form:  form,
			Error: session.Message(err),
		}))
		return
	}

	guard.Redirect(w, r, guard.HomePath)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.config.Session.Logout(r.Context()); err != nil {
		// The in-memory identity is gone either way.
		s.logger.Warn("logout left a stale snapshot", "error", err)
	}
	guard.Redirect(w, r, guard.LoginPath)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	id, _ := guard.FromContext(r.Context())

	drone := fixtures.CurrentDroneStatus()
	drone.BatteryLevel = s.config.Drone.State().Battery

	s.renderPage(w, r, http.StatusOK, "dashboard", "Dashboard", dashboardView(dashboardData{
		Now:          now,
		User:         id,
		CropHealth:   fixtures.CurrentCropHealth(),
		Distribution: fixtures.HealthDistribution(),
		Alerts:       fixtures.PestAlerts(now),
		Soil:         fixtures.CurrentSoilCondition(),
		Pesticide:    fixtures.CurrentPesticideStatus(now),
		Drone:        drone,
	}))
}

func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, "monitoring", "Live Monitoring", monitoringView(s.config.Monitor.Status()))
}

func (s *Server) handleAPITelemetry(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "telemetry_panel", telemetryPanel(s.config.Monitor.Status()))
}

// handleRefresh commits a manual refresh and returns the updated panel, or
// sends a plain form post back to the monitoring page.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := s.config.Monitor.RefreshNow(r.Context()); err != nil {
		switch {
		case errors.Is(err, telemetry.ErrStopped):
			http.Error(w, "Monitoring stopped", http.StatusServiceUnavailable)
		case r.Context().Err() != nil:
			s.logger.Debug("refresh abandoned by client", "error", err)
		default:
			s.logger.Error("failed to refresh telemetry", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	if !isHTMX(r) {
		guard.Redirect(w, r, "/monitoring")
		return
	}
	s.render(w, r, http.StatusOK, "telemetry_panel", telemetryPanel(s.config.Monitor.Status()))
}

func (s *Server) handlePesticides(w http.ResponseWriter, r *http.Request) {
	products := fixtures.PesticidePerformances()
	selected := products[0]

	if id := r.URL.Query().Get("product"); id != "" {
		p, ok := fixtures.FindPesticide(id)
		if !ok {
			http.Error(w, "Pesticide not found", http.StatusNotFound)
			return
		}
		selected = p
	}

	s.renderPage(w, r, http.StatusOK, "pesticides", "Pesticides", pesticidesView(products, selected))
}

func (s *Server) handleDrone(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, "drone", "Drone Control", droneView(s.config.Drone.State(), s.profile, ""))
}

func (s *Server) handleAPIDrone(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "drone_panel", dronePanel(s.config.Drone.State(), ""))
}

// droneAction applies a control and answers with the panel fragment for htmx
// or a redirect back to the drone page.
func (s *Server) droneAction(action func() telemetry.DroneState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondDrone(w, r, http.StatusOK, action(), "")
	}
}

func (s *Server) respondDrone(w http.ResponseWriter, r *http.Request, status int, st telemetry.DroneState, problem string) {
	switch {
	case isHTMX(r):
		s.render(w, r, status, "drone_panel", dronePanel(st, problem))
	case problem != "":
		s.renderPage(w, r, status, "drone", "Drone Control", droneView(st, s.profile, problem))
	default:
		guard.Redirect(w, r, "/drone")
	}
}

// handleFlightPath records the name of an uploaded flight plan. The file
// content is not interpreted.
func (s *Server) handleFlightPath(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxUploadMemory {
		s.rejectLargeUpload(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadMemory)

	var name string
	err := r.ParseMultipartForm(maxUploadMemory)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		s.rejectLargeUpload(w, r)
		return
	case err == nil:
		if file, header, err := r.FormFile("flight_path"); err == nil {
			name = header.Filename
			_ = file.Close()
		}
	}
	if name == "" {
		name = r.FormValue("name")
	}

	st, err := s.config.Drone.SetFlightPath(name)
	if err != nil {
		s.respondDrone(w, r, http.StatusBadRequest, st, "Flight path must be a .json or .csv file")
		return
	}

	s.logger.Info("flight path uploaded", "name", st.FlightPath)
	s.respondDrone(w, r, http.StatusOK, st, "")
}

func (s *Server) rejectLargeUpload(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("flight path upload too large", "content_length", r.ContentLength)
	s.respondDrone(w, r, http.StatusRequestEntityTooLarge, s.config.Drone.State(), "Flight path must be smaller than 1 MB")
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	q := r.URL.Query()

	status := http.StatusOK
	data := reportsData{HistoryEnabled: s.config.History != nil}

	filter, err := fixtures.ParseReportFilter(q.Get("from"), q.Get("to"), q.Get("crop"), q.Get("location"), now)
	if err != nil {
		status = http.StatusBadRequest
		data.Error = "Invalid report filter"
		if errors.Is(err, fixtures.ErrInvalidRange) {
			data.Error = "The end date must not be before the start date"
		}
		filter = fixtures.DefaultReportFilter(now)
	}
	data.Report = fixtures.BuildReport(filter, now)

	if s.config.History != nil {
		data.History, err = s.recentHistory(r.Context())
		if err != nil {
			data.HistoryError = "Sensor history is unavailable"
		}
	}

	s.renderPage(w, r, status, "reports", "Reports", reportsView(data))
}

func (s *Server) recentHistory(ctx context.Context) ([]archive.ArchivedReading, error) {
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	readings, err := s.config.History.RecentReadings(ctx, s.config.HistoryLimit)
	if err != nil {
		s.logger.Error("failed to fetch sensor history", "error", err)
		s.countArchiveCall("error")
		return nil, err
	}

	s.countArchiveCall("success")
	return readings, nil
}

func (s *Server) countArchiveCall(status string) {
	if s.config.Metrics != nil {
		s.config.Metrics.ArchiveCalls.WithLabelValues(status).Inc()
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	prefs := s.config.Settings.Load(r.Context())
	s.renderPage(w, r, http.StatusOK, "settings", "Settings", settingsView(settingsData{Prefs: prefs}))
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	checked := func(name string) bool { return r.PostFormValue(name) == "on" }
	prefs := settings.Preferences{
		Language: settings.Language(r.PostFormValue("language")),
		Notifications: settings.Notifications{
			Email: checked("email"),
			Push:  checked("push"),
			SMS:   checked("sms"),
		},
		DarkMode: checked("dark_mode"),
	}

	if err := s.config.Settings.Save(r.Context(), prefs); err != nil {
		status := http.StatusInternalServerError
		msg := "Settings could not be saved"
		if errors.Is(err, settings.ErrUnknownLanguage) {
			status = http.StatusBadRequest
			msg = "Unknown language"
		} else {
			s.logger.Error("failed to save settings", "error", err)
		}
		s.renderPage(w, r, status, "settings", "Settings", settingsView(settingsData{
			Prefs: s.config.Settings.Load(r.Context()),
			Error: msg,
		}))
		return
	}

	s.renderPage(w, r, http.StatusOK, "settings", "Settings", settingsView(settingsData{
		Prefs: s.config.Settings.Load(r.Context()),
		Saved: true,
	}))
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
