package web

import (
	"bytes"
	"net/http"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"

	"agrispy.dev/agrispy/internal/guard"
	"agrispy.dev/agrispy/pkg/metrics"
)

// render buffers c and writes it with status. A failed render becomes a 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, c templ.Component) {
	var buf bytes.Buffer

	//nolint:contextcheck // Context is passed to Templ's Render method
	err := trackTemplateRender(s.config.Metrics, name, func() error {
		return c.Render(r.Context(), &buf)
	})
	if err != nil {
		s.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Error("failed to write response", "template", name, "error", err)
	}
}

// renderPage wraps body in the site layout.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name, title string, body templ.Component) {
	data := layoutData{
		Title:    title,
		Path:     r.URL.Path,
		DarkMode: s.config.Settings.Load(r.Context()).DarkMode,
	}
	data.User, data.SignedIn = guard.FromContext(r.Context())

	s.render(w, r, status, name, layout(data, body))
}

// trackTemplateRender wraps template rendering with metrics tracking.
func trackTemplateRender(m *metrics.WebMetrics, templateName string, renderFunc func() error) error {
	if m == nil {
		return renderFunc()
	}

	timer := prometheus.NewTimer(m.TemplateRenderTime.WithLabelValues(templateName))
	defer timer.ObserveDuration()

	if err := renderFunc(); err != nil {
		m.TemplateRenderErrors.WithLabelValues(templateName).Inc()
		return err
	}

	return nil
}
