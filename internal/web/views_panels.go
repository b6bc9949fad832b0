package web

import (
	"context"
	"time"

	"github.com/a-h/templ"

	"agrispy.dev/agrispy/internal/archive"
	"agrispy.dev/agrispy/internal/fixtures"
	"agrispy.dev/agrispy/internal/settings"
	"agrispy.dev/agrispy/internal/telemetry"
)

func monitoringView(st telemetry.Status) templ.Component {
	return view(func(ctx context.Context, h *htmlWriter) {
		h.raw("<h1>Live Monitoring</h1>")
		h.component(ctx, telemetryPanel(st))
	})
}

// telemetryPanel is the polled reading fragment.
func telemetryPanel(st telemetry.Status) templ.Component {
	return view(func(_ context.Context, h *htmlWriter) {
		h.raw(`<section id="telemetry" hx-get="/api/telemetry" hx-trigger="every 5s" hx-swap="outerHTML">`)
		h.raw(`<p class="last-updated">Last updated `)
		h.text(st.LastUpdated.Local().Format(time.TimeOnly))
		h.raw(`</p><dl class="readings">`)
		for _, f := range st.Reading.Fields() {
			h.raw("<dt>")
			h.text(f.Label)
			h.raw("</dt><dd")
			h.attr("data-field", f.Name)
			h.raw(">")
			h.textf("%.1f %s", f.Value, f.Unit)
			h.raw("</dd>")
		}
		h.raw(`</dl><form method="post" action="/monitoring/refresh" hx-post="/monitoring/refresh" hx-target="#telemetry" hx-swap="outerHTML">`)
		h.raw("<button type=\"submit\"")
		h.flag("disabled", st.Refreshing)
		h.raw(">")
		if st.Refreshing {
			h.raw("Refreshing...")
		} else {
			h.raw("Refresh")
		}
		h.raw("</button></form></section>")
	})
}

func pesticidesView(products []fixtures.PesticidePerformance, selected fixtures.PesticidePerformance) templ.Component {
	return view(func(_ context.Context, h *htmlWriter) {
		h.raw(`<h1>Pesticide Recommendations</h1><ul class="products">`)
		for _, p := range products {
			h.raw("<li><a")
			h.attr("href", "/pesticides?product="+p.ID)
			if p.ID == selected.ID {
				h.attr("aria-current", "true")
			}
			h.raw(">")
			h.text(p.Name)
			h.raw("</a> ")
			h.textf("peak %d%%", p.Peak())
			h.raw("</li>")
		}
		h.raw(`</ul><article class="product" id="selected-product"><h2>`)
		h.text(selected.Name)
		h.raw(`</h2><p class="recommendation">`)
		h.text(selected.Recommendation)
		h.raw(`</p><table><thead><tr><th>Time</th><th>Effectiveness</th></tr></thead><tbody>`)
		for _, pt := range selected.Curve() {
			h.raw("<tr><td>")
			h.text(pt.Label)
			h.raw("</td><td>")
			h.textf("%d%%", pt.Value)
			h.raw("</td></tr>")
		}
		h.raw("</tbody></table></article>")
	})
}

func droneView(st telemetry.DroneState, profile fixtures.DroneProfile, problem string) templ.Component {
	return view(func(ctx context.Context, h *htmlWriter) {
		h.raw("<h1>Drone Control</h1>")
		h.raw(`<p class="drone-profile">`)
		h.textf("%s · serial %s · firmware %s · %s", profile.Model, profile.Serial, profile.Firmware, profile.HomeBase)
		h.raw("</p>")
		h.component(ctx, dronePanel(st, problem))
	})
}

// dronePanel is the controls fragment. It polls while spraying so the
// battery drain shows up.
func dronePanel(st telemetry.DroneState, problem string) templ.Component {
	toggle := func(h *htmlWriter, action, label string, on bool) {
		h.raw("<form")
		h.attr("method", "post")
		h.attr("action", action)
		h.attr("hx-post", action)
		h.raw(` hx-target="#drone" hx-swap="outerHTML"><button type="submit"`)
		h.attr("aria-pressed", boolText(on))
		h.raw(">")
		h.text(label)
		h.raw("</button></form>")
	}

	return view(func(_ context.Context, h *htmlWriter) {
		h.raw(`<section id="drone"`)
		if st.Spraying {
			h.raw(` hx-get="/api/drone" hx-trigger="every 3s" hx-swap="outerHTML"`)
		}
		h.raw(">")
		if problem != "" {
			h.raw(`<p class="error" role="alert">`)
			h.text(problem)
			h.raw("</p>")
		}

		h.raw("<dl><dt>Battery</dt><dd")
		h.attr("class", "battery-"+telemetry.BatteryBand(st.Battery))
		h.raw(` data-field="battery">`)
		h.textf("%.1f%%", st.Battery)
		h.raw(`</dd><dt>Spraying</dt><dd data-field="spraying">`)
		h.text(onOff(st.Spraying))
		h.raw(`</dd><dt>Camera</dt><dd data-field="camera">`)
		h.text(onOff(st.Camera))
		h.raw(`</dd><dt>Sensors</dt><dd data-field="sensors">`)
		h.text(onOff(st.Sensors))
		h.raw(`</dd><dt>Flight path</dt><dd data-field="flight-path">`)
		if st.FlightPath == "" {
			h.raw("none")
		} else {
			h.text(st.FlightPath)
		}
		h.raw("</dd></dl>")

		sprayLabel := "Start spraying"
		if st.Spraying {
			sprayLabel = "Stop spraying"
		}
		toggle(h, "/drone/spray", sprayLabel, st.Spraying)
		toggle(h, "/drone/camera", "Camera", st.Camera)
		toggle(h, "/drone/sensors", "Sensors", st.Sensors)

		h.raw(`<form method="post" action="/drone/flight-path" enctype="multipart/form-data" hx-post="/drone/flight-path" hx-encoding="multipart/form-data" hx-target="#drone" hx-swap="outerHTML">`)
		h.raw(`<label>Flight path <input type="file" name="flight_path" accept=".json,.csv"></label><button type="submit">Upload</button></form>`)
		toggle(h, "/drone/reset", "Reset controls", false)
		h.raw("</section>")
	})
}

type reportsData struct {
	Report         fixtures.Report
	History        []archive.ArchivedReading
	Error          string
	HistoryError   string
	HistoryEnabled bool
}

func reportsView(d reportsData) templ.Component {
	options := func(h *htmlWriter, name string, values []string, selected string) {
		h.raw("<select")
		h.attr("name", name)
		h.raw(">")
		for _, v := range append([]string{fixtures.AllFilter}, values...) {
			h.raw("<option")
			h.attr("value", v)
			h.flag("selected", v == selected)
			h.raw(">")
			h.text(v)
			h.raw("</option>")
		}
		h.raw("</select>")
	}

	return view(func(_ context.Context, h *htmlWriter) {
		r := d.Report
		h.raw("<h1>Reports</h1>")
		if d.Error != "" {
			h.raw(`<p class="error" role="alert">`)
			h.text(d.Error)
			h.raw("</p>")
		}

		h.raw(`<form method="get" action="/reports" class="filters"><label>From <input type="date" name="from"`)
		h.attr("value", r.Filter.From.Format(fixtures.DateLayout))
		h.raw(`></label><label>To <input type="date" name="to"`)
		h.attr("value", r.Filter.To.Format(fixtures.DateLayout))
		h.raw("></label><label>Crop ")
		options(h, "crop", fixtures.CropTypes(), r.Filter.Crop)
		h.raw("</label><label>Location ")
		options(h, "location", fixtures.Locations(), r.Filter.Location)
		h.raw(`</label><button type="submit">Apply</button></form>`)

		h.raw(`<dl class="summary"><dt>Days</dt><dd data-field="days">`)
		h.textf("%d", len(r.Days))
		h.raw(`</dd><dt>Pest alerts</dt><dd data-field="pest-alerts">`)
		h.textf("%d", r.TotalPestAlerts)
		h.raw(`</dd><dt>Applications</dt><dd data-field="applications">`)
		h.textf("%d", r.TotalApplications)
		h.raw(`</dd><dt>Average crop health</dt><dd data-field="crop-health">`)
		h.textf("%.1f", r.AverageCropHealth)
		h.raw(`</dd><dt>Average soil moisture</dt><dd data-field="soil-moisture">`)
		h.textf("%.1f%%", r.AverageSoilMoisture)
		h.raw("</dd></dl>")

		h.raw(`<table class="history"><thead><tr><th>Date</th><th>Pest alerts</th><th>Pesticides applied</th><th>Crop health</th><th>Soil moisture</th></tr></thead><tbody>`)
		for _, day := range r.Days {
			h.raw("<tr><td>")
			h.text(day.Date.Format(fixtures.DateLayout))
			h.raw("</td><td>")
			h.textf("%d", day.PestAlerts)
			h.raw("</td><td>")
			h.textf("%d", day.PesticidesApplied)
			h.raw("</td><td>")
			h.textf("%d", day.CropHealthIndex)
			h.raw("</td><td>")
			h.textf("%d%%", day.SoilMoisture)
			h.raw("</td></tr>")
		}
		h.raw("</tbody></table>")

		if !d.HistoryEnabled {
			return
		}
		h.raw(`<section id="sensor-history"><h2>Sensor history</h2>`)
		switch {
		case d.HistoryError != "":
			h.raw(`<p class="error">`)
			h.text(d.HistoryError)
			h.raw("</p>")
		case len(d.History) == 0:
			h.raw("<p>No archived readings yet.</p>")
		default:
			h.raw(`<table><thead><tr><th>Time</th><th>Source</th><th>Temperature</th><th>Humidity</th><th>Soil moisture</th><th>Gas level</th></tr></thead><tbody>`)
			for _, a := range d.History {
				h.raw("<tr><td>")
				h.text(a.Timestamp.Local().Format(time.DateTime))
				h.raw("</td><td>")
				h.text(a.Source)
				h.raw("</td><td>")
				h.textf("%.1f", a.Temperature)
				h.raw("</td><td>")
				h.textf("%.1f", a.Humidity)
				h.raw("</td><td>")
				h.textf("%.1f", a.SoilMoisture)
				h.raw("</td><td>")
				h.textf("%.1f", a.GasLevel)
				h.raw("</td></tr>")
			}
			h.raw("</tbody></table>")
		}
		h.raw("</section>")
	})
}

type settingsData struct {
	Prefs settings.Preferences
	Error string
	Saved bool
}

func settingsView(d settingsData) templ.Component {
	checkbox := func(h *htmlWriter, name, label string, on bool) {
		h.raw(`<label><input type="checkbox"`)
		h.attr("name", name)
		h.raw(` value="on"`)
		h.flag("checked", on)
		h.raw("> ")
		h.text(label)
		h.raw("</label>")
	}

	return view(func(_ context.Context, h *htmlWriter) {
		h.raw("<h1>Settings</h1>")
		if d.Saved {
			h.raw(`<p class="notice" role="status">Settings saved</p>`)
		}
		if d.Error != "" {
			h.raw(`<p class="error" role="alert">`)
			h.text(d.Error)
			h.raw("</p>")
		}

		h.raw(`<form method="post" action="/settings"><label>Language <select name="language">`)
		for _, l := range settings.Languages() {
			h.raw("<option")
			h.attr("value", string(l))
			h.flag("selected", l == d.Prefs.Language)
			h.raw(">")
			h.text(string(l))
			h.raw("</option>")
		}
		h.raw("</select></label><fieldset><legend>Notifications</legend>")
		checkbox(h, "email", "Email", d.Prefs.Notifications.Email)
		checkbox(h, "push", "Push", d.Prefs.Notifications.Push)
		checkbox(h, "sms", "SMS", d.Prefs.Notifications.SMS)
		h.raw("</fieldset>")
		checkbox(h, "dark_mode", "Dark mode", d.Prefs.DarkMode)
		h.raw(`<button type="submit">Save</button></form>`)
	})
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
