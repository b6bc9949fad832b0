package web

import (
	"context"
	"time"

	"github.com/a-h/templ"

	"agrispy.dev/agrispy/internal/fixtures"
	"agrispy.dev/agrispy/internal/guard"
	"agrispy.dev/agrispy/internal/identity"
	"agrispy.dev/agrispy/internal/session"
)

const htmxScript = "https://unpkg.com/htmx.org@2.0.3"

type layoutData struct {
	User     identity.Identity
	Title    string
	Path     string
	SignedIn bool
	DarkMode bool
}

type navLink struct {
	Href  string
	Label string
	Roles []identity.Role
}

var navLinks = []navLink{
	{Href: "/", Label: "Dashboard"},
	{Href: "/monitoring", Label: "Live Monitoring"},
	{Href: "/pesticides", Label: "Pesticides"},
	{Href: "/drone", Label: "Drone Control"},
	{Href: "/reports", Label: "Reports", Roles: reportRoles},
	{Href: "/settings", Label: "Settings"},
}

// showChrome reports whether path gets the navigation bar.
func showChrome(path string) bool {
	return path != guard.LoginPath && path != "/signup"
}

func layout(d layoutData, body templ.Component) templ.Component {
	return view(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.raw("<title>")
		h.text(d.Title)
		h.raw(" · AgriSpy</title>")
		h.raw(`<script src="`, htmxScript, `"></script></head><body`)
		if d.DarkMode {
			h.attr("class", "dark")
		}
		h.raw(">")

		if d.SignedIn && showChrome(d.Path) {
			h.raw(`<nav class="navbar"><a class="brand" href="/">AgriSpy</a><ul>`)
			for _, link := range navLinks {
				if len(link.Roles) > 0 && !d.User.HasRole(link.Roles...) {
					continue
				}
				h.raw("<li><a")
				h.attr("href", link.Href)
				if link.Href == d.Path {
					h.attr("aria-current", "page")
				}
				h.raw(">")
				h.text(link.Label)
				h.raw("</a></li>")
			}
			h.raw(`</ul><div class="user"><span class="user-name">`)
			h.text(d.User.Name)
			h.raw(`</span> <span class="user-role">`)
			h.text(d.User.Role.Label())
			h.raw(`</span><form method="post" action="/logout"><button type="submit">Sign out</button></form></div></nav>`)
		}

		h.raw("<main>")
		h.component(ctx, body)
		h.raw("</main></body></html>")
	})
}

func loadingView() templ.Component {
	return view(func(_ context.Context, h *htmlWriter) {
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Loading · AgriSpy</title></head>`)
		h.raw(`<body><main class="loading"><p>Loading...</p></main></body></html>`)
	})
}

type loginData struct {
	Email string
	Error string
}

func loginView(d loginData) templ.Component {
	return view(func(_ context.Context, h *htmlWriter) {
		h.raw(`<section class="auth"><h1>Sign in to AgriSpy</h1>`)
		if d.Error != "" {
			h.raw(`<p class="error" role="alert">`)
			h.text(d.Error)
			h.raw("</p>")
		}
		h.raw(`<form method="post" action="/login">`)
		h.raw(`<label>Email <input type="email" name="email" required`)
		h.attr("value", d.Email)
		h.raw(`></label>`)
		h.raw(`<label>Password <input type="password" name="password" required></label>`)
		h.raw(`<button type="submit">Sign in</button></form>`)
		h.raw(`<p class="hint">Demo account: `)
		h.text(session.DemoEmail)
		h.raw(" / ")
		h.text(session.DemoPassword)
		h.raw(`</p><p>No account? <a href="/signup">Sign up</a></p></section>`)
	})
}

type signupData struct {
	Form   session.SignupForm
	Errors session.FieldErrors
	Error  string
}

func signupView(d signupData) templ.Component {
	field := func(h *htmlWriter, label, name, kind, value string) {
		h.raw("<label>")
		h.text(label)
		h.raw(" <input")
		h.attr("type", kind)
		h.attr("name", name)
		if kind != "password" {
			h.attr("value", value)
		}
		h.raw("></label>")
		if msg, ok := d.Errors[name]; ok {
			h.raw(`<p class="field-error"`)
			h.attr("data-field", name)
			h.raw(">")
			h.text(msg)
			h.raw("</p>")
		}
	}

	return view(func(_ context.Context, h *htmlWriter) {
		h.raw(`<section class="auth"><h1>Create an account</h1>`)
		if d.Error != "" {
			h.raw(`<p class="error" role="alert">`)
			h.text(d.Error)
			h.raw("</p>")
		}
		h.raw(`<form method="post" action="/signup">`)
		field(h, "Full name", "name", "text", d.Form.Name)
		field(h, "Email", "email", "email", d.Form.Email)
		field(h, "Password", "password", "password", "")
		field(h, "Confirm password", "confirmPassword", "password", "")

		selected := d.Form.Role
		if selected == "" {
			selected = string(identity.RoleFarmer)
		}
		h.raw(`<label>Role <select name="role">`)
		for _, role := range identity.Roles() {
			h.raw("<option")
			h.attr("value", string(role))
			h.flag("selected", string(role) == selected)
			h.raw(">")
			h.text(role.Label())
			h.raw("</option>")
		}
		h.raw("</select></label>")
		if msg, ok := d.Errors["role"]; ok {
			h.raw(`<p class="field-error" data-field="role">`)
			h.text(msg)
			h.raw("</p>")
		}
		h.raw(`<button type="submit">Sign up</button></form>`)
		h.raw(`<p>Already registered? <a href="/login">Sign in</a></p></section>`)
	})
}

type dashboardData struct {
	Now          time.Time
	Pesticide    fixtures.PesticideStatus
	Alerts       []fixtures.PestAlert
	Distribution []fixtures.Point
	Drone        fixtures.DroneStatus
	Soil         fixtures.SoilCondition
	CropHealth   fixtures.CropHealth
	User         identity.Identity
}

func dashboardView(d dashboardData) templ.Component {
	return view(func(_ context.Context, h *htmlWriter) {
		h.raw("<h1>Welcome back, ")
		h.text(d.User.Name)
		h.raw("</h1><p class=\"last-login\">Last login ")
		h.text(d.User.LastLogin.Local().Format(time.RFC1123))
		h.raw(`</p><div class="cards">`)

		h.raw(`<article class="card" id="crop-health"><h2>Crop Health</h2><p class="metric">`)
		h.textf("%d", d.CropHealth.Index)
		h.raw(`</p><p class="status">`)
		h.text(d.CropHealth.Status)
		h.raw("</p><ul>")
		for _, p := range d.Distribution {
			h.raw("<li>")
			h.textf("%s: %d%%", p.Label, p.Value)
			h.raw("</li>")
		}
		h.raw("</ul></article>")

		h.raw(`<article class="card" id="pest-alerts"><h2>Pest Alerts</h2><ul>`)
		for _, a := range d.Alerts {
			h.raw("<li")
			h.attr("class", "severity-"+a.Severity)
			h.raw(">")
			h.textf("%s in %s (%s, %dh ago)", a.Type, a.Location, a.Severity, int(d.Now.Sub(a.Timestamp).Hours()))
			h.raw("</li>")
		}
		h.raw("</ul></article>")

		h.raw(`<article class="card" id="soil"><h2>Soil Condition</h2><dl>`)
		h.raw("<dt>Moisture</dt><dd>")
		h.textf("%d%%", d.Soil.Moisture)
		h.raw("</dd><dt>Temperature</dt><dd>")
		h.textf("%d °C", d.Soil.Temperature)
		h.raw("</dd><dt>pH</dt><dd>")
		h.textf("%.1f", d.Soil.PH)
		h.raw("</dd><dt>N / P / K</dt><dd>")
		h.textf("%d%% / %d%% / %d%%", d.Soil.Nutrients.Nitrogen, d.Soil.Nutrients.Phosphorus, d.Soil.Nutrients.Potassium)
		h.raw("</dd></dl></article>")

		h.raw(`<article class="card" id="pesticide"><h2>Pesticide Status</h2><p>`)
		h.text(d.Pesticide.Name)
		h.raw("</p><dl><dt>Effectiveness</dt><dd>")
		h.textf("%d%%", d.Pesticide.Effectiveness)
		h.raw("</dd><dt>Coverage</dt><dd>")
		h.textf("%d%%", d.Pesticide.Coverage)
		h.raw("</dd><dt>Last applied</dt><dd>")
		h.text(d.Pesticide.LastApplied.Format(fixtures.DateLayout))
		h.raw("</dd></dl></article>")

		h.raw(`<article class="card" id="drone-status"><h2>Drone Status</h2><dl><dt>Battery</dt><dd>`)
		h.textf("%.1f%%", d.Drone.BatteryLevel)
		h.raw("</dd><dt>Signal</dt><dd>")
		h.textf("%d%%", d.Drone.SignalStrength)
		h.raw("</dd><dt>Position</dt><dd>")
		h.textf("%.4f, %.4f at %.0f m", d.Drone.Latitude, d.Drone.Longitude, d.Drone.Altitude)
		h.raw("</dd><dt>Speed</dt><dd>")
		h.textf("%.1f m/s", d.Drone.Speed)
		h.raw("</dd></dl></article></div>")
	})
}
