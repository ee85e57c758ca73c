package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/morezero/modules-manager/pkg/bootstrap"
	"github.com/morezero/modules-manager/pkg/commsutil"
)

const httpLogPrefix = "server:http"

// HealthOutput is the /health response body.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Modules   int          `json:"modules"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks holds the individual dependency checks.
type HealthChecks struct {
	Comms bool   `json:"comms"`
	Store bool   `json:"store"`
	Error string `json:"error,omitempty"`
}

// Handler returns the HTTP mux: /, /health, /ready and /modules.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := s.Health(r.Context())
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/modules", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.Modules())
	})
	return mux
}

// Modules returns the registered modules in registration order.
func (s *Server) Modules() []bootstrap.Registered {
	out := make([]bootstrap.Registered, len(s.modules))
	copy(out, s.modules)
	return out
}

// Health checks the COMMS connection and the store within the configured
// health timeout.
func (s *Server) Health(ctx context.Context) *HealthOutput {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthCheckTimeout)
	defer cancel()

	out := &HealthOutput{
		Modules:   len(s.modules),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := commsutil.CheckConnection(s.nc); err == nil {
		out.Checks.Comms = true
	} else {
		out.Checks.Error = err.Error()
	}
	if s.store != nil {
		if err := s.store.Ping(ctx); err == nil {
			out.Checks.Store = true
		} else {
			slog.Warn(fmt.Sprintf("%s - store ping failed: %v", httpLogPrefix, err))
			out.Checks.Error = err.Error()
		}
	}

	out.Status = "unhealthy"
	if out.Checks.Comms && out.Checks.Store {
		out.Status = "healthy"
	}
	return out
}

// homePageTemplate is the HTML for the manager home page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Modules Manager</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    code { background: #f5f5f5; padding: 0.1rem 0.3rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>Modules Manager</h1>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>COMMS: {{if .Health.Checks.Comms}}OK{{else}}Failed{{end}} &middot; Store: {{if .Health.Checks.Store}}OK{{else}}Failed{{end}}</p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Subjects</h2>
    <p><code>{{.Subjects.Execute}}</code> <code>{{.Subjects.Query}}</code> <code>{{.Subjects.Instantiate}}</code></p>
  </section>

  <section>
    <h2>Modules</h2>
    {{if not .Modules}}
    <p>No modules registered.</p>
    {{else}}
    <table>
      <thead><tr><th>Name</th><th>Kind</th><th>Version</th></tr></thead>
      <tbody>
        {{range .Modules}}
        <tr><td>{{.Name}}</td><td>{{.Kind}}</td><td>{{.Version}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Health   *HealthOutput
	Subjects commsutil.Subjects
	Modules  []bootstrap.Registered
}

// handleHome returns an HTTP handler for the manager home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data := homeData{
			Health:   s.Health(r.Context()),
			Subjects: commsutil.BuildSubjects(s.cfg.SubjectPrefix),
			Modules:  s.Modules(),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template: %v", httpLogPrefix, err))
		}
	}
}
