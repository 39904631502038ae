package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
)

const pagesLogPrefix = "server:pages"

// homePageTemplate is the HTML for the gateway home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Marketplace Gateway</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    code { background: #f5f5f5; padding: 0.1rem 0.3rem; }
  </style>
</head>
<body>
  <h1>Marketplace Gateway</h1>
  <p class="meta">Send <code>POST /invoke</code> with <code>{"function_name": "...", "input": {...}}</code>. See <a href="/openapi.json">openapi.json</a>.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    {{range $name, $ok := .Health.Checks}}
    <p>{{$name}}: {{if $ok}}<span class="stat">OK</span>{{else}}<span class="status-unhealthy">Failed</span>{{end}}</p>
    {{end}}
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Commands</h2>
    <p>Registered commands: <span class="stat">{{len .Commands}}</span></p>
    <table>
      <thead><tr><th>Name</th></tr></thead>
      <tbody>
        {{range .Commands}}<tr><td>{{.}}</td></tr>
        {{end}}
      </tbody>
    </table>
  </section>
</body>
</html>
`

type homeData struct {
	Health   *HealthReport
	Commands []string
}

// handleHome returns an HTTP handler for the gateway home page.
func (h *HTTPAdapter) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data := homeData{
			Health:   &HealthReport{Status: StatusHealthy, Checks: map[string]bool{}},
			Commands: h.dispatcher.Registry().Names(),
		}
		if h.opts.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), h.opts.HealthCheckTimeout)
			defer cancel()
			data.Health = h.opts.Health.Health(ctx)
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", pagesLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// openAPI3 types for describing the invocation endpoint.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	OperationID string                      `json:"operationId"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]any `json:"schema,omitempty"`
}

// buildOpenAPISpec describes POST /invoke with function_name enumerated from names.
func buildOpenAPISpec(names []string) *openAPI3Spec {
	enum := make([]any, 0, len(names))
	for _, n := range names {
		enum = append(enum, n)
	}
	envelope := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"result": map[string]any{"type": "string", "nullable": true},
			"error":  map[string]any{"type": "string", "nullable": true},
		},
		"required": []any{"result", "error"},
	}
	content := func(schema map[string]any) map[string]openAPI3MediaType {
		return map[string]openAPI3MediaType{"application/json": {Schema: schema}}
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       "Marketplace Gateway",
			Description: "Named command invocation with a result/error envelope",
			Version:     "1.0.0",
		},
		Paths: map[string]openAPI3PathItem{
			"/invoke": {Post: &openAPI3Operation{
				Summary:     "Invoke a command",
				OperationID: "invoke",
				RequestBody: &openAPI3RequestBody{Content: content(map[string]any{
					"type": "object",
					"properties": map[string]any{
						"function_name": map[string]any{"type": "string", "enum": enum},
						"input":         map[string]any{"type": "object"},
					},
				})},
				Responses: map[string]openAPI3Response{
					"200": {Description: "Envelope; application failures set error", Content: content(envelope)},
					"400": {Description: "Malformed invocation payload", Content: content(envelope)},
					"413": {Description: "Request body too large", Content: content(envelope)},
					"429": {Description: "Rate limit exceeded", Content: content(envelope)},
				},
			}},
		},
	}
}

func (h *HTTPAdapter) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, buildOpenAPISpec(h.dispatcher.Registry().Names()))
}
