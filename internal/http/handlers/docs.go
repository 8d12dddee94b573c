package handlers

import (
	"fmt"
	"html"
	"net/http"
)

// DocsHandler serves an API reference page rendered by Stoplight Elements
// from the OpenAPI document at specPath.
type DocsHandler struct {
	page []byte
}

// NewDocsHandler builds the docs page once.
func NewDocsHandler(title, specPath string) *DocsHandler {
	return &DocsHandler{page: fmt.Appendf(nil, docsTemplate, html.EscapeString(title), html.EscapeString(specPath))}
}

// ServeHTTP writes the docs page.
func (h *DocsHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(h.page)
}

// The page follows the browser's colour scheme.
const docsTemplate = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="referrer" content="same-origin" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>%s</title>
    <link href="https://unpkg.com/@stoplight/elements@8/styles.min.css" rel="stylesheet" />
    <script src="https://unpkg.com/@stoplight/elements@8/web-components.min.js" crossorigin="anonymous"></script>
    <style>
      :root { color-scheme: light dark; }
      @media (prefers-color-scheme: dark) {
        body { background-color: #111318; }
        .sl-elements {
          --color-canvas: #111318;
          --color-canvas-100: #111318;
          --color-canvas-200: #1b1e25;
          --color-text: #e4e4e7;
          --color-border: #3f3f46;
        }
      }
    </style>
  </head>
  <body style="height: 100vh; margin: 0;">
    <elements-api apiDescriptionUrl="%s" router="hash" layout="sidebar" tryItCredentialsPolicy="same-origin" />
  </body>
</html>`
