package httpadapter

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

var previewTemplate = template.Must(template.New("preview").Parse(`<div class="generated-file generated-file--{{.Kind}}" data-state="{{.State}}">
{{- if eq .Kind "table"}}
{{- if .Ready}}
<table>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</table>
{{- if .Overflow}}
<p class="generated-file__overflow">{{.Message}}</p>
{{- end}}
{{- else}}
<p class="generated-file__message">{{.Message}}</p>
{{- end}}
{{- else if eq .Kind "document"}}
{{- if .Ready}}
<embed src="{{.EmbedURL}}" type="application/pdf" width="100%" height="600">
{{- else}}
<p class="generated-file__message">{{.Message}}</p>
{{- end}}
{{- else if eq .Kind "image"}}
<img src="{{.InlineURL}}" alt="{{.Download.Name}}" onerror="this.replaceWith(document.createTextNode({{.FailureText}}))">
{{- else}}
<p class="generated-file__message">{{.Message}}</p>
{{- end}}
{{- if .DownloadURL}}
<a class="generated-file__download" href="{{.DownloadURL}}" download="{{.Download.Name}}">{{.Download.Name}}</a>
{{- end}}
</div>
`))

// previewView carries presenter-issued URLs as trusted so data: embeds survive
// html/template URL filtering.
type previewView struct {
	domain.Preview
	Ready       bool
	EmbedURL    template.URL
	InlineURL   template.URL
	DownloadURL template.URL
}

// newPreviewView never links an expired download target: it is swapped for
// refreshRoute, or dropped when there is none.
func newPreviewView(preview domain.Preview, refreshRoute string) previewView {
	download := preview.Download.URL
	if preview.Download.NeedsRefresh {
		download = refreshRoute
	}
	return previewView{
		Preview:     preview,
		Ready:       preview.State == domain.PreviewReady,
		EmbedURL:    template.URL(preview.EmbedURL),
		InlineURL:   template.URL(preview.InlineURL),
		DownloadURL: template.URL(download),
	}
}

func writePreviewHTML(w http.ResponseWriter, preview domain.Preview, refreshRoute string) {
	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, newPreviewView(preview, refreshRoute)); err != nil {
		slog.Error("preview_render_failed", "kind", preview.Kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "preview render failed"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
