package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/kirillkom/assistant-files/internal/config"
	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/ports"
	"github.com/kirillkom/assistant-files/internal/core/usecase"
	"github.com/kirillkom/assistant-files/internal/observability/metrics"
)

const (
	serviceName = "api"

	multipartMemoryBytes = 32 << 20
	maxFilesPerRequest   = 16
)

// Dependencies are the services the router exposes. Only Attachments and Files
// are required.
type Dependencies struct {
	Attachments ports.AttachmentService
	Files       ports.GeneratedFileService
	References  ports.ReferenceRepository
	Blobs       ports.BlobStore
	Publisher   ports.AttachmentPublisher
	Queue       ports.ReferencePublisher
	Metrics     *metrics.HTTPServerMetrics
	// Health reports circuit breaker states keyed by operation.
	Health func() map[string]string
}

type Router struct {
	cfg         config.Config
	attachments ports.AttachmentService
	files       ports.GeneratedFileService
	refresher   *usecase.ReferenceRefresher
	blobs       ports.BlobStore
	publisher   ports.AttachmentPublisher
	queue       ports.ReferencePublisher
	references  ports.ReferenceRepository
	metrics     *metrics.HTTPServerMetrics
	health      func() map[string]string
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	return &Router{
		cfg:         cfg,
		attachments: deps.Attachments,
		files:       deps.Files,
		refresher:   usecase.NewReferenceRefresher(deps.Files, deps.References),
		blobs:       deps.Blobs,
		publisher:   deps.Publisher,
		queue:       deps.Queue,
		references:  deps.References,
		metrics:     deps.Metrics,
		health:      deps.Health,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("POST /v1/attachments", rt.attachFiles)
	mux.HandleFunc("POST /v1/generated-files", rt.registerGeneratedFile)
	mux.HandleFunc("POST /v1/generated-files/preview", rt.previewGeneratedFile)
	mux.HandleFunc("POST /v1/generated-files/download", rt.downloadGeneratedFile)
	mux.HandleFunc("GET /v1/generated-files/{id}/preview", rt.previewStoredFile)
	mux.HandleFunc("GET /v1/generated-files/{id}/download", rt.downloadStoredFile)
	mux.HandleFunc("GET /v1/blobs/{key}", rt.getBlob)

	var handler http.Handler = mux
	if validator, err := newRequestValidator(openAPIDocument); err != nil {
		slog.Error("openapi_validator_disabled", "error", err)
	} else {
		handler = validator.middleware(handler)
	}

	var onReject rejectRecorder
	if rt.metrics != nil {
		onReject = func(reason string) { rt.metrics.RecordRejected(serviceName, reason) }
	}
	handler = apiKeyMiddleware(handler, rt.cfg.APIKey, onReject)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInflight, rt.cfg.BackpressureWait(), onReject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if rt.health != nil {
		if states := rt.health(); len(states) > 0 {
			resp["breakers"] = states
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

type attachFailureResponse struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type attachResponse struct {
	Documents []domain.AttachedDocument `json:"documents"`
	Failures  []attachFailureResponse   `json:"failures"`
}

func (rt *Router) attachFiles(w http.ResponseWriter, r *http.Request) {
	if limit := rt.cfg.AttachMaxFileBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit*maxFilesPerRequest)
	}
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	if len(headers) > maxFilesPerRequest {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("at most %d files per request", maxFilesPerRequest)})
		return
	}

	files := make([]domain.SourceFile, 0, len(headers))
	for _, header := range headers {
		file, err := readSourceFile(header)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		files = append(files, file)
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, len(files))
	}

	docs, failures := rt.attachments.IngestAll(r.Context(), files)

	rt.publishDocuments(r, docs)

	resp := attachResponse{
		Documents: docs,
		Failures:  make([]attachFailureResponse, 0, len(failures)),
	}
	if resp.Documents == nil {
		resp.Documents = []domain.AttachedDocument{}
	}
	for _, failure := range failures {
		resp.Failures = append(resp.Failures, attachFailureResponse{Name: failure.Name, Error: failure.Err.Error()})
	}

	status := http.StatusOK
	if len(failures) == len(files) {
		status = mapErrorToHTTPStatus(failures[0].Err)
	}
	writeJSON(w, status, resp)
}

func readSourceFile(header *multipart.FileHeader) (domain.SourceFile, error) {
	file, err := header.Open()
	if err != nil {
		return domain.SourceFile{}, fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.SourceFile{}, fmt.Errorf("read %s: %w", header.Filename, err)
	}
	return domain.SourceFile{
		Name:         header.Filename,
		DeclaredType: domain.MediaType(header.Header.Get("Content-Type")),
		Data:         data,
	}, nil
}

func (rt *Router) publishDocuments(r *http.Request, docs []domain.AttachedDocument) {
	if rt.publisher == nil {
		return
	}
	for _, doc := range docs {
		if err := rt.publisher.PublishAttachment(r.Context(), doc); err != nil {
			slog.Warn("attachment_publish_failed",
				"request_id", requestIDFromContext(r.Context()),
				"name", doc.Name,
				"error", err,
			)
		}
	}
}

type previewResponse struct {
	Preview   domain.Preview                `json:"preview"`
	Reference domain.GeneratedFileReference `json:"file_info"`
}

type downloadResponse struct {
	Download  domain.DownloadLink           `json:"download"`
	Reference domain.GeneratedFileReference `json:"file_info"`
}

// registerGeneratedFile stores a reference under its ID and queues it for a
// background refresh.
func (rt *Router) registerGeneratedFile(w http.ResponseWriter, r *http.Request) {
	ref, err := decodeReferenceRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(ref.ID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}
	if rt.references == nil && rt.queue == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "reference storage is not configured"})
		return
	}

	if rt.references != nil {
		if err := rt.references.Save(r.Context(), ref); err != nil {
			writeError(w, err)
			return
		}
	}
	queued := false
	if rt.queue != nil {
		if err := rt.queue.PublishGeneratedFile(r.Context(), ref); err != nil {
			writeError(w, err)
			return
		}
		queued = true
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": ref.ID, "queued": queued})
}

func (rt *Router) previewGeneratedFile(w http.ResponseWriter, r *http.Request) {
	params, err := bindPreviewParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ref, err := decodeReferenceRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.writePreview(w, r, ref, params, "")
}

func (rt *Router) downloadGeneratedFile(w http.ResponseWriter, r *http.Request) {
	ref, err := decodeReferenceRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.writeDownload(w, r, ref, false)
}

func (rt *Router) previewStoredFile(w http.ResponseWriter, r *http.Request) {
	id, err := bindReferenceID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	params, err := bindPreviewParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ref, err := rt.refresher.Load(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.writePreview(w, r, *ref, params, storedDownloadRoute(ref.ID))
}

func (rt *Router) downloadStoredFile(w http.ResponseWriter, r *http.Request) {
	id, err := bindReferenceID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	params, err := bindDownloadParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ref, err := rt.refresher.Load(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.writeDownload(w, r, *ref, params.redirect())
}

// storedDownloadRoute resolves a stored reference's full-resolution URL at
// click time.
func storedDownloadRoute(id string) string {
	return "/v1/generated-files/" + url.PathEscape(id) + "/download?redirect=true"
}

// writePreview renders the preview as JSON or HTML. refreshRoute replaces a
// download target that still needs refreshing; without one the HTML anchor
// is left out.
func (rt *Router) writePreview(w http.ResponseWriter, r *http.Request, ref domain.StoredReference, params previewParams, refreshRoute string) {
	preview, updated, err := rt.refresher.Present(r.Context(), ref)
	if err != nil {
		slog.Warn("reference_snapshot_not_saved",
			"request_id", requestIDFromContext(r.Context()),
			"id", ref.ID,
			"error", err,
		)
	}

	if params.html() {
		writePreviewHTML(w, preview, refreshRoute)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{Preview: preview, Reference: updated})
}

func (rt *Router) writeDownload(w http.ResponseWriter, r *http.Request, ref domain.StoredReference, redirect bool) {
	link, updated, err := rt.refresher.Download(r.Context(), ref)
	if err != nil {
		slog.Warn("reference_snapshot_not_saved",
			"request_id", requestIDFromContext(r.Context()),
			"id", ref.ID,
			"error", err,
		)
	}

	if redirect {
		if link.URL == "" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "download url is not available"})
			return
		}
		http.Redirect(w, r, link.URL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, downloadResponse{Download: link, Reference: updated})
}

func decodeReferenceRequest(r *http.Request) (domain.StoredReference, error) {
	var req domain.StoredReference
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, domain.WrapError(domain.ErrInvalidInput, "decode reference", err)
	}
	if strings.TrimSpace(req.Reference.Values.FileKey) == "" {
		return req, domain.WrapError(domain.ErrInvalidInput, "decode reference", errors.New("file_info.values.file_key is required"))
	}
	return req, nil
}

func (rt *Router) getBlob(w http.ResponseWriter, r *http.Request) {
	if rt.blobs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "blob storage is not configured"})
		return
	}
	key := r.PathValue("key")
	blob, err := rt.blobs.Open(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer blob.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, blob); err != nil {
		slog.Warn("blob_write_failed", "key", key, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
