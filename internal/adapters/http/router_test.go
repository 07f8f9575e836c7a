package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/assistant-files/internal/config"
	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/usecase"
	"github.com/kirillkom/assistant-files/internal/observability/metrics"
)

func TestHealthzReportsBreakerStates(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{
		Health: func() map[string]string { return map[string]string{"access_url.issue": "open"} },
	})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp struct {
		Status   string            `json:"status"`
		Breakers map[string]string `json:"breakers"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Breakers["access_url.issue"] != "open" {
		t.Fatalf("unexpected health response: %+v", resp)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestServesOpenAPIDocument(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{})
	req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "/v1/attachments") {
		t.Fatalf("unexpected openapi response: %d", res.Code)
	}
}

func TestAttachFilesReturnsDocumentsAndFailures(t *testing.T) {
	publisher := &publisherFake{}
	m := metrics.NewHTTPServerMetrics(serviceName)
	handler := newTestHandler(config.Config{}, Dependencies{Publisher: publisher, Metrics: m})

	body, contentType := multipartBody(t,
		uploadPart{name: "notes.txt", contentType: "text/plain", body: "hello"},
		uploadPart{name: "broken.pdf", contentType: "application/pdf", body: "%PDF-garbage"},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/attachments", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp struct {
		Documents []struct {
			Name string `json:"name"`
			Raw  string `json:"raw"`
		} `json:"documents"`
		Failures []struct {
			Name  string `json:"name"`
			Error string `json:"error"`
		} `json:"failures"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Documents) != 1 || resp.Documents[0].Name != "notes.txt" || resp.Documents[0].Raw != "hello" {
		t.Fatalf("unexpected documents: %+v", resp.Documents)
	}
	if len(resp.Failures) != 1 || resp.Failures[0].Name != "broken.pdf" || resp.Failures[0].Error == "" {
		t.Fatalf("unexpected failures: %+v", resp.Failures)
	}
	if len(publisher.docs) != 1 || publisher.docs[0] != "notes.txt" {
		t.Fatalf("expected decoded document to be published, got %v", publisher.docs)
	}
}

func TestAttachFilesMapsErrorWhenEveryFileFails(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{
		Attachments: attachmentsFake{err: domain.WrapError(domain.ErrUnsupportedType, "attach", errors.New("image/gif"))},
	})

	body, contentType := multipartBody(t, uploadPart{name: "a.gif", contentType: "image/gif", body: "GIF89a"})
	req := httptest.NewRequest(http.MethodPost, "/v1/attachments", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", res.Code)
	}
}

func TestAttachFilesRequiresFileField(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{})
	req := httptest.NewRequest(http.MethodPost, "/v1/attachments", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestPreviewGeneratedFileReturnsUpdatedSnapshot(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{})
	payload := `{"file_info":{"type":"binary/octet-stream","values":{"file_key":"u/1-FN-out.bin","presigned_url":"stale"}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/generated-files/preview", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp previewResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Preview.Kind != domain.PreviewBinary || resp.Reference.Values.PresignedURL != "https://cdn.example/fresh/u/1-FN-out.bin" {
		t.Fatalf("unexpected preview response: %+v", resp)
	}
}

func TestPreviewGeneratedFilePersistsSnapshotWithID(t *testing.T) {
	refs := &referencesFake{}
	handler := newTestHandler(config.Config{}, Dependencies{References: refs})
	payload := `{"id":"msg-7","file_info":{"type":"binary/octet-stream","values":{"file_key":"k","presigned_url":"stale"}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/generated-files/preview", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if refs.stored["msg-7"].Reference.Values.PresignedURL != "https://cdn.example/fresh/k" {
		t.Fatalf("expected refreshed snapshot to be stored, got %+v", refs.stored)
	}
}

func TestPreviewImageRendersHTMLWithFailureFallback(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{Files: filesFake{preview: domain.Preview{
		Kind:        domain.PreviewImage,
		State:       domain.PreviewReady,
		InlineURL:   "https://cdn.example/low.png",
		FailureText: domain.MessageImageUnavailable,
	}}})
	payload := `{"file_info":{"type":"image/png","values":{"file_key":"k.png","presigned_url":"x"}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/generated-files/preview?format=html", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.HasPrefix(res.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected html content type, got %q", res.Header().Get("Content-Type"))
	}
	html := res.Body.String()
	for _, want := range []string{`src="https://cdn.example/low.png"`, "onerror=", "unable to display the image", `href="https://cdn.example/fresh/k.png"`} {
		if !strings.Contains(html, want) {
			t.Fatalf("html missing %q:\n%s", want, html)
		}
	}
}

func TestPreviewTableRendersRows(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{Files: filesFake{preview: domain.Preview{
		Kind:     domain.PreviewTable,
		State:    domain.PreviewReady,
		Rows:     [][]string{{"a", "<b>"}},
		Overflow: true,
		Message:  domain.MessageTableOverflow,
	}}})
	payload := `{"file_info":{"type":"text/csv","values":{"file_key":"t.csv"}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/generated-files/preview?format=html", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	html := res.Body.String()
	if !strings.Contains(html, "<td>a</td><td>&lt;b&gt;</td>") || !strings.Contains(html, domain.MessageTableOverflow) {
		t.Fatalf("unexpected table html:\n%s", html)
	}
}

func TestPreviewRejectsInvalidRequests(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{})
	cases := []struct {
		name   string
		target string
		body   string
	}{
		{name: "malformed json", target: "/v1/generated-files/preview", body: `{"file_info":`},
		{name: "missing file key", target: "/v1/generated-files/preview", body: `{"file_info":{"type":"text/csv","values":{}}}`},
		{name: "unknown format", target: "/v1/generated-files/preview?format=xml", body: `{"file_info":{"type":"text/csv","values":{"file_key":"k"}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.target, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
			}
		})
	}
}

func TestStoredPreviewReturns404ForUnknownID(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{References: &referencesFake{}})
	req := httptest.NewRequest(http.MethodGet, "/v1/generated-files/missing/preview", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestStoredDownloadRedirectsAndSavesSnapshot(t *testing.T) {
	refs := &referencesFake{stored: map[string]domain.StoredReference{
		"r1": {ID: "r1", Reference: domain.GeneratedFileReference{Type: domain.MediaTypeBinary, Values: domain.GeneratedFileValues{FileKey: "out.bin", PresignedURL: "stale"}}},
	}}
	handler := newTestHandler(config.Config{}, Dependencies{References: refs})
	req := httptest.NewRequest(http.MethodGet, "/v1/generated-files/r1/download?redirect=true", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", res.Code)
	}
	if got := res.Header().Get("Location"); got != "https://cdn.example/fresh/out.bin" {
		t.Fatalf("unexpected redirect target %q", got)
	}
	if refs.stored["r1"].Reference.Values.PresignedURL != "https://cdn.example/fresh/out.bin" {
		t.Fatalf("expected refreshed snapshot to be saved")
	}
}

func TestGetBlobServesContentWithType(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{Blobs: blobsFake{"abc_report.pdf": "%PDF-1.4"}})

	req := httptest.NewRequest(http.MethodGet, "/v1/blobs/abc_report.pdf", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK || res.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected blob response: %d %q", res.Code, res.Header().Get("Content-Type"))
	}
	if !bytes.Equal(res.Body.Bytes(), []byte("%PDF-1.4")) {
		t.Fatalf("unexpected blob body %q", res.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/blobs/missing.pdf", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing blob, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		kind error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrReferenceNotFound, http.StatusNotFound},
		{domain.ErrUnsupportedType, http.StatusUnsupportedMediaType},
		{domain.ErrDecodeFailed, http.StatusUnprocessableEntity},
		{domain.ErrTemporary, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(domain.WrapError(tc.kind, "op", errors.New("cause"))); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
	if got := mapErrorToHTTPStatus(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unknown errors, got %d", got)
	}
}

func TestRegisterGeneratedFileStoresAndQueues(t *testing.T) {
	refs := &referencesFake{}
	queue := &referenceQueueFake{}
	handler := newTestHandler(config.Config{}, Dependencies{References: refs, Queue: queue})

	payload := `{"id":"msg-9","file_info":{"type":"text/csv","values":{"file_key":"u/9-FN-out.csv","presigned_url":"stale"}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/generated-files", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if _, ok := refs.stored["msg-9"]; !ok {
		t.Fatalf("expected reference to be stored")
	}
	if len(queue.published) != 1 || queue.published[0].ID != "msg-9" {
		t.Fatalf("expected reference to be queued, got %+v", queue.published)
	}
}

func TestRegisterGeneratedFileRequiresIDAndBackend(t *testing.T) {
	payload := `{"file_info":{"type":"text/csv","values":{"file_key":"k"}}}`
	handler := newTestHandler(config.Config{}, Dependencies{References: &referencesFake{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/generated-files", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without id, got %d", res.Code)
	}

	handler = newTestHandler(config.Config{}, Dependencies{})
	req = httptest.NewRequest(http.MethodPost, "/v1/generated-files", strings.NewReader(`{"id":"x",`+payload[1:]))
	req.Header.Set("Content-Type", "application/json")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without storage, got %d", res.Code)
	}
}

func TestPreviewHTMLNeverLinksExpiredDownloadTarget(t *testing.T) {
	expired := domain.Preview{
		Kind:        domain.PreviewImage,
		State:       domain.PreviewReady,
		InlineURL:   "https://cdn.example/low.png",
		FailureText: domain.MessageImageUnavailable,
		Download:    domain.DownloadLink{NeedsRefresh: true},
	}

	t.Run("stored reference links the refreshing route", func(t *testing.T) {
		refs := &referencesFake{stored: map[string]domain.StoredReference{
			"img-1": {ID: "img-1", Reference: domain.GeneratedFileReference{Type: domain.MediaTypePNG, Values: domain.GeneratedFileValues{FileKey: "full.png"}}},
		}}
		handler := newTestHandler(config.Config{}, Dependencies{Files: filesFake{preview: expired}, References: refs})
		req := httptest.NewRequest(http.MethodGet, "/v1/generated-files/img-1/preview?format=html", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		html := res.Body.String()
		if !strings.Contains(html, `href="/v1/generated-files/img-1/download?redirect=true"`) {
			t.Fatalf("expected anchor on the download route:\n%s", html)
		}
		if strings.Contains(html, "cdn.example/fresh/full.png") {
			t.Fatalf("expired download target leaked into html:\n%s", html)
		}
	})

	t.Run("inline reference drops the anchor", func(t *testing.T) {
		handler := newTestHandler(config.Config{}, Dependencies{Files: filesFake{preview: expired}})
		payload := `{"file_info":{"type":"image/png","values":{"file_key":"full.png"}}}`
		req := httptest.NewRequest(http.MethodPost, "/v1/generated-files/preview?format=html", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		html := res.Body.String()
		if strings.Contains(html, "generated-file__download") {
			t.Fatalf("expected no download anchor:\n%s", html)
		}
		if !strings.Contains(html, `src="https://cdn.example/low.png"`) {
			t.Fatalf("expected inline image to render:\n%s", html)
		}
	})
}

// slowFirstDecoder finishes the file named "first.txt" last.
type slowFirstDecoder struct{}

func (slowFirstDecoder) Decode(_ context.Context, file domain.SourceFile) (*domain.AttachedDocument, error) {
	if file.Name == "first.txt" {
		time.Sleep(50 * time.Millisecond)
	}
	return &domain.AttachedDocument{Name: file.Name, DeclaredType: file.DeclaredType, Raw: string(file.Data)}, nil
}

func TestAttachFilesKeepsUploadOrder(t *testing.T) {
	ingestor := usecase.NewAttachmentIngestor(
		usecase.NewDecoderRegistry(usecase.DecoderBinding{Name: "text", Decoder: slowFirstDecoder{}}),
		nil, nil, usecase.IngestOptions{FileConcurrency: 4},
	)
	publisher := &publisherFake{}
	handler := newTestHandler(config.Config{}, Dependencies{Attachments: ingestor, Publisher: publisher})

	body, contentType := multipartBody(t,
		uploadPart{name: "first.txt", contentType: "text/plain", body: "1"},
		uploadPart{name: "second.txt", contentType: "text/plain", body: "2"},
		uploadPart{name: "third.txt", contentType: "text/plain", body: "3"},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/attachments", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp struct {
		Documents []struct {
			Name string `json:"name"`
		} `json:"documents"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var names []string
	for _, doc := range resp.Documents {
		names = append(names, doc.Name)
	}
	if got := strings.Join(names, ","); got != "first.txt,second.txt,third.txt" {
		t.Fatalf("expected upload order, got %s", got)
	}
	if got := strings.Join(publisher.docs, ","); got != "first.txt,second.txt,third.txt" {
		t.Fatalf("expected publish in upload order, got %s", got)
	}
}
