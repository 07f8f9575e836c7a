package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/ports"
)

type attachmentsFake struct {
	gotType domain.MediaType
}

func (f *attachmentsFake) Ingest(context.Context, domain.SourceFile) ([]domain.AttachedDocument, error) {
	return nil, nil
}

func (f *attachmentsFake) Attach(_ context.Context, file domain.SourceFile, onAttach ports.AttachHandler) error {
	f.gotType = file.DeclaredType
	if file.DeclaredType == domain.MediaTypePDF {
		return domain.WrapError(domain.ErrDecodeFailed, "decode", errors.New("broken pdf"))
	}
	onAttach(domain.AttachedDocument{Name: file.Name, DeclaredType: file.DeclaredType, Raw: string(file.Data), Parsed: string(file.Data)})
	return nil
}

func (f *attachmentsFake) AttachAll(context.Context, []domain.SourceFile, ports.AttachHandler) []ports.AttachFailure {
	return nil
}

func (f *attachmentsFake) IngestAll(context.Context, []domain.SourceFile) ([]domain.AttachedDocument, []ports.AttachFailure) {
	return nil, nil
}

type filesFake struct{}

func (filesFake) Present(_ context.Context, ref domain.GeneratedFileReference) (domain.Preview, domain.GeneratedFileReference) {
	updated := ref
	updated.Values.PresignedURL = "https://cdn.example/fresh"
	return domain.Preview{Kind: domain.PreviewBinary, State: domain.PreviewReady, Message: domain.MessageBinary}, updated
}

func (filesFake) Download(_ context.Context, ref domain.GeneratedFileReference) (domain.DownloadLink, domain.GeneratedFileReference) {
	return domain.DownloadLink{Name: "out.bin", URL: "https://cdn.example/fresh"}, ref
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestAttachFileInfersTypeAndReturnsDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	attachments := &attachmentsFake{}
	srv := NewServer(attachments, filesFake{}, nil, Options{
		InferType: func(name string) domain.MediaType { return "text/plain" },
	})

	result, err := srv.attachFile(context.Background(), callRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("attachFile: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	var out attachResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Documents) != 1 || out.Documents[0].Name != "notes.txt" || out.Documents[0].Raw != "hello" {
		t.Fatalf("unexpected documents: %+v", out.Documents)
	}
	if attachments.gotType != "text/plain" {
		t.Fatalf("expected inferred type, got %q", attachments.gotType)
	}
}

func TestAttachFileReportsToolErrors(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "broken.pdf")
	if err := os.WriteFile(pdfPath, []byte("nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	bigPath := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(bigPath, []byte(strings.Repeat("x", 20)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	srv := NewServer(&attachmentsFake{}, filesFake{}, nil, Options{MaxFileBytes: 10})

	cases := []struct {
		name string
		args map[string]any
	}{
		{name: "missing path", args: map[string]any{}},
		{name: "missing file", args: map[string]any{"path": filepath.Join(dir, "absent.txt")}},
		{name: "directory", args: map[string]any{"path": dir}},
		{name: "too large", args: map[string]any{"path": bigPath, "type": "text/plain"}},
		{name: "decode failure", args: map[string]any{"path": pdfPath, "type": "application/pdf"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := srv.attachFile(context.Background(), callRequest(tc.args))
			if err != nil {
				t.Fatalf("unexpected protocol error: %v", err)
			}
			if !result.IsError {
				t.Fatalf("expected tool error, got %s", resultText(t, result))
			}
		})
	}
}

func TestPreviewGeneratedFileReturnsRefreshedReference(t *testing.T) {
	srv := NewServer(&attachmentsFake{}, filesFake{}, nil, Options{})
	fileInfo := `{"type":"binary/octet-stream","values":{"file_key":"u/1-FN-out.bin","presigned_url":"stale"}}`

	result, err := srv.previewGeneratedFile(context.Background(), callRequest(map[string]any{"file_info": fileInfo}))
	if err != nil {
		t.Fatalf("previewGeneratedFile: %v", err)
	}
	var out previewResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Preview.Kind != domain.PreviewBinary || out.Reference.Values.PresignedURL != "https://cdn.example/fresh" {
		t.Fatalf("unexpected preview result: %+v", out)
	}
}

func TestPreviewGeneratedFileRejectsInvalidReference(t *testing.T) {
	srv := NewServer(&attachmentsFake{}, filesFake{}, nil, Options{})
	for _, fileInfo := range []string{`{`, `{"type":"text/csv","values":{}}`} {
		result, err := srv.previewGeneratedFile(context.Background(), callRequest(map[string]any{"file_info": fileInfo}))
		if err != nil {
			t.Fatalf("unexpected protocol error: %v", err)
		}
		if !result.IsError {
			t.Fatalf("expected tool error for %q", fileInfo)
		}
	}
}

func TestDownloadGeneratedFileReturnsLink(t *testing.T) {
	srv := NewServer(&attachmentsFake{}, filesFake{}, nil, Options{})
	result, err := srv.downloadGeneratedFile(context.Background(), callRequest(map[string]any{
		"file_info": `{"type":"text/csv","values":{"file_key":"k"}}`,
	}))
	if err != nil {
		t.Fatalf("downloadGeneratedFile: %v", err)
	}
	var out downloadResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Download.URL != "https://cdn.example/fresh" {
		t.Fatalf("unexpected download result: %+v", out)
	}
}
