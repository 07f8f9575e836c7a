package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/ports"
	"github.com/kirillkom/assistant-files/internal/core/usecase"
)

const (
	serverName    = "assistant-files"
	serverVersion = "1.0.0"
)

// Options configures the tool server.
type Options struct {
	// MaxFileBytes refuses to read larger local files. Zero disables the check.
	MaxFileBytes int64
	// InferType maps a file name to a media type when the caller omits one.
	InferType func(name string) domain.MediaType
}

// Server exposes attachment ingestion and generated-file previews as MCP tools.
type Server struct {
	attachments ports.AttachmentService
	refresher   *usecase.ReferenceRefresher
	opts        Options
	mcp         *server.MCPServer
}

func NewServer(attachments ports.AttachmentService, files ports.GeneratedFileService, references ports.ReferenceRepository, opts Options) *Server {
	s := &Server{
		attachments: attachments,
		refresher:   usecase.NewReferenceRefresher(files, references),
		opts:        opts,
		mcp:         server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("attach_file",
		mcp.WithDescription("Decode a local file (text, PDF, DOCX, JSON, YAML, XLSX or ZIP archive) into attached documents."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the local file to attach.")),
		mcp.WithString("type", mcp.Description("Declared media type. Inferred from the file extension when omitted.")),
	), s.attachFile)

	s.mcp.AddTool(mcp.NewTool("preview_generated_file",
		mcp.WithDescription("Render a bounded preview of a generated file and return the refreshed reference."),
		mcp.WithString("file_info", mcp.Required(), mcp.Description(`Generated file reference as JSON: {"type": ..., "values": {"file_key": ..., "presigned_url": ...}}.`)),
		mcp.WithString("id", mcp.Description("Stored reference ID; the refreshed snapshot is saved under it.")),
	), s.previewGeneratedFile)

	s.mcp.AddTool(mcp.NewTool("download_generated_file",
		mcp.WithDescription("Resolve a valid download link for a generated file."),
		mcp.WithString("file_info", mcp.Required(), mcp.Description("Generated file reference as JSON.")),
		mcp.WithString("id", mcp.Description("Stored reference ID; the refreshed snapshot is saved under it.")),
	), s.downloadGeneratedFile)

	return s
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

type attachResult struct {
	Documents []domain.AttachedDocument `json:"documents"`
}

func (s *Server) attachFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	file, err := s.readSourceFile(path, request.GetString("type", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var (
		mu   sync.Mutex
		docs = []domain.AttachedDocument{}
	)
	if err := s.attachments.Attach(ctx, file, func(doc domain.AttachedDocument) {
		mu.Lock()
		docs = append(docs, doc)
		mu.Unlock()
	}); err != nil {
		slog.Warn("mcp_attach_failed", "name", file.Name, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(attachResult{Documents: docs})
}

func (s *Server) readSourceFile(path, declared string) (domain.SourceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.SourceFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return domain.SourceFile{}, fmt.Errorf("%s is a directory", path)
	}
	if s.opts.MaxFileBytes > 0 && info.Size() > s.opts.MaxFileBytes {
		return domain.SourceFile{}, fmt.Errorf("%s is %d bytes (max %d)", path, info.Size(), s.opts.MaxFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.SourceFile{}, fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	mediaType := domain.MediaType(declared)
	if mediaType == domain.MediaTypeUnspecified && s.opts.InferType != nil {
		mediaType = s.opts.InferType(name)
	}
	return domain.SourceFile{Name: name, DeclaredType: mediaType, Data: data}, nil
}

type previewResult struct {
	Preview   domain.Preview                `json:"preview"`
	Reference domain.GeneratedFileReference `json:"file_info"`
}

type downloadResult struct {
	Download  domain.DownloadLink           `json:"download"`
	Reference domain.GeneratedFileReference `json:"file_info"`
}

func (s *Server) previewGeneratedFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := storedReferenceArgument(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	preview, updated, err := s.refresher.Present(ctx, ref)
	if err != nil {
		slog.Warn("mcp_reference_save_failed", "id", ref.ID, "error", err)
	}
	return jsonResult(previewResult{Preview: preview, Reference: updated})
}

func (s *Server) downloadGeneratedFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := storedReferenceArgument(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	link, updated, err := s.refresher.Download(ctx, ref)
	if err != nil {
		slog.Warn("mcp_reference_save_failed", "id", ref.ID, "error", err)
	}
	return jsonResult(downloadResult{Download: link, Reference: updated})
}

func storedReferenceArgument(request mcp.CallToolRequest) (domain.StoredReference, error) {
	raw, err := request.RequireString("file_info")
	if err != nil {
		return domain.StoredReference{}, err
	}
	var ref domain.GeneratedFileReference
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return domain.StoredReference{}, fmt.Errorf("file_info is not valid JSON: %w", err)
	}
	if ref.Values.FileKey == "" {
		return domain.StoredReference{}, fmt.Errorf("file_info.values.file_key is required")
	}
	return domain.StoredReference{ID: request.GetString("id", ""), Reference: ref}, nil
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
