package domain

// GeneratedFileValues mirrors the "values" object of a generated-file payload.
type GeneratedFileValues struct {
	FileKey            string `json:"file_key"`
	PresignedURL       string `json:"presigned_url"`
	FileSize           int64  `json:"file_size,omitempty"`
	FileKeyLowRes      string `json:"file_key_low_res,omitempty"`
	PresignedURLLowRes string `json:"presigned_url_low_res,omitempty"`
}

// GeneratedFileReference is the caller-owned descriptor of a server-generated
// output file. Presenters never mutate it; they return updated snapshots.
type GeneratedFileReference struct {
	Type   MediaType           `json:"type"`
	Values GeneratedFileValues `json:"values"`
}

// HasLowRes reports whether a low-resolution variant should be used for inline display.
func (r GeneratedFileReference) HasLowRes() bool {
	return r.Type.Essence() == MediaTypePNG && r.Values.FileKeyLowRes != "" && r.Values.PresignedURLLowRes != ""
}

// StoredReference is a reference snapshot persisted under a caller-chosen ID.
type StoredReference struct {
	ID        string                 `json:"id"`
	Reference GeneratedFileReference `json:"file_info"`
}

type PreviewKind string

const (
	PreviewTable       PreviewKind = "table"
	PreviewDocument    PreviewKind = "document"
	PreviewImage       PreviewKind = "image"
	PreviewBinary      PreviewKind = "binary"
	PreviewUnsupported PreviewKind = "unsupported"
)

type PreviewState string

const (
	PreviewReady       PreviewState = "ready"
	PreviewUnavailable PreviewState = "unavailable"
)

const (
	// CSVPreviewMaxLines bounds the tabular preview.
	CSVPreviewMaxLines  = 12
	CSVTruncationMarker = "..."

	MessageTableUnavailable    = "Unfortunately, we are unable to display the file contents at this time..."
	MessageDocumentUnavailable = "Unfortunately, we are unable to display the PDF at this time..."
	MessageImageUnavailable    = "Unfortunately, we are unable to display the image at this time..."
	MessageTableOverflow       = "Download to see full content"
	MessageBinary              = "Please download to view the file contents"
	MessageUnsupported         = "Unsupported file type"
)

// DownloadLink is the target of the download affordance. NeedsRefresh is set
// when URL has expired and was not reissued for this render; it must be
// resolved through a download call before it is followed.
type DownloadLink struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	NeedsRefresh bool   `json:"needs_refresh,omitempty"`
}

// Preview is a bounded, render-ready view of a generated file.
type Preview struct {
	Kind     PreviewKind  `json:"kind"`
	State    PreviewState `json:"state"`
	Download DownloadLink `json:"download"`

	// Table previews.
	Lines    []string   `json:"lines,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
	Overflow bool       `json:"overflow,omitempty"`

	// Document embeds point at a transient local object URL.
	EmbedURL string `json:"embed_url,omitempty"`

	// Image previews; FailureText replaces the image when it fails to load.
	InlineURL   string `json:"inline_url,omitempty"`
	FailureText string `json:"failure_text,omitempty"`

	Message    string `json:"message,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
}
