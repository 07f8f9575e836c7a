package domain

import "strings"

// MediaType is a declared media type string as reported by the uploader.
type MediaType string

const (
	MediaTypeZip         MediaType = "application/zip"
	MediaTypeZipWindows  MediaType = "application/x-zip-compressed"
	MediaTypePDF         MediaType = "application/pdf"
	MediaTypeDocx        MediaType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeJSON        MediaType = "application/json"
	MediaTypeXlsx        MediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MediaTypeYAML        MediaType = "application/yaml"
	MediaTypeYAMLLegacy  MediaType = "application/x-yaml"
	MediaTypeCSV         MediaType = "text/csv"
	MediaTypePNG         MediaType = "image/png"
	MediaTypeBinary      MediaType = "binary/octet-stream"
	MediaTypeOctetStream MediaType = "application/octet-stream"
	MediaTypeUnspecified MediaType = ""
)

// Essence strips parameters such as "; charset=utf-8" and lowercases the type.
func (m MediaType) Essence() MediaType {
	s := string(m)
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return MediaType(strings.ToLower(strings.TrimSpace(s)))
}

func (m MediaType) IsArchive() bool {
	switch m.Essence() {
	case MediaTypeZip, MediaTypeZipWindows:
		return true
	default:
		return false
	}
}

// SourceFile is a locally selected file: name, declared type and bytes.
type SourceFile struct {
	Name         string
	DeclaredType MediaType
	Data         []byte
}

// ArchiveMember is one expanded archive entry. Err is set when the member's
// bytes could not be read; File then carries only the name.
type ArchiveMember struct {
	File SourceFile
	Err  error
}

// AttachedDocument is the normalized result of decoding one file.
//
// Raw holds the minimally processed extraction and Parsed the structured form;
// their concrete types depend on the decoder that produced them.
type AttachedDocument struct {
	Name         string    `json:"name"`
	DeclaredType MediaType `json:"type"`
	Raw          any       `json:"raw"`
	Parsed       any       `json:"data"`
}

// ArchiveEntry is the outcome of decoding one non-directory archive member.
// Exactly one of Document, Nested or Err is set.
type ArchiveEntry struct {
	Path     string
	Document *AttachedDocument
	Nested   *ArchiveExtraction
	Err      error
}

func (e ArchiveEntry) Failed() bool {
	return e.Err != nil
}

// ArchiveExtraction holds member results in the archive's enumeration order.
type ArchiveExtraction struct {
	Name    string
	Entries []ArchiveEntry
}

// Documents flattens successful member documents, nested archives included,
// preserving enumeration order.
func (a *ArchiveExtraction) Documents() []AttachedDocument {
	if a == nil {
		return nil
	}
	out := make([]AttachedDocument, 0, len(a.Entries))
	for _, entry := range a.Entries {
		switch {
		case entry.Document != nil:
			out = append(out, *entry.Document)
		case entry.Nested != nil:
			out = append(out, entry.Nested.Documents()...)
		}
	}
	return out
}

// Failures counts failed members, nested archives included.
func (a *ArchiveExtraction) Failures() int {
	if a == nil {
		return 0
	}
	n := 0
	for _, entry := range a.Entries {
		switch {
		case entry.Err != nil:
			n++
		case entry.Nested != nil:
			n += entry.Nested.Failures()
		}
	}
	return n
}
