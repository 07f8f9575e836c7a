package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

// officeTypes covers extensions the mime package does not reliably know.
var officeTypes = map[string]domain.MediaType{
	".docx": domain.MediaTypeDocx,
	".xlsx": domain.MediaTypeXlsx,
	".yaml": domain.MediaTypeYAML,
	".yml":  domain.MediaTypeYAML,
	".csv":  domain.MediaTypeCSV,
	".zip":  domain.MediaTypeZip,
	".json": domain.MediaTypeJSON,
	".pdf":  domain.MediaTypePDF,
}

type Options struct {
	// InferMemberTypes derives member types from file extensions. Without it
	// members carry no declared type.
	InferMemberTypes bool
	// MaxMemberBytes caps how much of a member is read. A member hitting the
	// cap is returned one byte over it so size checks downstream reject it.
	MaxMemberBytes int64
}

// Expander opens zip archives.
type Expander struct {
	opts Options
}

func NewExpander(opts Options) *Expander {
	if opts.MaxMemberBytes < 0 {
		opts.MaxMemberBytes = 0
	}
	return &Expander{opts: opts}
}

// Expand returns the non-directory members in the archive's own order. A
// member that cannot be read (unsupported method, checksum mismatch) keeps its
// slot with Err set so its siblings are still delivered.
func (e *Expander) Expand(ctx context.Context, archive domain.SourceFile) ([]domain.ArchiveMember, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive.Data), int64(len(archive.Data)))
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archive.Name, err)
	}

	members := make([]domain.ArchiveMember, 0, len(reader.File))
	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		member := domain.ArchiveMember{File: domain.SourceFile{Name: f.Name}}
		if e.opts.InferMemberTypes {
			member.File.DeclaredType = InferType(f.Name)
		}
		data, err := e.readMember(f)
		if err != nil {
			member.Err = fmt.Errorf("read member %s: %w", f.Name, err)
		} else {
			member.File.Data = data
		}
		members = append(members, member)
	}
	return members, nil
}

func (e *Expander) readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var src io.Reader = rc
	if e.opts.MaxMemberBytes > 0 {
		src = io.LimitReader(rc, e.opts.MaxMemberBytes+1)
	}
	return io.ReadAll(src)
}

// InferType maps a file name's extension to a media type, or returns the
// unspecified type when the extension is unknown.
func InferType(name string) domain.MediaType {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return domain.MediaTypeUnspecified
	}
	if mediaType, ok := officeTypes[ext]; ok {
		return mediaType
	}
	return domain.MediaType(mime.TypeByExtension(ext)).Essence()
}
