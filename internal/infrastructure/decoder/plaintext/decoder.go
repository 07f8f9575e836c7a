package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

// Decoder reads any file as text. It is the fallback for types without a
// dedicated decoder.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(ctx context.Context, file domain.SourceFile) (*domain.AttachedDocument, error) {
	text, err := ReadText(ctx, file)
	if err != nil {
		return nil, err
	}
	return &domain.AttachedDocument{
		Name:         file.Name,
		DeclaredType: file.DeclaredType,
		Raw:          text,
		Parsed:       text,
	}, nil
}

var byteOrderMarks = []struct {
	mark    []byte
	charset string
}{
	{mark: []byte{0xef, 0xbb, 0xbf}, charset: "utf-8"},
	{mark: []byte{0xfe, 0xff}, charset: "utf-16be"},
	{mark: []byte{0xff, 0xfe}, charset: "utf-16le"},
}

// ReadText decodes file bytes to UTF-8. The charset comes from a byte order
// mark or the declared type's charset parameter; otherwise valid UTF-8 is kept
// as is and anything else is read as windows-1252. Content is never sniffed,
// so markup that names a charset inside a text file has no effect.
func ReadText(ctx context.Context, file domain.SourceFile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(file.Data) == 0 {
		return "", nil
	}

	data, name := file.Data, ""
	for _, bom := range byteOrderMarks {
		if bytes.HasPrefix(data, bom.mark) {
			data, name = data[len(bom.mark):], bom.charset
			break
		}
	}
	if name == "" {
		name = declaredCharset(file.DeclaredType)
	}
	if name == "" {
		if utf8.Valid(data) {
			return string(data), nil
		}
		name = "windows-1252"
	}

	enc, canonical := charset.Lookup(name)
	if enc == nil {
		return "", fmt.Errorf("unknown charset %q", name)
	}
	if canonical == "utf-8" {
		return string(data), nil
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s text: %w", canonical, err)
	}
	return string(decoded), nil
}

func declaredCharset(mediaType domain.MediaType) string {
	if mediaType == domain.MediaTypeUnspecified {
		return ""
	}
	_, params, err := mime.ParseMediaType(string(mediaType))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}
