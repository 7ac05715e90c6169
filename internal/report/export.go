package report

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format is an export document format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDoc  Format = "doc"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat resolves a format name; "word" and "docx" map to FormatDoc.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pdf":
		return FormatPDF, nil
	case "doc", "docx", "word":
		return FormatDoc, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatDoc:
		return "application/msword"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// Filename returns the download name for a report.
func (f Format) Filename(r Report) string {
	id := r.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("dsc-quiz-%s.%s", id, f)
}

// Exporter writes reports as documents.
type Exporter struct {
	// FontPath is a UTF-8 TrueType font for PDFs. Without it the PDF uses a
	// core font that covers Latin text only.
	FontPath string
	// MaxImageBytes skips embedded images larger than this. 0 means no limit.
	MaxImageBytes int
}

// Write renders r in format f. Every failure wraps ErrExport.
func (e Exporter) Write(w io.Writer, r Report, f Format) error {
	switch f {
	case FormatPDF:
		return e.WritePDF(w, r)
	case FormatDoc:
		return e.WriteDoc(w, r)
	case FormatXLSX:
		return e.WriteXLSX(w, r)
	}
	return fmt.Errorf("%w: %w: %q", ErrExport, ErrUnknownFormat, f)
}

// image is a decoded data URL.
type image struct {
	mime string
	data []byte
}

// ext returns the file extension for supported raster formats.
func (im image) ext() string {
	switch im.mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	}
	return ""
}

// decodeDataURL parses a base64 data URL.
func decodeDataURL(s string) (image, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return image{}, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return image{}, fmt.Errorf("data URL has no payload")
	}
	mime, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return image{}, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return image{}, fmt.Errorf("decode image payload: %w", err)
	}
	if len(data) == 0 {
		return image{}, fmt.Errorf("empty image payload")
	}
	return image{mime: strings.ToLower(mime), data: data}, nil
}

// itemImage decodes an item's image. A missing, oversized or unsupported
// image yields ok=false; a corrupt payload is an error.
func (e Exporter) itemImage(it Item) (image, bool, error) {
	if it.Image == "" {
		return image{}, false, nil
	}
	im, err := decodeDataURL(it.Image)
	if err != nil {
		return image{}, false, fmt.Errorf("%w: question %d image: %w", ErrExport, it.Number, err)
	}
	if im.ext() == "" {
		return image{}, false, nil
	}
	if e.MaxImageBytes > 0 && len(im.data) > e.MaxImageBytes {
		return image{}, false, nil
	}
	return im, true, nil
}
