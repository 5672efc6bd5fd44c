// Package imagetype resolves the true image format of a fetched payload.
// Server-supplied content types are routinely wrong or missing, so the
// leading bytes decide first and the declared type is only a fallback.
package imagetype

import (
	"bytes"
	"strings"

	"github.com/jgivc/imgfetch/internal/common"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEBMP  = "image/bmp"
	MIMEWebP = "image/webp"
	MIMETIFF = "image/tiff"
	MIMESVG  = "image/svg+xml"

	svgProbeSize = 1024
)

var signatures = []struct {
	magic []byte
	mime  string
}{
	{[]byte{0xFF, 0xD8, 0xFF}, MIMEJPEG},
	{[]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, MIMEPNG},
	{[]byte("GIF87a"), MIMEGIF},
	{[]byte("GIF89a"), MIMEGIF},
	{[]byte("BM"), MIMEBMP},
	{[]byte{'I', 'I', 0x2A, 0x00}, MIMETIFF},
	{[]byte{'M', 'M', 0x00, 0x2A}, MIMETIFF},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Classify returns the resolved MIME type of data. A matching magic-byte
// signature wins over declared; declared is accepted only when it is an
// image/* type and no signature matched.
func Classify(data []byte, declared string) (string, error) {
	if len(data) == 0 {
		return "", common.ErrEmptyPayloadError
	}

	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.mime, nil
		}
	}

	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return MIMEWebP, nil
	}

	if IsSVG(data) {
		return MIMESVG, nil
	}

	if base := baseType(declared); strings.HasPrefix(base, "image/") {
		return base, nil
	}

	return "", common.ErrNotAnImageError
}

// IsSVG reports whether data looks like SVG markup: a <svg root, or an xml
// prolog with an <svg element within the probe window.
func IsSVG(data []byte) bool {
	head := bytes.TrimPrefix(data, utf8BOM)
	head = bytes.TrimLeft(head, " \t\r\n")

	if hasFoldPrefix(head, "<svg") {
		return true
	}

	if !hasFoldPrefix(head, "<?xml") {
		return false
	}

	if len(head) > svgProbeSize {
		head = head[:svgProbeSize]
	}

	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

// Extension returns the archive-entry extension for a resolved MIME type.
func Extension(mime string) string {
	switch baseType(mime) {
	case MIMEJPEG:
		return "jpg"
	case MIMEPNG:
		return "png"
	case MIMEGIF:
		return "gif"
	case MIMEBMP:
		return "bmp"
	case MIMEWebP:
		return "webp"
	case MIMETIFF:
		return "tif"
	case MIMESVG:
		return "svg"
	}

	return "img"
}

func baseType(mime string) string {
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}

	return strings.ToLower(strings.TrimSpace(mime))
}

func hasFoldPrefix(data []byte, prefix string) bool {
	if len(data) < len(prefix) {
		return false
	}

	return strings.EqualFold(string(data[:len(prefix)]), prefix)
}
