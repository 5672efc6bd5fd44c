package imagetype

import (
	"testing"

	"github.com/jgivc/imgfetch/internal/common"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	pngSig := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

	testCases := []struct {
		name     string
		data     []byte
		declared string
		expected string
		err      error
	}{
		{
			name:     "png signature beats declared text/plain",
			data:     append(append([]byte{}, pngSig...), []byte("trailing garbage")...),
			declared: "text/plain",
			expected: MIMEPNG,
		},
		{
			name:     "png signature with empty declared type",
			data:     pngSig,
			declared: "",
			expected: MIMEPNG,
		},
		{
			name:     "jpeg",
			data:     []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00},
			declared: "application/octet-stream",
			expected: MIMEJPEG,
		},
		{
			name:     "gif89a",
			data:     []byte("GIF89a......"),
			expected: MIMEGIF,
		},
		{
			name:     "gif87a",
			data:     []byte("GIF87a......"),
			expected: MIMEGIF,
		},
		{
			name:     "bmp",
			data:     []byte("BM\x00\x01"),
			expected: MIMEBMP,
		},
		{
			name:     "webp riff container",
			data:     []byte("RIFF\x24\x00\x00\x00WEBPVP8 "),
			expected: MIMEWebP,
		},
		{
			name:     "tiff little endian",
			data:     []byte{'I', 'I', 0x2A, 0x00, 0x08},
			expected: MIMETIFF,
		},
		{
			name:     "tiff big endian",
			data:     []byte{'M', 'M', 0x00, 0x2A, 0x00},
			expected: MIMETIFF,
		},
		{
			name:     "svg root element",
			data:     []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`),
			declared: "text/html",
			expected: MIMESVG,
		},
		{
			name:     "svg with xml prolog and leading whitespace",
			data:     []byte("\n  <?xml version=\"1.0\"?>\n<svg></svg>"),
			expected: MIMESVG,
		},
		{
			name:     "xml prolog without svg element",
			data:     []byte(`<?xml version="1.0"?><note></note>`),
			declared: "text/xml",
			err:      common.ErrNotAnImageError,
		},
		{
			name:     "no signature, declared image accepted",
			data:     []byte("no signature here"),
			declared: "image/x-icon; charset=binary",
			expected: "image/x-icon",
		},
		{
			name:     "no signature, declared not an image",
			data:     []byte("<html><body>404</body></html>"),
			declared: "text/html",
			err:      common.ErrNotAnImageError,
		},
		{
			name: "empty payload",
			data: nil,
			err:  common.ErrEmptyPayloadError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mime, err := Classify(tc.data, tc.declared)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expected, mime)
		})
	}
}

func TestExtension(t *testing.T) {
	require.Equal(t, "jpg", Extension("image/jpeg"))
	require.Equal(t, "png", Extension("IMAGE/PNG"))
	require.Equal(t, "svg", Extension("image/svg+xml; charset=utf-8"))
	require.Equal(t, "tif", Extension("image/tiff"))
	require.Equal(t, "img", Extension("image/x-unknown"))
}
