package download

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/jgivc/imgfetch/internal/imagetype"
)

const rasterizedExt = "png"

var unsafeReplacer = strings.NewReplacer(
	"?", "_",
	"&", "_",
	"=", "_",
	"/", "_",
	"\\", "_",
	"\x00", "_",
)

// buildFilename derives an archive entry name from the url path: query
// stripped, last segment taken as-is when it already has an extension,
// otherwise one is appended from the resolved MIME type. URLs with no usable
// segment fall back to an index-based name. Rasterized outcomes always end
// in .png regardless of the source name.
func buildFilename(rawURL string, idx int, mimeType string, rasterized bool) string {
	ext := imagetype.Extension(mimeType)
	if rasterized {
		ext = rasterizedExt
	}

	name := lastSegment(rawURL)
	if name == "" {
		return fmt.Sprintf("image-%d.%s", idx+1, ext)
	}

	name = sanitize(name)

	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		if rasterized {
			return name[:dot+1] + ext
		}

		return name
	}

	return name + "." + ext
}

func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	segment := path.Base(u.Path)
	if segment == "." || segment == "/" {
		return ""
	}

	return segment
}

func sanitize(name string) string {
	name = unsafeReplacer.Replace(name)

	return strings.Map(func(r rune) rune {
		if r < 0x20 {
			return '_'
		}

		return r
	}, name)
}
