package compiler

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MaxInlineMediaBytes caps the size of a plugin asset that may be inlined
// as a data URI. Larger assets are a compile error: the compiled module must
// stay self-contained and the composition surface never fetches from disk.
const MaxInlineMediaBytes = 1 << 20

var mediaMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
}

// inlineMedia rewrites img sources that reference plugin-local assets into
// embedded data URIs. Absolute URLs, data URIs, and expression-bearing
// sources are left untouched.
func (c *Context) inlineMedia(nodes []*html.Node) error {
	var firstErr error
	for _, n := range nodes {
		walkElements(n, func(el *html.Node) {
			if firstErr != nil || el.DataAtom != atom.Img {
				return
			}
			for i, attr := range el.Attr {
				if attr.Key != "src" || !isLocalAsset(attr.Val) {
					continue
				}
				uri, err := c.assetDataURI(attr.Val)
				if err != nil {
					firstErr = err
					return
				}
				el.Attr[i].Val = uri
			}
		})
	}
	return firstErr
}

func isLocalAsset(src string) bool {
	if src == "" || containsExpression(src) {
		return false
	}
	lower := strings.ToLower(src)
	return !strings.HasPrefix(lower, "http://") &&
		!strings.HasPrefix(lower, "https://") &&
		!strings.HasPrefix(lower, "data:")
}

func (c *Context) assetDataURI(src string) (string, error) {
	if c.AssetsDir == "" {
		return "", c.errorf("widget references asset %q but the plugin has no assets directory", src)
	}

	clean := filepath.Clean("/" + src)
	path := filepath.Join(c.AssetsDir, clean)

	info, err := os.Stat(path)
	if err != nil {
		return "", c.errorf("asset %q not found: %v", src, err)
	}
	if info.Size() > MaxInlineMediaBytes {
		return "", c.errorf("asset %q is %d bytes, exceeds the %d byte inline limit", src, info.Size(), MaxInlineMediaBytes)
	}

	mime, ok := mediaMIMETypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", c.errorf("asset %q has an unsupported media type", src)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is confined to the plugin assets directory
	if err != nil {
		return "", c.errorf("failed to read asset %q: %v", src, err)
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
