package mime

import "strings"

type MIME = string

const (
	OctetStream MIME = "application/octet-stream"
	Plain       MIME = "text/plain"
	HTML        MIME = "text/html"
	CSS         MIME = "text/css"
	JS          MIME = "text/javascript"
	XML         MIME = "text/xml"
	JSON        MIME = "application/json"
	PDF         MIME = "application/pdf"
	WASM        MIME = "application/wasm"
	ZIP         MIME = "application/zip"
	GZIP        MIME = "application/gzip"
	AVIF        MIME = "image/avif"
	GIF         MIME = "image/gif"
	JPEG        MIME = "image/jpeg"
	PNG         MIME = "image/png"
	SVG         MIME = "image/svg+xml"
	ICO         MIME = "image/vnd.microsoft.icon"
	WEBP        MIME = "image/webp"
)

var Extension = map[string]MIME{
	".avif": AVIF,
	".css":  CSS,
	".gif":  GIF,
	".htm":  HTML,
	".html": HTML,
	".ico":  ICO,
	".jpeg": JPEG,
	".jpg":  JPEG,
	".js":   JS,
	".mjs":  JS,
	".json": JSON,
	".pdf":  PDF,
	".png":  PNG,
	".svg":  SVG,
	".txt":  Plain,
	".wasm": WASM,
	".webp": WEBP,
	".xml":  XML,
	".gz":   GZIP,
	".zip":  ZIP,
}

// textual MIMEs are served with an explicit utf-8 charset
var textual = map[MIME]bool{
	Plain: true,
	HTML:  true,
	CSS:   true,
	JS:    true,
	XML:   true,
	JSON:  true,
}

// ByExtension looks up the MIME of the extension (leading dot included), case-insensitively.
// Unknown extensions are reported as OctetStream
func ByExtension(ext string) MIME {
	if m, found := Extension[strings.ToLower(ext)]; found {
		return m
	}

	return OctetStream
}

// WithCharset returns a Content-Type value for the MIME, appending the charset parameter
// for textual types
func WithCharset(m MIME) string {
	if textual[m] {
		return m + "; charset=utf-8"
	}

	return m
}
