package uridecode

import (
	"strings"

	"github.com/indigo-web/origin/internal/hexconv"
)

// Decode translates %XX escapes into their true form. Invalid or truncated escape
// sequences are left verbatim, and the plus sign is never treated as a space
func Decode(src string) string {
	i := strings.IndexByte(src, '%')
	if i == -1 {
		return src
	}

	buff := make([]byte, 0, len(src))

	for ; i != -1; i = strings.IndexByte(src, '%') {
		buff = append(buff, src[:i]...)

		if i+2 < len(src) {
			if char, ok := hexconv.Byte(src[i+1], src[i+2]); ok {
				buff = append(buff, char)
				src = src[i+3:]
				continue
			}
		}

		buff = append(buff, '%')
		src = src[i+1:]
	}

	return string(append(buff, src...))
}
