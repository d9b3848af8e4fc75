package sqlobjects

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Windows1252 is the charset of most legacy Firebird databases.
var Windows1252 encoding.Encoding = charmap.Windows1252

// decodeText converts raw column bytes in charset to a trimmed UTF-8 string.
// Valid UTF-8 and undecodable input are returned unchanged.
func decodeText(charset encoding.Encoding, b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if charset == nil || utf8.Valid(b) {
		return strings.TrimSpace(string(b))
	}
	decoded, err := charset.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return strings.TrimSpace(string(decoded))
}
