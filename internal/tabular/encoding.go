package tabular

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeNative converts an export file written in the client's native GBK
// code page to UTF-8. Byte sequences that are not valid GBK become U+FFFD so
// the rest of the file stays usable. A leading UTF-8 byte order mark marks a
// file that is already UTF-8; it is stripped and the rest passed through.
func DecodeNative(data []byte) string {
	if bytes.HasPrefix(data, utf8BOM) {
		return string(data[len(utf8BOM):])
	}
	if isASCII(data) {
		return string(data)
	}

	out, _, err := transform.Bytes(simplifiedchinese.GBK.NewDecoder(), data)
	if err != nil {
		return string(bytes.ToValidUTF8(data, []byte(string(utf8.RuneError))))
	}
	return string(out)
}

// EncodeNative converts UTF-8 text to the client's GBK code page.
// It fails if the text holds runes GBK cannot represent.
func EncodeNative(text string) ([]byte, error) {
	out, _, err := transform.String(simplifiedchinese.GBK.NewEncoder(), text)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
