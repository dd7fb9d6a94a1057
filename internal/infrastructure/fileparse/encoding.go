package fileparse

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// utf8BOM is stripped before any decoding
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeToUTF8 normalizes raw export bytes to UTF-8. Marketplace exports
// from Chinese platforms frequently arrive GBK/GB18030 encoded; the hint
// (from the file descriptor) is tried first, then UTF-8, then GB18030 as
// a fallback. Undecodable input is a structural error.
func DecodeToUTF8(data []byte, hint string) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	if hint != "" {
		enc, err := encodingFor(hint)
		if err != nil {
			return nil, err
		}
		if enc == nil { // hint was utf-8
			if !utf8.Valid(data) {
				return nil, fmt.Errorf("%w: declared utf-8 but content is not", ErrInvalidEncoding)
			}
			return data, nil
		}
		decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s decode failed: %v", ErrInvalidEncoding, hint, err)
		}
		return decoded, nil
	}

	if utf8.Valid(data) {
		return data, nil
	}

	decoded, _, err := transform.Bytes(simplifiedchinese.GB18030.NewDecoder(), data)
	if err != nil || !utf8.Valid(decoded) {
		return nil, ErrInvalidEncoding
	}
	return decoded, nil
}

// encodingFor maps an encoding hint to a decoder; nil means pass-through
// UTF-8.
func encodingFor(hint string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(hint, "_", "-")) {
	case "utf-8", "utf8":
		return nil, nil
	case "gbk":
		return simplifiedchinese.GBK, nil
	case "gb18030":
		return simplifiedchinese.GB18030, nil
	case "gb2312", "hz-gb2312":
		return simplifiedchinese.HZGB2312, nil
	case "big5":
		return traditionalchinese.Big5, nil
	case "utf-16", "utf16", "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, hint)
	}
}
