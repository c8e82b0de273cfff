package sources

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names a text encoding attempted when decoding a source.
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingUTF16       Encoding = "utf-16"
	EncodingWindows1252 Encoding = "windows-1252"
	EncodingLatin1      Encoding = "iso-8859-1"
)

// DefaultEncodings is the ordered fallback list. UTF-8 and UTF-16 fail loudly on
// invalid input; the single-byte code pages always decode, so they go last.
var DefaultEncodings = []Encoding{
	EncodingUTF8,
	EncodingUTF16,
	EncodingWindows1252,
	EncodingLatin1,
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NewDecodingReader wraps r so that it yields UTF-8 text decoded from enc.
// Decoding errors surface from Read, which lets callers restart with the next encoding.
func NewDecodingReader(r io.Reader, enc Encoding) (io.Reader, error) {
	switch enc {
	case EncodingUTF8:
		br := bufio.NewReader(r)
		if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			if _, err := br.Discard(len(utf8BOM)); err != nil {
				return nil, fmt.Errorf("discard BOM: %w", err)
			}
		}
		return transform.NewReader(br, encoding.UTF8Validator), nil
	case EncodingUTF16:
		return transform.NewReader(r, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()), nil
	case EncodingWindows1252:
		return charmap.Windows1252.NewDecoder().Reader(r), nil
	case EncodingLatin1:
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
}
