package csvmap

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// decodeReader wraps src so the mapper always reads UTF-8, honoring the
// schema-declared source encoding. Unknown encodings are a load-time fatal
// error; guessing would silently corrupt text.
func decodeReader(src io.Reader, name string) (io.Reader, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return src, nil
	}
	return enc.NewDecoder().Reader(src), nil
}

// lookupEncoding maps the schema encoding names seen in real exports onto
// x/text decoders. A nil result means the input is already UTF-8.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "utf-8-sig":
		// Excel's BOM-prefixed UTF-8.
		return unicode.UTF8BOM, nil
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}
