package shapefile

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// readCodePage returns a decoder for the code page named in the .cpg file
// next to base. A missing file or a UTF-8 code page yields nil.
func readCodePage(base string) (*encoding.Decoder, error) {
	raw, err := os.ReadFile(base + ".cpg")
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "shapefile: read code page")
	}
	enc, err := lookupCodePage(string(raw))
	if err != nil {
		return nil, err
	}
	if enc == nil || enc == unicode.UTF8 {
		return nil, nil
	}
	return enc.NewDecoder(), nil
}

// lookupCodePage resolves the names ESRI tools write into .cpg files,
// e.g. "UTF-8", "1252", "ANSI 1252" or "ISO-8859-1".
func lookupCodePage(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	name = strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(name), "ANSI"))
	if isDigits(name) {
		name = "windows-" + name
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: unsupported code page %q", name)
	}
	return enc, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
