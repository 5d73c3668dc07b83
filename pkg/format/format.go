// Package format extracts raw data items from CSV, JSON and XML input.
package format

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

// Format identifies an input data format.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	XML  Format = "xml"
	XLSX Format = "xlsx"
)

// ParseFormat parses a format name. XLSX is recognized but has no extractor.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSON, XML, XLSX:
		return f, nil
	}
	return "", fmt.Errorf("input data format %q is not supported for import", s)
}

// Options controls extraction.
type Options struct {
	Format  Format
	Charset string
	// Delimiter is the CSV field separator, ',' when zero
	Delimiter rune
}

// Extract reads all items from r. Errors are GENERAL failures.
func Extract(r io.Reader, opts Options) (*rawdata.Data, error) {
	decoded, err := Decode(r, opts.Charset)
	if err != nil {
		return nil, daedaluserrors.NewError(string(daedaluserrors.KindGeneral), "unable to decode input", err)
	}

	switch opts.Format {
	case CSV:
		return extractCSV(decoded, opts.Delimiter)
	case JSON:
		return extractJSON(decoded)
	case XML:
		return extractXML(decoded)
	case XLSX:
		return nil, daedaluserrors.NewError(string(daedaluserrors.KindGeneral),
			"input data format [xlsx] is not supported by this build", nil)
	}
	return nil, daedaluserrors.NewError(string(daedaluserrors.KindGeneral),
		fmt.Sprintf("input data format [%s] is not supported for import", opts.Format), nil)
}

// LookupCharset resolves an IANA charset name. Empty means UTF-8.
func LookupCharset(name string) (encoding.Encoding, error) {
	if name == "" || strings.EqualFold(name, "UTF-8") || strings.EqualFold(name, "UTF8") {
		return unicode.UTF8BOM, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
	return enc, nil
}

// Decode wraps r so that it yields UTF-8 text. A leading UTF-8 byte order mark is dropped.
func Decode(r io.Reader, charset string) (io.Reader, error) {
	enc, err := LookupCharset(charset)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
