package coerce

import (
	"strings"
	"unicode"
)

// Named layouts accepted as a date pattern.
var namedLayouts = map[string]string{
	"ANSIC":       "Mon Jan _2 15:04:05 2006",
	"UnixDate":    "Mon Jan _2 15:04:05 MST 2006",
	"RubyDate":    "Mon Jan 02 15:04:05 -0700 2006",
	"RFC822":      "02 Jan 06 15:04 MST",
	"RFC822Z":     "02 Jan 06 15:04 -0700",
	"RFC850":      "Monday, 02-Jan-06 15:04:05 MST",
	"RFC1123":     "Mon, 02 Jan 2006 15:04:05 MST",
	"RFC1123Z":    "Mon, 02 Jan 2006 15:04:05 -0700",
	"RFC3339":     "2006-01-02T15:04:05Z07:00",
	"RFC3339Nano": "2006-01-02T15:04:05.999999999Z07:00",
	"DateTime":    "2006-01-02 15:04:05",
	"DateOnly":    "2006-01-02",
}

// Date styles accepted as a date pattern.
var dateStyles = map[string]string{
	"YYYY_MM_DD":       "2006-01-02",
	"DD_MM_YYYY":       "02-01-2006",
	"MM_DD_YYYY":       "01-02-2006",
	"YYYY_MM_DD_SLASH": "2006/01/02",
	"DD_MM_YYYY_SLASH": "02/01/2006",
	"MM_DD_YYYY_SLASH": "01/02/2006",
}

// Pattern letters, longest first within each letter.
var patternTokens = []struct {
	token  string
	layout string
}{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"dd", "02"},
	{"d", "2"},
	{"EEEE", "Monday"},
	{"EEE", "Mon"},
	{"HH", "15"},
	{"H", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"m", "4"},
	{"ss", "05"},
	{"s", "5"},
	{"SSSSSSSSS", "000000000"},
	{"SSSSSS", "000000"},
	{"SSS", "000"},
	{"a", "PM"},
	{"XXX", "Z07:00"},
	{"Z", "-0700"},
	{"z", "MST"},
}

// ResolveLayout turns a configured date pattern into a Go time layout.
// The pattern may be a named layout (RFC3339, DateOnly, ...), a date style
// (DD_MM_YYYY, ...), a letter pattern such as "dd/MM/yyyy HH:mm" or a Go
// layout. Go layouts are recognized by their reference digits. An empty
// pattern resolves to fallback.
func ResolveLayout(pattern, fallback string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fallback
	}
	if layout, ok := namedLayouts[pattern]; ok {
		return layout
	}
	if layout, ok := dateStyles[strings.ToUpper(pattern)]; ok {
		return layout
	}
	if strings.IndexFunc(pattern, unicode.IsDigit) >= 0 {
		return pattern
	}
	return translatePattern(pattern)
}

func translatePattern(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		c := pattern[i]
		if c == '\'' {
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				b.WriteString(pattern[i+1:])
				break
			}
			if end == 0 {
				b.WriteByte('\'')
			} else {
				b.WriteString(pattern[i+1 : i+1+end])
			}
			i += end + 2
			continue
		}

		matched := false
		for _, t := range patternTokens {
			if strings.HasPrefix(pattern[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
