package profile

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// escape renders s in the ASCII-only form readers of ISO-8859-1 property files
// expect: "key=value" with separators, comment markers and non-printable or
// non-ASCII characters escaped. Every space in a key is escaped, in a value only
// a leading one.
func escape(s string, key bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch r {
		case ' ':
			if key || i == 0 {
				b.WriteString(`\ `)
			} else {
				b.WriteByte(' ')
			}
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\f':
			b.WriteString(`\f`)
		case '=', ':', '#', '!':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			switch {
			case r < 0x20 || r > 0x7e && r <= 0xffff:
				fmt.Fprintf(&b, `\u%04X`, r)
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(&b, `\u%04X\u%04X`, hi, lo)
			default:
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
