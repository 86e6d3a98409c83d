package index

import (
	"regexp"
	"strings"
)

// CompileLike lowercases pattern and compiles it to an anchored regular
// expression: '%' -> ".*", '_' -> ".", '\c' -> escaped c, and every
// regex-metacharacter in a literal run is escaped with [regexp.QuoteMeta].
// Exported so the filter engine's scan-path evaluation of `like` shares
// exactly the same compiler as the index's fast path.
func CompileLike(pattern string) *regexp.Regexp {
	lower := strings.ToLower(pattern)

	var out strings.Builder

	out.WriteByte('^')

	literal := strings.Builder{}

	flushLiteral := func() {
		if literal.Len() > 0 {
			out.WriteString(regexp.QuoteMeta(literal.String()))
			literal.Reset()
		}
	}

	runes := []rune(lower)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '%':
			flushLiteral()
			out.WriteString(".*")
		case '_':
			flushLiteral()
			out.WriteString(".")
		case '\\':
			if i+1 < len(runes) {
				i++
				literal.WriteRune(runes[i])
			} else {
				literal.WriteRune('\\')
			}
		default:
			literal.WriteRune(runes[i])
		}
	}

	flushLiteral()
	out.WriteByte('$')

	re, err := regexp.Compile(out.String())
	if err != nil {
		// QuoteMeta-escaped literals composed with .*/. never produce an
		// invalid pattern; a compile failure here would be a bug in this
		// function, not bad user input, so fail closed to "matches nothing".
		return regexp.MustCompile(`$^`)
	}

	return re
}
