package agent

import "strings"

// Kind classifies a model reaction.
type Kind string

const (
	KindSay     Kind = "say"
	KindGoodbye Kind = "goodbye"
	KindReact   Kind = "react"
	KindUnknown Kind = "unknown"
)

var markers = []struct {
	prefix string
	kind   Kind
}{
	{"SAY:", KindSay},
	{"GOODBYE:", KindGoodbye},
	{"REACT:", KindReact},
}

// ParseReaction finds the earliest SAY:, GOODBYE: or REACT: marker in out and
// returns its kind with the text after it on the same line, unquoted.
// Output without a marker is KindUnknown with the trimmed raw text.
func ParseReaction(out string) (Kind, string) {
	best, bestAt := KindUnknown, -1
	var bestPrefix string
	for _, m := range markers {
		if i := strings.Index(out, m.prefix); i >= 0 && (bestAt < 0 || i < bestAt) {
			best, bestAt, bestPrefix = m.kind, i, m.prefix
		}
	}
	if bestAt < 0 {
		return KindUnknown, strings.TrimSpace(out)
	}
	rest := out[bestAt+len(bestPrefix):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	rest = strings.TrimSpace(rest)
	rest = strings.Trim(rest, `"`)
	return best, strings.TrimSpace(rest)
}
