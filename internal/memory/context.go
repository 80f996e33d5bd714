package memory

import (
	"fmt"
	"strings"
	"time"
)

// FormatContextPrompt renders retrieved records as a prompt section, each
// line prefixed by the record's age relative to now.
func FormatContextPrompt(records []Retrieved, now time.Time) string {
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Relevant memories]\n")
	for _, r := range records {
		fmt.Fprintf(&b, "- (%s) %s\n", RelativeAge(now.Sub(r.CreatedAt)), r.Content)
	}
	return b.String()
}

// RelativeAge renders d as "just now", "5 minutes ago", "3 hours ago" or "2 days ago".
func RelativeAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
