package rules

import (
	"strings"
	"time"
)

// FormatMessageDate renders t as "30 January 2025 2.30pm".
func FormatMessageDate(t time.Time) string {
	return t.Format("2 January 2006") + " " + strings.ToLower(t.Format("3.04PM"))
}
