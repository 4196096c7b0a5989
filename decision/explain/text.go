package explain

import (
	"fmt"
	"strings"
)

// FormatText renders an explanation as a plain-text block. A nil explanation renders empty.
func FormatText(e *Explanation) string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n%s\n\n", e.Title, strings.Repeat("=", 50))
	fmt.Fprintf(&b, "Summary:\n%s\n\n", e.Summary)

	if len(e.Reasons) > 0 {
		b.WriteString("Reasons:\n")
		for i, r := range e.Reasons {
			fmt.Fprintf(&b, "%d. %s\n   Evidence: %s\n\n", i+1, r.Recommendation, r.Evidence)
		}
	}
	if len(e.NextActions) > 0 {
		b.WriteString("Next Actions:\n")
		for _, a := range e.NextActions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	return b.String()
}
