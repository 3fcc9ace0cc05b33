package escalation

import (
	"fmt"
	"strings"
	"time"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/patterns"
	"github.com/automend/automend/internal/utils"
)

// FormatNotice renders the escalation message delivered to a resolved target.
func FormatNotice(level int, pattern *patterns.Pattern) string {
	var b strings.Builder

	emoji := database.GetSeverityEmoji(pattern.Severity)
	fmt.Fprintf(&b, "%s Escalation (level %d): %s\n", emoji, level, utils.TruncateText(pattern.Description, 500))
	fmt.Fprintf(&b, "Severity: %s\n", pattern.Severity)
	fmt.Fprintf(&b, "First detected: %s ago\n", utils.FormatDuration(time.Since(pattern.FirstDetectedAt).Round(time.Second)))
	fmt.Fprintf(&b, "Occurrences: %s\n", utils.FormatNumber(pattern.Occurrences))

	if len(pattern.AffectedEntities) > 0 {
		fmt.Fprintf(&b, "Affected: %s\n", strings.Join(pattern.AffectedEntities, ", "))
	}
	if len(pattern.SuggestedActions) > 0 {
		b.WriteString("Suggested actions:\n")
		for _, action := range pattern.SuggestedActions {
			fmt.Fprintf(&b, "  - %s\n", action)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatCancellationNotice renders the message sent when an escalation is
// rolled back.
func FormatCancellationNotice(level int, patternID string) string {
	return fmt.Sprintf("Escalation at level %d for condition %s has been cancelled. No further action is needed.",
		level, patternID)
}
