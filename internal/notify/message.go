package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/traverse-labs/waypost/internal/transmit"
)

// FormatFailureMessage creates the notification body for a cycle in which
// every endpoint attempt failed.
func FormatFailureMessage(result transmit.CycleResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Endpoints: %d\n", result.Endpoints))
	sb.WriteString(fmt.Sprintf("Failed: %d\n", result.Failed))
	sb.WriteString(fmt.Sprintf("Duration: %s", result.Duration.Round(time.Second)))

	// Include first 3 error messages if available
	if len(result.Errors) > 0 {
		sb.WriteString("\n\nErrors:\n")
		limit := 3
		if len(result.Errors) < limit {
			limit = len(result.Errors)
		}
		for i := 0; i < limit; i++ {
			sb.WriteString(fmt.Sprintf("- %s\n", result.Errors[i]))
		}
		if len(result.Errors) > 3 {
			sb.WriteString(fmt.Sprintf("... and %d more errors", len(result.Errors)-3))
		}
	}

	return sb.String()
}
