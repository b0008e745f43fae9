package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/elecmate/certsync/internal/client/models"
)

// formatStatus renders the short status shown in the prompt.
func formatStatus(s models.SyncStatus) string {
	out := fmt.Sprintf("local %s, cloud %s", s.Local, s.Cloud)
	if s.QueuedChanges > 0 {
		out += fmt.Sprintf(", %d queued", s.QueuedChanges)
	}
	if s.Warning != "" {
		out += " !"
	}
	return out
}

// formatStatusDetail renders every status field, one per line.
func formatStatusDetail(s models.SyncStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Local:          %s\n", s.Local)
	fmt.Fprintf(&b, "Cloud:          %s\n", s.Cloud)
	if s.ReportID != "" {
		fmt.Fprintf(&b, "Report:         %s\n", s.ReportID)
	}
	last := "never"
	if !s.LastCloudSync.IsZero() {
		last = s.LastCloudSync.Local().Format(time.DateTime)
	}
	fmt.Fprintf(&b, "Last sync:      %s\n", last)
	fmt.Fprintf(&b, "Queued changes: %d\n", s.QueuedChanges)
	if s.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error:          %s\n", s.ErrorMessage)
	}
	if s.Warning != "" {
		fmt.Fprintf(&b, "Warning:        %s\n", s.Warning)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
