// Package output provides styled terminal output helpers (success, error,
// warning, record and sync formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vm799/trust-by-design-sub003/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	jobStyles    = map[models.JobStatus]lipgloss.Style{
		models.JobScheduled:  lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.JobInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.JobComplete:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.JobCancelled:  lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
	syncStyles = map[models.SyncStatus]lipgloss.Style{
		models.SyncLocalOnly:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		models.SyncPendingAck: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.SyncSynced:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.SyncFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// OutputMode determines output format
type OutputMode int

const (
	ModeShort OutputMode = iota
	ModeLong
	ModeJSON
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeConflict      = "conflict"
	ErrCodeNotPermitted  = "not_permitted"
	ErrCodeQuotaExceeded = "quota_exceeded"
	ErrCodeDatabaseError = "database_error"
	ErrCodeSyncError     = "sync_error"
	ErrCodeAuthError     = "auth_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	fmt.Printf(`{"error":{"code":"%s","message":"%s"}}`, code, message)
	fmt.Println()
}

// JSONErrorWithDetails outputs an error as JSON with additional context
func JSONErrorWithDetails(code, message string, details map[string]interface{}) {
	errObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		errObj["details"] = details
	}
	result := map[string]interface{}{
		"error": errObj,
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// FormatJobStatus formats a job status with color
func FormatJobStatus(s models.JobStatus) string {
	style, ok := jobStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatSyncStatus formats a sync lifecycle state with color
func FormatSyncStatus(s models.SyncStatus) string {
	style, ok := syncStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// SyncBadge returns a sync state indicator with symbol
// e.g., "○ local_only", "▶ pending_ack", "✓ synced", "✗ failed"
func SyncBadge(status models.SyncStatus) string {
	symbols := map[models.SyncStatus]string{
		models.SyncLocalOnly:  "○",
		models.SyncPendingAck: "▶",
		models.SyncSynced:     "✓",
		models.SyncFailed:     "✗",
	}
	symbol, ok := symbols[status]
	if !ok {
		symbol = "?"
	}
	style, hasStyle := syncStyles[status]
	if hasStyle {
		return style.Render(fmt.Sprintf("%s %s", symbol, status))
	}
	return fmt.Sprintf("%s %s", symbol, status)
}

// FormatJobShort formats a job in short list format
func FormatJobShort(job *models.Job, syncStatus models.SyncStatus) string {
	var parts []string
	parts = append(parts, titleStyle.Render(job.ID))
	parts = append(parts, job.Title)
	if job.ScheduledFor != "" {
		parts = append(parts, subtleStyle.Render(job.ScheduledFor))
	}
	parts = append(parts, FormatJobStatus(job.Status))
	parts = append(parts, SyncBadge(syncStatus))
	return strings.Join(parts, "  ")
}

// FormatJobLong formats a job with its evidence summary
func FormatJobLong(job *models.Job, syncStatus models.SyncStatus) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s: %s", job.ID, job.Title)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Status: %s  Sync: %s\n", FormatJobStatus(job.Status), SyncBadge(syncStatus)))
	if job.ClientID != "" {
		sb.WriteString(fmt.Sprintf("Client: %s\n", job.ClientID))
	}
	if job.TechnicianID != "" {
		sb.WriteString(fmt.Sprintf("Technician: %s\n", job.TechnicianID))
	}
	if job.ScheduledFor != "" {
		sb.WriteString(fmt.Sprintf("Scheduled: %s\n", job.ScheduledFor))
	}

	sb.WriteString(SectionHeader("Evidence"))
	sb.WriteString(fmt.Sprintf("  Photos: %d\n", len(job.PhotoIDs)))
	if job.HasSignature {
		sb.WriteString("  Signature: captured\n")
	} else {
		sb.WriteString(subtleStyle.Render("  Signature: none") + "\n")
	}

	if job.Notes != "" {
		sb.WriteString(SectionHeader("Notes"))
		sb.WriteString(IndentString(job.Notes, 2))
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatConflict formats one unresolved conflict for the review list
func FormatConflict(c *models.Conflict) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("#%d %s/%s", c.ID, c.EntityKind, c.EntityID)))
	sb.WriteString(subtleStyle.Render(fmt.Sprintf("  detected %s", FormatTimeAgo(c.DetectedAt))))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  Fields: %s\n", strings.Join(c.Fields, ", ")))

	local := fieldValues(c.LocalData, c.Fields)
	remote := fieldValues(c.RemoteData, c.Fields)
	for _, f := range c.Fields {
		sb.WriteString(fmt.Sprintf("    %s: local=%s  remote=%s\n", f, local[f], remote[f]))
	}
	return sb.String()
}

func fieldValues(data json.RawMessage, fields []string) map[string]string {
	doc := map[string]any{}
	_ = json.Unmarshal(data, &doc)
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v, ok := doc[f]
		if !ok {
			out[f] = "(absent)"
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			out[f] = "(unreadable)"
			continue
		}
		out[f] = string(b)
	}
	return out
}

// FormatBytes renders a byte count in the largest sensible unit
func FormatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/float64(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nEVIDENCE:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentLines indents each line by the specified number of spaces
func IndentLines(lines []string, spaces int) []string {
	indent := strings.Repeat(" ", spaces)
	result := make([]string, len(lines))
	for i, line := range lines {
		result[i] = indent + line
	}
	return result
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	indented := IndentLines(lines, spaces)
	return strings.Join(indented, "\n")
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}
