package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fpang/videointel/internal/fusion"
	"github.com/fpang/videointel/internal/store"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// PrintSummary writes one row per processed video followed by the batch
// totals.
func PrintSummary(w io.Writer, s *fusion.BatchSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VIDEO\tSTATUS\tSHOTS\tWORDS\tTIME\tRECORD")
	for _, r := range s.Results {
		dest := r.RecordPath
		if r.Err != nil {
			dest = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.VideoID, r.Status, r.Shots, r.Words, FormatDurationShort(r.Duration), dest)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d processed, %d failed", s.Processed, s.Failed)
	if s.Cancelled > 0 {
		fmt.Fprintf(w, ", %d cancelled", s.Cancelled)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(w, ", %d skipped", s.Skipped)
	}
	fmt.Fprintln(w)
}

// PrintJobs writes the ledger entries as a table, newest first as given.
func PrintJobs(w io.Writer, jobs []*store.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tVIDEO\tSTATUS\tSHOTS\tUPDATED\tDETAIL")
	for _, j := range jobs {
		detail := j.RecordPath
		if j.Error != "" {
			detail = j.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			j.ID, j.VideoID, j.Status, j.ShotCount, j.UpdatedAt.Local().Format(time.DateTime), detail)
	}
	tw.Flush()
}
