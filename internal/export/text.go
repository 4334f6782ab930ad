package export

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/sloppy/infrared/internal/engine"
)

// WriteText writes a readable summary followed by the flagged files.
func WriteText(report Report, w io.Writer) error {
	s := report.Summary

	fmt.Fprintf(w, "Scan: %s (%s)\n", s.Label, s.JobID)
	fmt.Fprintf(w, "Outcome: %s\n", s.Reason)
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started: %s\n", s.StartedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "Scanned: %d of %d\n", s.Scanned, s.TargetCount)
	if s.SkippedRoots > 0 {
		fmt.Fprintf(w, "Skipped roots: %d\n", s.SkippedRoots)
	}
	fmt.Fprintf(w, "Clean: %d  Malicious: %d  Suspicious: %d  Errors: %d\n",
		s.Stats.Clean, s.Stats.Malicious, s.Stats.Suspicious, s.Stats.Errors)
	if s.Quarantined > 0 {
		fmt.Fprintf(w, "Quarantined: %d\n", s.Quarantined)
	}
	fmt.Fprintln(w, "")

	var flagged []int
	for i, result := range report.Results {
		if result.Detail.Status != engine.Clean {
			flagged = append(flagged, i)
		}
	}
	if len(flagged) == 0 {
		fmt.Fprintln(w, "No threats found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Path\tVerdict\tThreat\tSize")
	for _, i := range flagged {
		result := report.Results[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			result.Target.Path,
			result.Detail.Status,
			result.Detail.ThreatName,
			humanize.Bytes(uint64(result.Detail.FileSize)))
	}
	tw.Flush()

	return nil
}

// Write dispatches on format name; the zero value and "text" both pick the
// readable renderer.
func Write(format string, report Report, w io.Writer) error {
	switch format {
	case "json":
		return WriteJSON(report, w)
	case "csv":
		return WriteCSV(report, w)
	case "", "text":
		return WriteText(report, w)
	}
	return fmt.Errorf("unknown export format %q", format)
}
