// Package export renders a finished scan job as JSON, CSV, or readable text.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sloppy/infrared/internal/db"
	"github.com/sloppy/infrared/internal/engine"
	"github.com/sloppy/infrared/internal/enumerate"
	"github.com/sloppy/infrared/internal/scan"
)

// Report is the exportable view of one job: its summary plus every
// per-target result in scan order.
type Report struct {
	Summary scan.Summary  `json:"summary"`
	Results []scan.Result `json:"results"`
}

// Collect drains a job's event stream into a Report. It blocks until the
// stream closes; the summary comes from the terminal event.
func Collect(events <-chan scan.Event) Report {
	var report Report
	for ev := range events {
		switch ev.Kind {
		case scan.EventResult:
			report.Results = append(report.Results, *ev.Result)
		case scan.EventDone:
			if ev.Summary != nil {
				report.Summary = *ev.Summary
			}
		}
	}
	return report
}

// FromRows rebuilds a Report from archived result rows, for exports after
// the live event stream is gone. The summary is reconstructed from the rows.
func FromRows(jobID, label string, rows []db.ResultRow) Report {
	report := Report{
		Summary: scan.Summary{
			JobID:  jobID,
			Label:  label,
			Reason: scan.ReasonCompleted,
		},
	}
	for _, row := range rows {
		verdict := engine.Verdict(row.Verdict)
		result := scan.Result{
			Target: enumerate.Target{Path: row.Path},
			Detail: engine.Detail{
				Status:     verdict,
				ThreatName: row.ThreatName,
				MD5:        row.MD5,
				SHA256:     row.SHA256,
				FileSize:   row.FileSize,
			},
		}
		if row.Quarantined {
			report.Summary.Quarantined++
		}
		report.Summary.Stats.Add(verdict)
		report.Results = append(report.Results, result)
	}
	report.Summary.Scanned = len(rows)
	report.Summary.TargetCount = len(rows)
	return report
}

// WriteJSON writes the full report as indented JSON.
func WriteJSON(report Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
