package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/sloppy/infrared/internal/scan"
)

// WriteCSV writes one flattened row per scanned target.
func WriteCSV(report Report, w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, result := range report.Results {
		if err := writer.Write(csvRow(result)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func csvHeader() []string {
	return []string{"path", "verdict", "threat_name", "md5", "sha256", "file_size", "quarantined"}
}

func csvRow(result scan.Result) []string {
	quarantined := "no"
	if result.Quarantine != nil {
		quarantined = "yes"
	}
	return []string{
		result.Target.Path,
		result.Detail.Status.String(),
		result.Detail.ThreatName,
		result.Detail.MD5,
		result.Detail.SHA256,
		strconv.FormatInt(result.Detail.FileSize, 10),
		quarantined,
	}
}
