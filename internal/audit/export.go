package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"codeberg.org/halcyard/taskguard/internal/errors"
)

// Format selects an export rendering.
type Format string

const (
	// FormatJSON is the full-fidelity structured form.
	FormatJSON Format = "json"
	// FormatCSV is the fixed-column tabular form.
	FormatCSV Format = "csv"
	// FormatText is a line-oriented human-readable form.
	FormatText Format = "text"
)

var csvHeader = []string{"timestamp", "event_type", "resource", "action", "status", "user_id", "ip_address"}

// Export renders the filtered entry set in the requested format.
func (l *Logger) Export(filter Filter, format Format) ([]byte, error) {
	entries, err := l.Query(filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		return exportJSON(entries)
	case FormatCSV:
		return exportCSV(entries)
	case FormatText:
		return exportText(entries), nil
	default:
		return nil, errors.New().WithData(ErrExportFormat, format)
	}
}

func exportJSON(entries []*Entry) ([]byte, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, errors.New().Wrap(ErrScanFailed, err)
	}

	return data, nil
}

func exportCSV(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, errors.New().Wrap(ErrScanFailed, err)
	}
	for _, e := range entries {
		record := []string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.EventType,
			e.Resource,
			e.Action,
			e.Status,
			e.UserID,
			e.IPAddress,
		}
		if err := w.Write(record); err != nil {
			return nil, errors.New().Wrap(ErrScanFailed, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.New().Wrap(ErrScanFailed, err)
	}

	return buf.Bytes(), nil
}

func exportText(entries []*Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s [%s] %s %s %s",
			e.Timestamp.UTC().Format(time.RFC3339), e.EventType, e.Resource, e.Action, e.Status)
		if e.UserID != "" {
			fmt.Fprintf(&buf, " user=%s", e.UserID)
		}
		if e.CorrelationID != "" {
			fmt.Fprintf(&buf, " correlation=%s", e.CorrelationID)
		}
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}
