package bars

import (
	"fmt"
	"strings"
	"time"
)

// SchemaError reports required columns missing from an input source. It is
// unrecoverable and surfaces before any simulation starts.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("input schema missing required columns: %s", strings.Join(e.Missing, ", "))
}

// RowIssue describes one offending input row.
type RowIssue struct {
	Index     int // position in the sorted input
	Timestamp time.Time
	Problem   string
}

func (i RowIssue) String() string {
	return fmt.Sprintf("row %d (%s): %s", i.Index, i.Timestamp.Format(time.RFC3339), i.Problem)
}

// IntegrityError reports ordering or OHLC violations, listing every
// offending row. The run that produced it cannot proceed.
type IntegrityError struct {
	Issues []RowIssue
}

func (e *IntegrityError) Error() string {
	if len(e.Issues) == 1 {
		return "data integrity violation: " + e.Issues[0].String()
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("%d data integrity violations: %s", len(e.Issues), strings.Join(parts, "; "))
}
