package usage

import (
	"fmt"
	"strings"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

// AnomalyKind names a recoverable data-quality problem found while reconciling.
type AnomalyKind string

// Anomaly kinds.
const (
	AnomalyDataGap           AnomalyKind = "data_gap"
	AnomalyNegativeDelta     AnomalyKind = "negative_delta"
	AnomalyMalformedSnapshot AnomalyKind = "malformed_snapshot"
	AnomalyFalseStart        AnomalyKind = "false_start"
)

// Anomaly is a soft failure attached to a result. Reconciliation never aborts on one.
type Anomaly struct {
	At   time.Time
	Err  error
	Kind AnomalyKind
	Key  models.CompositeKey
}

func (a Anomaly) Error() string {
	if a.Key == (models.CompositeKey{}) {
		return fmt.Sprintf("%s at %s: %v", a.Kind, a.At.Format(time.RFC3339), a.Err)
	}
	return fmt.Sprintf("%s for %s at %s: %v", a.Kind, a.Key, a.At.Format(time.RFC3339), a.Err)
}

func (a Anomaly) Unwrap() error {
	return a.Err
}

// DataGapError means no usable baseline existed before a window, so the first
// in-window reading was used as the zero point.
type DataGapError struct {
	WindowStart time.Time
	Reason      string
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap before %s: %s", e.WindowStart.Format(time.RFC3339), e.Reason)
}

// NegativeDeltaError means a windowed delta came out below zero inside one
// segment and was clamped.
type NegativeDeltaError struct {
	Fields []string
	Base   models.Counters
	End    models.Counters
}

func (e *NegativeDeltaError) Error() string {
	return fmt.Sprintf("negative delta clamped to zero (%s)", strings.Join(e.Fields, ", "))
}

// MalformedSnapshotError wraps the validation failure of a skipped snapshot.
type MalformedSnapshotError struct {
	Err        error
	SnapshotID int64
}

func (e *MalformedSnapshotError) Error() string {
	return fmt.Sprintf("malformed snapshot %d skipped: %v", e.SnapshotID, e.Err)
}

func (e *MalformedSnapshotError) Unwrap() error {
	return e.Err
}

// FalseStartError means a key appeared with more cost than the configured
// guard allows and its first reading was treated as a zero point.
type FalseStartError struct {
	Cost      float64
	Threshold float64
}

func (e *FalseStartError) Error() string {
	return fmt.Sprintf("first reading cost $%.2f exceeds false-start guard $%.2f", e.Cost, e.Threshold)
}
