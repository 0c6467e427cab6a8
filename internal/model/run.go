package model

import "time"

// RunStatus is the terminal state of a replay execution.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is one persisted render execution. Records are append-only per
// (datasetID, rowIndex): history is never overwritten, so run order is a
// total order by creation time for each row.
type RunRecord struct {
	RunID                 string    `json:"runId"`
	CreatedAt             time.Time `json:"createdAt"`
	ProjectID             string    `json:"projectId"`
	DatasetID             string    `json:"datasetId"`
	RowIndex              int       `json:"rowIndex"`
	Status                RunStatus `json:"status"`
	OutputDigest          string    `json:"outputDigest"`
	MissingVariablesCount int       `json:"missingVariablesCount"`
	Trace                 TraceRun  `json:"trace"`
}

// RunSummary is the lightweight listing view of a RunRecord.
type RunSummary struct {
	RunID                 string    `json:"runId"`
	CreatedAt             time.Time `json:"createdAt"`
	RowIndex              int       `json:"rowIndex"`
	Status                RunStatus `json:"status"`
	OutputDigest          string    `json:"outputDigest"`
	MissingVariablesCount int       `json:"missingVariablesCount"`
}

// Summary projects a RunRecord onto its summary view.
func (r RunRecord) Summary() RunSummary {
	return RunSummary{
		RunID:                 r.RunID,
		CreatedAt:             r.CreatedAt,
		RowIndex:              r.RowIndex,
		Status:                r.Status,
		OutputDigest:          r.OutputDigest,
		MissingVariablesCount: r.MissingVariablesCount,
	}
}

// DiffKind classifies one line of a run comparison.
type DiffKind string

const (
	DiffSame         DiffKind = "same"
	DiffChanged      DiffKind = "changed"
	DiffMissingLeft  DiffKind = "missing-left"
	DiffMissingRight DiffKind = "missing-right"
)

// DiffLine is one entry of a line-oriented comparison between two traces.
type DiffLine struct {
	Left  string   `json:"left"`
	Right string   `json:"right"`
	Kind  DiffKind `json:"kind"`
}

// CompareVerdict is the digest-level classification of two runs.
type CompareVerdict string

const (
	VerdictStable CompareVerdict = "stable"
	VerdictDrift  CompareVerdict = "drift"
)

// RunComparison is the result of comparing two runs of the same logical row.
// The digest verdict is the fast-path signal; the line diff explains why.
type RunComparison struct {
	Verdict CompareVerdict `json:"verdict"`
	Left    RunSummary     `json:"left"`
	Right   RunSummary     `json:"right"`
	Diff    []DiffLine     `json:"diff"`
}
