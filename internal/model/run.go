package model

import "time"

// RunStatus represents the state of a batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// OutcomeStatus is the terminal state of one deal within a run.
type OutcomeStatus string

const (
	OutcomeWritten          OutcomeStatus = "written"
	OutcomeWrittenConflict  OutcomeStatus = "written_step_conflict"
	OutcomeDryRun           OutcomeStatus = "dry_run"
	OutcomeSkippedExisting  OutcomeStatus = "skipped_existing"
	OutcomeSkippedNoCadence OutcomeStatus = "skipped_no_cadence"
	OutcomeSkippedNoRule    OutcomeStatus = "skipped_no_rule"
	OutcomeFailedWriter     OutcomeStatus = "failed_writer"
	OutcomeFailedPersist    OutcomeStatus = "failed_persist"
	OutcomeFailedError      OutcomeStatus = "failed_error"
)

// Written reports whether the outcome left an email on the deal.
func (s OutcomeStatus) Written() bool {
	return s == OutcomeWritten || s == OutcomeWrittenConflict
}

// Skipped reports whether the deal was not eligible for processing.
func (s OutcomeStatus) Skipped() bool {
	switch s {
	case OutcomeSkippedExisting, OutcomeSkippedNoCadence, OutcomeSkippedNoRule:
		return true
	}
	return false
}

// Failed reports whether processing the deal failed.
func (s OutcomeStatus) Failed() bool {
	switch s {
	case OutcomeFailedWriter, OutcomeFailedPersist, OutcomeFailedError:
		return true
	}
	return false
}

// DealOutcome records what happened to one deal.
type DealOutcome struct {
	RunID     string        `json:"run_id,omitempty"`
	DealID    int64         `json:"deal_id"`
	Cadence   string        `json:"cadence,omitempty"`
	Step      int           `json:"step,omitempty"`
	Status    OutcomeStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	Cost      float64       `json:"cost"`
	CreatedAt time.Time     `json:"created_at"`
}

// BatchSummary aggregates the outcomes of one batch run.
type BatchSummary struct {
	Total     int                   `json:"total"`
	Written   int                   `json:"written"`
	Skipped   int                   `json:"skipped"`
	Failed    int                   `json:"failed"`
	Conflicts int                   `json:"conflicts"`
	TotalCost float64               `json:"total_cost"`
	ByStatus  map[OutcomeStatus]int `json:"by_status"`
}

// Add folds one outcome into the summary.
func (s *BatchSummary) Add(o DealOutcome) {
	if s.ByStatus == nil {
		s.ByStatus = make(map[OutcomeStatus]int)
	}
	s.Total++
	s.ByStatus[o.Status]++
	s.TotalCost += o.Cost
	switch {
	case o.Status.Written():
		s.Written++
		if o.Status == OutcomeWrittenConflict {
			s.Conflicts++
		}
	case o.Status.Skipped():
		s.Skipped++
	case o.Status.Failed():
		s.Failed++
	}
}

// Run is a batch run recorded in the ledger.
type Run struct {
	ID         string        `json:"id"`
	Status     RunStatus     `json:"status"`
	Trigger    string        `json:"trigger"`
	Summary    *BatchSummary `json:"summary,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}
