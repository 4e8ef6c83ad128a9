// internal/models/submission.go
package models

// SubmissionOptions are the per-job pipeline toggles a process may set on a
// submit job. The zero value runs the full pipeline with configured
// timeouts.
type SubmissionOptions struct {
	SkipDuplicateCheck bool `json:"skipDuplicateCheck,omitempty"`
	DisableOpportunity bool `json:"disableOpportunity,omitempty"`
	DisableTasks       bool `json:"disableTasks,omitempty"`
	StepTimeoutMs      int  `json:"stepTimeoutMs,omitempty"`
}

// PriorRecord is a previously normalized customer record, keyed by canonical
// field name. Supplied by an earlier customer-only pass; the builder only
// reads it to fill fields the note text left absent.
type PriorRecord map[string]string

// StepOutcome is the job-variable rendering of one pipeline step, shared by
// the submit worker's output and the history worker's hits.
type StepOutcome struct {
	StepName string `json:"stepName"`
	Success  bool   `json:"success"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}
