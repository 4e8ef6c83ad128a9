// internal/intake/submission/result.go
package submission

import "crm-intake-workers/internal/intake/note"

// Step names recorded by the orchestrator.
const (
	StepCheckDuplicate    = "check_duplicate"
	StepCreateCustomer    = "create_customer"
	StepCreateOpportunity = "create_opportunity"
	StepCreateTasks       = "create_tasks"
)

// StepResult is the outcome of one submission step. Results accumulate in
// order; a failing step never erases the results before it.
type StepResult struct {
	StepName     string                 `json:"stepName"`
	Success      bool                   `json:"success"`
	Skipped      bool                   `json:"skipped,omitempty"`
	ResponseData map[string]interface{} `json:"responseData,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Result is the full record of one submission run.
type Result struct {
	SubmissionID string            `json:"submissionId"`
	Steps        []StepResult      `json:"steps"`
	Context      map[string]string `json:"context"`
	Warnings     []note.Warning    `json:"warnings,omitempty"`
}

func (r *Result) Append(step StepResult) {
	r.Steps = append(r.Steps, step)
}

// Step returns the named step result, if recorded.
func (r *Result) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.StepName == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Succeeded reports whether every recorded step succeeded or was skipped.
func (r *Result) Succeeded() bool {
	for _, s := range r.Steps {
		if !s.Success && !s.Skipped {
			return false
		}
	}
	return true
}
