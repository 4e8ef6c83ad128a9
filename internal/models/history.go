// internal/models/history.go
package models

// HistoryQueryType selects a named query against the submission archive.
type HistoryQueryType string

const (
	HistoryQueryText         HistoryQueryType = "text"
	HistoryQueryCustomerCode HistoryQueryType = "customer_code"
	HistoryQueryRecent       HistoryQueryType = "recent"
)

// SubmissionHit is one archived submission returned by a history query.
type SubmissionHit struct {
	ID           string        `json:"id"`
	CustomerCode string        `json:"customerCode,omitempty"`
	CustomerName string        `json:"customerName,omitempty"`
	SubmittedAt  string        `json:"submittedAt,omitempty"`
	Success      bool          `json:"success"`
	Steps        []StepOutcome `json:"steps,omitempty"`
}
