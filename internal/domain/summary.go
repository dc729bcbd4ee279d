package domain

import "time"

// Summary aggregates the outcome of one expiry run.
//
// AlreadyProcessed counts records this run did not deactivate because they were already
// inactive: records found inactive by the scan (including ones deactivated in any earlier
// run, so scope=all repeats them every time) plus records whose conditional write was won
// by a concurrent run. InProgress counts expired records left active because a concurrent
// run still holds their contacts' receipts; that run deactivates them when its sends finish.
// Skipped counts contacts this run did not message, whether they were reached earlier or
// are being reached by another run.
type Summary struct {
	Checked          int            `json:"checked"`
	Expired          int            `json:"expired"`
	Notified         int            `json:"notified"`
	Failed           int            `json:"failed"`
	Updated          int            `json:"updated"`
	AlreadyProcessed int            `json:"alreadyProcessed"`
	InProgress       int            `json:"inProgress"`
	Skipped          int            `json:"skipped"`
	Users            int            `json:"users"`
	Partial          bool           `json:"partial"`
	Errors           []SummaryError `json:"errors,omitempty"`
	StartedAt        time.Time      `json:"startedAt"`
	FinishedAt       time.Time      `json:"finishedAt"`
}

// SummaryError describes one recovered failure inside a run.
type SummaryError struct {
	UserID  string `json:"userId,omitempty"`
	TokenID *int64 `json:"tokenId,omitempty"`
	Contact string `json:"contact,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
