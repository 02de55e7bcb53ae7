package workflow

import (
	"time"
)

// Status is the outcome of a workflow run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Step names a stage of the application flow.
type Step string

const (
	StepNavigateToJob   Step = "navigate_to_job"
	StepSimulateReading Step = "simulate_reading"
	StepLocateEasyApply Step = "locate_easy_apply"
	StepClickEasyApply  Step = "click_easy_apply"
	StepReviewForm      Step = "review_form"
	StepClickNext       Step = "click_next"
	StepClickSubmit     Step = "click_submit"
	StepRecorded        Step = "recorded"
)

// Result is produced exactly once per run.
type Result struct {
	Status            Status    `json:"status"`
	JobURL            string    `json:"job_url"`
	ApplicationNumber *int      `json:"application_number,omitempty"`
	Error             string    `json:"error,omitempty"`
	FailedStep        Step      `json:"failed_step,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	Screenshot        string    `json:"screenshot,omitempty"`
}

// Succeeded reports whether the application was submitted.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}
