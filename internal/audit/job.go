// Package audit implements the audit-job state machine: a bounded worker
// pool drains a bounded queue of jobs, and each job runs an ordered stage
// sequence of collection, validation, content-drift comparison and
// LLM-assisted documentation. Every piece of collected text is screened by
// the security manager before it can reach a prompt.
package audit

import (
	"time"

	"github.com/auditlab/auditoria/internal/validator"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage names, in execution order.
const (
	StageCollect  = "collect"
	StageValidate = "validate"
	StageDrift    = "drift"
	StageDocument = "document"
)

var stageOrder = []string{StageCollect, StageValidate, StageDrift, StageDocument}

// Step records the outcome of one stage.
type Step struct {
	Name       string                        `json:"name"`
	Success    bool                          `json:"success"`
	Error      string                        `json:"error,omitempty"`
	StartedAt  time.Time                     `json:"started_at"`
	FinishedAt time.Time                     `json:"finished_at"`
	Cached     bool                          `json:"cached,omitempty"`
	Validation []*validator.ValidationResult `json:"validation,omitempty"`
	Drift      *DriftReport                  `json:"drift,omitempty"`

	// Threat-scan verdict over the collected content, recorded on the
	// collect step.
	Warnings        []string `json:"warnings,omitempty"`
	BlockedPatterns []string `json:"blocked_patterns,omitempty"`
}

// Job is one audit run. It is mutated only by its owning worker; readers get
// snapshot copies through the orchestrator.
type Job struct {
	ID             string     `json:"id"`
	TargetURL      string     `json:"target_url"`
	Status         JobStatus  `json:"status"`
	Progress       int        `json:"progress"`
	CurrentStep    string     `json:"current_step,omitempty"`
	Steps          []Step     `json:"steps"`
	AggregateScore float64    `json:"aggregate_score"`
	Documentation  string     `json:"documentation,omitempty"`
	PageTitle      string     `json:"page_title,omitempty"`
	PageText       string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// snapshot returns a deep-enough copy for concurrent readers. Steps and the
// nested validation slices are never mutated after append, so copying the
// slice headers is sufficient.
func (j *Job) snapshot() *Job {
	cp := *j
	cp.Steps = make([]Step, len(j.Steps))
	copy(cp.Steps, j.Steps)
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// JobEvent is the progress notification streamed to websocket subscribers.
type JobEvent struct {
	JobID       string    `json:"job_id"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	CurrentStep string    `json:"current_step,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
