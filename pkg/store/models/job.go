package models

import "time"

// JobState is the upload job state machine.
type JobState string

const (
	// JobPending means the job is waiting for an eligible processor pass.
	JobPending JobState = "pending"

	// JobInFlight means exactly one processor worker owns the job.
	JobInFlight JobState = "inflight"

	// JobSucceeded is terminal unless an operator explicitly resets the row.
	JobSucceeded JobState = "succeeded"

	// JobFailed means retries were exhausted or the error was permanent.
	JobFailed JobState = "failed"
)

// Valid reports whether s is a known job state.
func (s JobState) Valid() bool {
	switch s {
	case JobPending, JobInFlight, JobSucceeded, JobFailed:
		return true
	}
	return false
}

// Job is one durable unit of upload work: one local file bound for one
// object in the target container.
//
// (LocalPath, Generation) is unique: a file that is uploaded, dispositioned
// away, and later reappears at the same path gets a new row with a higher
// generation. Attempts counts claims (Pending -> InFlight transitions).
// NextAttemptAt is the eligibility cutoff the processor orders by.
type Job struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceName      string    `gorm:"index;size:255" json:"source_name"`
	LocalPath       string    `gorm:"not null;size:1024;uniqueIndex:idx_jobs_path_gen" json:"local_path"`
	Generation      uint      `gorm:"not null;default:1;uniqueIndex:idx_jobs_path_gen" json:"generation"`
	TargetContainer string    `gorm:"size:255" json:"target_container"`
	TargetObject    string    `gorm:"not null;size:1024" json:"target_object"`
	SizeBytes       int64     `gorm:"not null;default:0" json:"size_bytes"`
	State           JobState  `gorm:"index;not null;size:20;default:pending" json:"state"`
	Attempts        int       `gorm:"not null;default:0" json:"attempts"`
	LastError       *string   `gorm:"type:text" json:"last_error,omitempty"`
	NextAttemptAt   time.Time `gorm:"index;not null" json:"next_attempt_at"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"index" json:"updated_at"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}
