package job

import (
	"time"

	"github.com/google/uuid"
)

// Job is one attempt to submit one project's data to the archive.
//
// Files and the accession fields are working state populated while the
// pipeline runs; only the identity, status and timestamps are persisted by
// the job store.
type Job struct {
	ID        string
	ProjectID string
	Owner     string
	Status    Status
	StartTime time.Time
	EndTime   *time.Time

	Accession           string
	SubmissionAccession string

	Files []FileDescriptor
}

// FileDescriptor tracks one sequence-data file through staging.
type FileDescriptor struct {
	SampleID      string
	SourcePath    string
	LocalPath     string
	ConvertedPath string
	Checksum      string

	// RemoteName is the file name used in the deposit area and run metadata.
	RemoteName string
}

// View is the read-only projection of a job exposed to callers outside the
// scheduler.
type View struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Owner     string     `json:"owner"`
	Status    Status     `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// HistoryEntry is one persisted status change.
type HistoryEntry struct {
	JobID     string    `json:"job_id"`
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

// NewID returns a fresh job identifier.
func NewID() string {
	return uuid.New().String()
}

// New builds a CREATED job for projectID. The id is generated.
func New(projectID, owner string) *Job {
	return &Job{
		ID:        NewID(),
		ProjectID: projectID,
		Owner:     owner,
		Status:    StatusCreated,
		StartTime: time.Now().UTC(),
	}
}

// View returns the caller-facing projection of j.
func (j *Job) View() View {
	v := View{
		ID:        j.ID,
		ProjectID: j.ProjectID,
		Owner:     j.Owner,
		Status:    j.Status,
		StartTime: j.StartTime,
	}
	if j.EndTime != nil {
		t := *j.EndTime
		v.EndTime = &t
	}
	return v
}

// OwnedBy reports whether the job is visible to owner. An empty owner sees all jobs.
func (j *Job) OwnedBy(owner string) bool {
	return owner == "" || j.Owner == owner
}
