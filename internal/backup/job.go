package backup

import (
	"sync"
	"time"

	"github.com/yourusername/safety-backup-engine/internal/ledger"
)

// Job statuses
const (
	JobScheduled = "scheduled"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job tracks one in-flight backup execution. Jobs live only for the
// process lifetime and are never persisted. All mutation goes through
// the orchestrator; status consumers see JobSnapshot copies.
type Job struct {
	id        string
	kind      ledger.Kind
	status    string
	progress  int
	startedAt time.Time
	endedAt   *time.Time
	err       string
	artifact  *ledger.ArtifactDescriptor

	mu sync.Mutex
}

// JobSnapshot is a point-in-time copy of a Job, safe to serialize.
type JobSnapshot struct {
	ID        string                     `json:"id"`
	Kind      ledger.Kind                `json:"kind"`
	Status    string                     `json:"status"`
	Progress  int                        `json:"progress"`
	StartedAt time.Time                  `json:"started_at"`
	EndedAt   *time.Time                 `json:"ended_at,omitempty"`
	Error     string                     `json:"error,omitempty"`
	Artifact  *ledger.ArtifactDescriptor `json:"artifact,omitempty"`
}

func newJob(id string, kind ledger.Kind) *Job {
	return &Job{
		id:        id,
		kind:      kind,
		status:    JobRunning,
		progress:  0,
		startedAt: time.Now().UTC(),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string {
	return j.id
}

// Kind returns the backup kind the job executes.
func (j *Job) Kind() ledger.Kind {
	return j.kind
}

// advance raises the job progress. Progress is monotonically
// non-decreasing while the job runs.
func (j *Job) advance(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if progress > j.progress {
		j.progress = progress
	}
}

func (j *Job) complete(artifact *ledger.ArtifactDescriptor) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now().UTC()
	j.status = JobCompleted
	j.progress = 100
	j.endedAt = &now
	j.artifact = artifact
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now().UTC()
	j.status = JobFailed
	j.endedAt = &now
	if err != nil {
		j.err = err.Error()
	}
}

// Snapshot returns a copy safe to hand to status consumers.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snapshot := JobSnapshot{
		ID:        j.id,
		Kind:      j.kind,
		Status:    j.status,
		Progress:  j.progress,
		StartedAt: j.startedAt,
		Error:     j.err,
		Artifact:  j.artifact,
	}
	if j.endedAt != nil {
		ended := *j.endedAt
		snapshot.EndedAt = &ended
	}
	return snapshot
}

func (j *Job) terminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status == JobCompleted || j.status == JobFailed
}
