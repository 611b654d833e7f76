package shellsession

import (
	"log/slog"
	"sync"
	"time"
)

// TTL configuration for finished background jobs.
const (
	DefaultJobTTL = 30 * time.Minute
	MinJobTTL     = 1 * time.Minute
	MaxJobTTL     = 3 * time.Hour

	DefaultPendingOutputChars = 30_000
	DefaultTailChars          = 2000
)

// JobStatus represents the state of a backgrounded shell command.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobKilled    JobStatus = "killed"
)

// RunningJob represents an in-flight backgrounded command (spec §3
// "Background job"). A NATIVE command or async tool call that the Bash
// Tool chooses not to await inline is tracked here until it is drained or
// exits.
type RunningJob struct {
	ID      string
	Command string
	Lane    string

	StartedAt time.Time

	MaxOutputChars        int
	PendingMaxOutputChars int

	PendingStdout      []string
	PendingStderr      []string
	PendingStdoutChars int
	PendingStderrChars int
	TotalOutputChars   int

	Aggregated string
	Tail       string

	ExitCode  *int
	Exited    bool
	Truncated bool
}

// FinishedJob is a RunningJob after it has exited, retained for TTL so a
// caller that polls late can still see the final output.
type FinishedJob struct {
	ID               string
	Command          string
	Lane             string
	StartedAt        time.Time
	EndedAt          time.Time
	Status           JobStatus
	ExitCode         *int
	Aggregated       string
	Tail             string
	Truncated        bool
	TotalOutputChars int
}

// JobRegistry tracks running and recently-finished background jobs.
type JobRegistry struct {
	running  map[string]*RunningJob
	finished map[string]*FinishedJob
	logger   *slog.Logger
	jobTTL   time.Duration
	mu       sync.RWMutex

	sweeperStop chan struct{}
	sweeperDone chan struct{}
}

// NewJobRegistry creates a job registry with the default TTL.
func NewJobRegistry(logger *slog.Logger) *JobRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRegistry{
		running:  make(map[string]*RunningJob),
		finished: make(map[string]*FinishedJob),
		logger:   logger.With("component", "job_registry"),
		jobTTL:   DefaultJobTTL,
	}
}

// ClampTTL keeps a requested TTL within sane bounds.
func ClampTTL(ttl time.Duration) time.Duration {
	if ttl < MinJobTTL {
		return MinJobTTL
	}
	if ttl > MaxJobTTL {
		return MaxJobTTL
	}
	return ttl
}

// SetJobTTL updates the TTL and restarts the sweeper with the new interval.
func (r *JobRegistry) SetJobTTL(ttl time.Duration) {
	r.mu.Lock()
	r.jobTTL = ClampTTL(ttl)
	r.mu.Unlock()

	r.StopSweeper()
	r.StartSweeper()
}

// AddJob registers a new running job and starts the sweeper if needed.
func (r *JobRegistry) AddJob(job *RunningJob) {
	if job == nil {
		return
	}

	r.mu.Lock()
	r.running[job.ID] = job
	r.mu.Unlock()

	r.StartSweeper()
	r.logger.Debug("added job", "id", job.ID, "command", job.Command)
}

// GetJob retrieves a running job by ID.
func (r *JobRegistry) GetJob(id string) (*RunningJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.running[id]
	return job, ok
}

// GetFinishedJob retrieves a finished job by ID.
func (r *JobRegistry) GetFinishedJob(id string) (*FinishedJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.finished[id]
	return job, ok
}

// AppendOutput appends a chunk of output to a job's buffers, capping both
// the pending (undrained) buffer and the aggregated output.
func (r *JobRegistry) AppendOutput(job *RunningJob, stream string, chunk string) {
	if job == nil || chunk == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pendingCap := job.PendingMaxOutputChars
	if pendingCap <= 0 {
		pendingCap = DefaultPendingOutputChars
	}
	if job.MaxOutputChars > 0 && pendingCap > job.MaxOutputChars {
		pendingCap = job.MaxOutputChars
	}

	var buffer *[]string
	var pendingChars *int
	if stream == "stdout" {
		buffer = &job.PendingStdout
		pendingChars = &job.PendingStdoutChars
	} else {
		buffer = &job.PendingStderr
		pendingChars = &job.PendingStderrChars
	}

	*buffer = append(*buffer, chunk)
	*pendingChars += len(chunk)

	if *pendingChars > pendingCap {
		job.Truncated = true
		*pendingChars = capPendingBuffer(buffer, *pendingChars, pendingCap)
	}

	job.TotalOutputChars += len(chunk)

	maxOutput := job.MaxOutputChars
	if maxOutput <= 0 {
		maxOutput = DefaultPendingOutputChars
	}
	newAggregated := TrimWithCap(job.Aggregated+chunk, maxOutput)
	if len(newAggregated) < len(job.Aggregated)+len(chunk) {
		job.Truncated = true
	}
	job.Aggregated = newAggregated
	job.Tail = Tail(job.Aggregated, DefaultTailChars)
}

// DrainJob returns and clears a job's pending output.
func (r *JobRegistry) DrainJob(job *RunningJob) (stdout, stderr string) {
	if job == nil {
		return "", ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, chunk := range job.PendingStdout {
		stdout += chunk
	}
	for _, chunk := range job.PendingStderr {
		stderr += chunk
	}

	job.PendingStdout = nil
	job.PendingStderr = nil
	job.PendingStdoutChars = 0
	job.PendingStderrChars = 0

	return stdout, stderr
}

// MarkExited marks a job as finished and, since only backgrounded jobs are
// tracked in this registry to begin with, moves it to the finished set.
func (r *JobRegistry) MarkExited(job *RunningJob, exitCode *int, status JobStatus) {
	if job == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job.Exited = true
	job.ExitCode = exitCode
	job.Tail = Tail(job.Aggregated, DefaultTailChars)

	delete(r.running, job.ID)
	r.finished[job.ID] = &FinishedJob{
		ID:               job.ID,
		Command:          job.Command,
		Lane:             job.Lane,
		StartedAt:        job.StartedAt,
		EndedAt:          time.Now(),
		Status:           status,
		ExitCode:         job.ExitCode,
		Aggregated:       job.Aggregated,
		Tail:             job.Tail,
		Truncated:        job.Truncated,
		TotalOutputChars: job.TotalOutputChars,
	}

	r.logger.Debug("job finished", "id", job.ID, "status", status)
}

// ListRunning returns all running jobs.
func (r *JobRegistry) ListRunning() []*RunningJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*RunningJob, 0, len(r.running))
	for _, j := range r.running {
		jobs = append(jobs, j)
	}
	return jobs
}

// StartSweeper starts the background goroutine that prunes expired
// finished jobs. Safe to call multiple times; a second call is a no-op
// while a sweeper is already running.
func (r *JobRegistry) StartSweeper() {
	r.mu.Lock()
	if r.sweeperStop != nil {
		r.mu.Unlock()
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	r.sweeperStop = stop
	r.sweeperDone = done
	ttl := r.jobTTL
	r.mu.Unlock()

	interval := ttl / 6
	if interval < 30*time.Second {
		interval = 30 * time.Second
	}

	go r.sweepLoop(interval, stop, done)
}

// StopSweeper stops the sweeper goroutine, if running, and waits for it to
// exit.
func (r *JobRegistry) StopSweeper() {
	r.mu.Lock()
	if r.sweeperStop == nil {
		r.mu.Unlock()
		return
	}
	stop := r.sweeperStop
	done := r.sweeperDone
	r.sweeperStop = nil
	r.sweeperDone = nil
	r.mu.Unlock()

	close(stop)
	<-done
}

func (r *JobRegistry) sweepLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.pruneFinished()
		}
	}
}

func (r *JobRegistry) pruneFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.jobTTL)
	for id, job := range r.finished {
		if job.EndedAt.Before(cutoff) {
			delete(r.finished, id)
		}
	}
}

// Tail returns the last n characters of text.
func Tail(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[len(text)-n:]
}

// TrimWithCap trims text to at most max characters, keeping the end.
// Trimming an already-capped string is a no-op.
func TrimWithCap(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[len(text)-max:]
}

// capPendingBuffer trims buffer chunks from the front until the total
// pending char count fits within cap, returning the new count.
func capPendingBuffer(buffer *[]string, pendingChars, cap int) int {
	if pendingChars <= cap {
		return pendingChars
	}

	if len(*buffer) > 0 {
		last := (*buffer)[len(*buffer)-1]
		if len(last) >= cap {
			*buffer = []string{last[len(last)-cap:]}
			return cap
		}
	}

	for len(*buffer) > 0 && pendingChars-len((*buffer)[0]) >= cap {
		pendingChars -= len((*buffer)[0])
		*buffer = (*buffer)[1:]
	}

	if len(*buffer) > 0 && pendingChars > cap {
		overflow := pendingChars - cap
		(*buffer)[0] = (*buffer)[0][overflow:]
		pendingChars = cap
	}

	return pendingChars
}
