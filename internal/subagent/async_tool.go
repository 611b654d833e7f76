package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/shellsession"
	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

// AsyncDispatcher hands a tool call off to a shellsession.JobRegistry
// instead of awaiting it inline, for tool names a sub-agent type marks
// async (spec §4.6 "Setup", async tool patterns). The caller gets an
// immediate job handle back as the tool result; the job resolves in the
// background, with SubAgentToolStart/SubAgentToolEnd still emitted once it
// finishes so a progress consumer sees the same event shape as a
// synchronous call.
type AsyncDispatcher struct {
	jobs     *shellsession.JobRegistry
	executor *ToolExecutor
	nextID   atomic.Int64
}

// NewAsyncDispatcher constructs a dispatcher backed by jobs and executing
// calls through executor.
func NewAsyncDispatcher(jobs *shellsession.JobRegistry, executor *ToolExecutor) *AsyncDispatcher {
	return &AsyncDispatcher{jobs: jobs, executor: executor}
}

// Dispatch starts tc running in the background on lane and returns
// immediately with a job-handle result rather than the call's eventual
// output.
func (d *AsyncDispatcher) Dispatch(tc models.ToolCall, lane, subAgentID string, progress ProgressFunc) models.ToolResult {
	jobID := fmt.Sprintf("asynctool-%s-%d", tc.ID, d.nextID.Add(1))
	job := &shellsession.RunningJob{
		ID:             jobID,
		Command:        tc.Name,
		Lane:           lane,
		StartedAt:      time.Now(),
		MaxOutputChars: shellsession.DefaultPendingOutputChars,
	}
	d.jobs.AddJob(job)

	emit(progress, models.ProgressEvent{
		Kind:       models.ProgressSubAgentToolStart,
		ID:         tc.ID,
		Command:    tc.Name,
		SubAgentID: subAgentID,
	})

	go func() {
		result, err := d.executor.ExecuteSingle(context.Background(), tc.Name, tc.Input)

		status := shellsession.JobCompleted
		switch {
		case err != nil:
			status = shellsession.JobFailed
			d.jobs.AppendOutput(job, "stderr", err.Error())
		case result == nil:
			status = shellsession.JobFailed
			d.jobs.AppendOutput(job, "stderr", "tool produced no result")
		case result.IsError:
			status = shellsession.JobFailed
			d.jobs.AppendOutput(job, "stderr", result.Content)
		default:
			d.jobs.AppendOutput(job, "stdout", result.Content)
		}
		d.jobs.MarkExited(job, nil, status)

		emit(progress, models.ProgressEvent{
			Kind:       models.ProgressSubAgentToolEnd,
			ID:         tc.ID,
			Command:    tc.Name,
			Success:    status == shellsession.JobCompleted,
			SubAgentID: subAgentID,
		})
	}()

	handle, _ := json.Marshal(map[string]string{"job_id": jobID, "status": "running"})
	return models.ToolResult{ToolCallID: tc.ID, Content: string(handle), IsError: false}
}

// PollJob reports a dispatched job's current output and status, draining
// any pending output accumulated since the last poll.
func (d *AsyncDispatcher) PollJob(jobID string) (stdout, stderr string, done bool, status shellsession.JobStatus, ok bool) {
	if job, running := d.jobs.GetJob(jobID); running {
		stdout, stderr = d.jobs.DrainJob(job)
		return stdout, stderr, false, shellsession.JobRunning, true
	}
	if finished, found := d.jobs.GetFinishedJob(jobID); found {
		return finished.Aggregated, "", true, finished.Status, true
	}
	return "", "", false, "", false
}
