package process

import (
	"fmt"
	"time"
)

// TaskState classifies a task for status reporting. It is derived from the
// same predicates the engine gates mutations on.
type TaskState string

const (
	TaskStateReady   TaskState = "ready"
	TaskStateBlocked TaskState = "blocked"
	TaskStateClosed  TaskState = "closed"
)

// TaskStatus exposes one task's derived state for UI and boundary consumers.
type TaskStatus struct {
	TaskID            int          `json:"task_id"`
	TemplateID        int          `json:"template_id"`
	Name              string       `json:"name"`
	State             TaskState    `json:"state"`
	BlockedBy         []int        `json:"blocked_by,omitempty"`
	Closings          int          `json:"closings"`
	NecessaryClosings int          `json:"necessary_closings"`
	Assignments       []Assignment `json:"assignments,omitempty"`
}

// ProcessStatus is a read-only snapshot of a process and its tasks.
type ProcessStatus struct {
	ProcessID  int          `json:"process_id"`
	TemplateID string       `json:"template_id"`
	Title      string       `json:"title"`
	Running    bool         `json:"running"`
	StartedAt  time.Time    `json:"started_at"`
	ClosedAt   time.Time    `json:"closed_at,omitempty"`
	Tasks      []TaskStatus `json:"tasks"`
}

// Status derives a full snapshot for the process with the given id.
func (e *Engine) Status(processID int) (ProcessStatus, error) {
	e.mu.Lock()
	ps, ok := e.procs[processID]
	e.mu.Unlock()
	if !ok {
		return ProcessStatus{}, fmt.Errorf("process: process %d: %w", processID, ErrNotFound)
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return snapshot(*ps.proc), nil
}

func snapshot(proc Process) ProcessStatus {
	status := ProcessStatus{
		ProcessID:  proc.ID,
		TemplateID: proc.TemplateID,
		Title:      proc.Title,
		Running:    proc.Running(),
		StartedAt:  proc.StartedAt,
		ClosedAt:   proc.ClosedAt,
		Tasks:      make([]TaskStatus, 0, len(proc.Tasks)),
	}
	for _, task := range proc.Tasks {
		ts := TaskStatus{
			TaskID:            task.ID,
			TemplateID:        task.Template.ID,
			Name:              task.Template.Name,
			Closings:          task.Closings(),
			NecessaryClosings: task.Template.NecessaryClosings,
		}
		if len(task.Assignments) > 0 {
			ts.Assignments = make([]Assignment, len(task.Assignments))
			copy(ts.Assignments, task.Assignments)
		}
		switch {
		case task.Closed():
			ts.State = TaskStateClosed
		case proc.Blocked(task):
			ts.State = TaskStateBlocked
			ts.BlockedBy = openPredecessors(proc, task)
		default:
			ts.State = TaskStateReady
		}
		status.Tasks = append(status.Tasks, ts)
	}
	return status
}

func openPredecessors(proc Process, task Task) []int {
	var open []int
	for _, pred := range task.Template.Predecessors {
		predTask, ok := proc.TaskByTemplate(pred)
		if !ok || !predTask.Closed() {
			open = append(open, pred)
		}
	}
	return open
}
