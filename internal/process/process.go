// Package process implements the runtime side of the workflow engine: process
// instantiation, task and assignment lifecycle, and the precondition checks
// that gate every mutation. Status predicates are derived from current state
// on every call, never cached.
package process

import (
	"time"

	"github.com/procflow/procflow/internal/template"
)

// Assignment binds one assignee to one task. At most one assignment exists per
// (task, assignee) pair. A zero ClosedAt means the assignment is still open.
type Assignment struct {
	ID         int       `json:"id"`
	TaskID     int       `json:"task_id"`
	Assignee   string    `json:"assignee"`
	AssignedAt time.Time `json:"assigned_at"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
}

// Closed reports whether the assignment has been closed.
func (a Assignment) Closed() bool {
	return !a.ClosedAt.IsZero()
}

// Task is the runtime instance of a task template within one process. The
// template fields (duration, necessary closings, predecessors, role) are
// denormalized at instantiation time so later template edits cannot reach a
// running process.
type Task struct {
	ID          int                   `json:"id"`
	ProcessID   int                   `json:"process_id"`
	Template    template.TaskTemplate `json:"template"`
	Assignments []Assignment          `json:"assignments,omitempty"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	clone := t
	clone.Template = t.Template.Clone()
	if len(t.Assignments) > 0 {
		clone.Assignments = make([]Assignment, len(t.Assignments))
		copy(clone.Assignments, t.Assignments)
	}
	return clone
}

// Assignment looks up the assignment for an assignee, closed or not.
func (t Task) Assignment(assignee string) (Assignment, bool) {
	for _, a := range t.Assignments {
		if a.Assignee == assignee {
			return a, true
		}
	}
	return Assignment{}, false
}

// HasAssignment reports whether the assignee already has an assignment on
// this task, regardless of its closed state.
func (t Task) HasAssignment(assignee string) bool {
	_, ok := t.Assignment(assignee)
	return ok
}

// Closings counts the distinct assignees whose assignment has been closed.
func (t Task) Closings() int {
	count := 0
	for _, a := range t.Assignments {
		if a.Closed() {
			count++
		}
	}
	return count
}

// Closed reports whether enough assignments have been closed to satisfy the
// task's necessary closing count.
func (t Task) Closed() bool {
	return t.Closings() >= t.Template.NecessaryClosings
}

// Process is a running instantiation of a process template. It exclusively
// owns its tasks; a process transitions to closed exactly once, automatically,
// when every task is closed.
type Process struct {
	ID         int       `json:"id"`
	TemplateID string    `json:"template_id"`
	Title      string    `json:"title"`
	StartedAt  time.Time `json:"started_at"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
	Tasks      []Task    `json:"tasks"`
}

// Clone returns a deep copy of the process.
func (p Process) Clone() Process {
	clone := p
	if len(p.Tasks) > 0 {
		clone.Tasks = make([]Task, len(p.Tasks))
		for i, task := range p.Tasks {
			clone.Tasks[i] = task.Clone()
		}
	}
	return clone
}

// Running reports whether the process has not yet been closed.
func (p Process) Running() bool {
	return p.ClosedAt.IsZero()
}

// Task looks up an owned task by its runtime id.
func (p Process) Task(id int) (Task, bool) {
	for _, task := range p.Tasks {
		if task.ID == id {
			return task, true
		}
	}
	return Task{}, false
}

// TaskByTemplate looks up an owned task by its template task id. Predecessor
// references are template-scoped, so blocking resolution goes through here.
func (p Process) TaskByTemplate(templateID int) (Task, bool) {
	for _, task := range p.Tasks {
		if task.Template.ID == templateID {
			return task, true
		}
	}
	return Task{}, false
}

// Blocked reports whether the given task has at least one predecessor task
// that is not closed. A task with no predecessors is never blocked.
func (p Process) Blocked(task Task) bool {
	for _, pred := range task.Template.Predecessors {
		predTask, ok := p.TaskByTemplate(pred)
		if !ok || !predTask.Closed() {
			return true
		}
	}
	return false
}

// AllTasksClosed reports whether every owned task is closed.
func (p Process) AllTasksClosed() bool {
	for _, task := range p.Tasks {
		if !task.Closed() {
			return false
		}
	}
	return true
}
