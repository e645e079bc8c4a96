package process

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/procflow/procflow/internal/schedule"
	"github.com/procflow/procflow/internal/template"
)

// Logger is the minimal logging contract the engine needs.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Engine owns the runtime state of every process and serializes mutations per
// process. All precondition checks and the subsequent state change for one
// process run under that process's lock, with the persistence call awaited in
// between: persist first, mutate memory after.
type Engine struct {
	store  Store
	logger Logger
	clock  func() time.Time

	mu        sync.Mutex
	procs     map[int]*procState
	taskIndex map[int]int
}

type procState struct {
	mu   sync.Mutex
	proc *Process
}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine wires an engine to its persistence store and rebuilds the
// in-memory process index from persisted state.
func NewEngine(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("process: engine requires a store")
	}
	e := &Engine{
		store:     store,
		logger:    nopLogger{},
		clock:     time.Now,
		procs:     map[int]*procState{},
		taskIndex: map[int]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	persisted, err := store.Processes()
	if err != nil {
		return nil, fmt.Errorf("process: load persisted processes: %w", err)
	}
	for _, proc := range persisted {
		e.index(proc.Clone())
	}
	return e, nil
}

func (e *Engine) index(proc Process) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.procs[proc.ID] = &procState{proc: &proc}
	for _, task := range proc.Tasks {
		e.taskIndex[task.ID] = proc.ID
	}
}

// StartProcess validates the template, freezes a copy, and creates one task
// per task template atomically. The returned process carries generated ids.
func (e *Engine) StartProcess(def template.ProcessTemplate) (Process, error) {
	if err := def.Validate(); err != nil {
		return Process{}, fmt.Errorf("process: %v: %w", err, ErrInvalidInput)
	}
	if _, err := schedule.Compute(def.Tasks); err != nil {
		return Process{}, fmt.Errorf("process: %v: %w", err, ErrInvalidInput)
	}
	frozen := def.Clone()
	proc := Process{
		TemplateID: frozen.ID,
		Title:      frozen.Title,
		StartedAt:  e.now(),
		Tasks:      make([]Task, 0, len(frozen.Tasks)),
	}
	for _, tt := range frozen.Tasks {
		proc.Tasks = append(proc.Tasks, Task{Template: tt})
	}
	created, err := e.store.CreateProcess(proc)
	if err != nil {
		return Process{}, fmt.Errorf("process: create process: %w", err)
	}
	e.index(created.Clone())
	e.logger.Printf("process: started process %d from template %s with %d tasks", created.ID, created.TemplateID, len(created.Tasks))
	return created, nil
}

// CreateAssignment assigns an assignee to a task. If the incoming assignment
// already carries a closing timestamp it is created closed, which is only
// allowed while the task is unblocked. Returns the generated assignment id.
func (e *Engine) CreateAssignment(a Assignment) (int, error) {
	if a.Assignee == "" {
		return 0, fmt.Errorf("process: assignee is required: %w", ErrInvalidInput)
	}
	ps, err := e.stateForTask(a.TaskID)
	if err != nil {
		return 0, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	proc := ps.proc
	task := proc.mustTask(a.TaskID)
	if !proc.Running() {
		return 0, fmt.Errorf("process: the process the assignment is addressed to is not running: %w", ErrAlreadyClosed)
	}
	if task.Closed() {
		return 0, fmt.Errorf("process: task %d is already closed: %w", a.TaskID, ErrAlreadyClosed)
	}
	if a.Closed() && proc.Blocked(*task) {
		return 0, fmt.Errorf("process: the assignment can only be closed if all predecessors have been closed: %w", ErrUnsatisfiedPrecondition)
	}
	if task.HasAssignment(a.Assignee) {
		return 0, fmt.Errorf("process: task %d is already assigned to %s: %w", a.TaskID, a.Assignee, ErrAlreadyExists)
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = e.now()
	}
	id, err := e.store.CreateAssignment(a)
	if err != nil {
		return 0, fmt.Errorf("process: create assignment: %w", err)
	}
	a.ID = id
	task.Assignments = append(task.Assignments, a)
	if err := e.mayCloseProcess(proc); err != nil {
		return id, err
	}
	return id, nil
}

// CloseAssignment closes the assignment identified by task and assignee. A
// blocked task may not be closed out of dependency order even if its closing
// count is otherwise satisfied.
func (e *Engine) CloseAssignment(taskID int, assignee string) error {
	ps, err := e.stateForTask(taskID)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	proc := ps.proc
	task := proc.mustTask(taskID)
	if !proc.Running() {
		return fmt.Errorf("process: the process the assignment is addressed to is not running: %w", ErrAlreadyClosed)
	}
	current, ok := task.Assignment(assignee)
	if !ok {
		return fmt.Errorf("process: task %d has no assignment for %s: %w", taskID, assignee, ErrNotFound)
	}
	if current.Closed() {
		return fmt.Errorf("process: task assignment is already closed: %w", ErrAlreadyClosed)
	}
	if proc.Blocked(*task) {
		return fmt.Errorf("process: the assignment can only be closed if all predecessors have been closed: %w", ErrUnsatisfiedPrecondition)
	}
	if task.Closed() {
		return fmt.Errorf("process: task %d is already closed: %w", taskID, ErrAlreadyClosed)
	}
	closedAt := e.now()
	existed, err := e.store.CloseAssignment(taskID, assignee, closedAt)
	if err != nil {
		return fmt.Errorf("process: close assignment: %w", err)
	}
	if !existed {
		return fmt.Errorf("process: task assignment does not exist: %w", ErrNotFound)
	}
	task.setClosed(assignee, closedAt)
	return e.mayCloseProcess(proc)
}

// DeleteAssignment removes an open assignment. Deletion can never close a
// task, so no process auto-close evaluation follows.
func (e *Engine) DeleteAssignment(taskID int, assignee string) error {
	ps, err := e.stateForTask(taskID)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	proc := ps.proc
	task := proc.mustTask(taskID)
	if !proc.Running() {
		return fmt.Errorf("process: the process the assignment is addressed to is not running: %w", ErrAlreadyClosed)
	}
	current, ok := task.Assignment(assignee)
	if !ok {
		return fmt.Errorf("process: task %d has no assignment for %s: %w", taskID, assignee, ErrNotFound)
	}
	if current.Closed() {
		return fmt.Errorf("process: task assignment is already closed: %w", ErrAlreadyClosed)
	}
	if task.Closed() {
		return fmt.Errorf("process: task %d is already closed: %w", taskID, ErrAlreadyClosed)
	}
	existed, err := e.store.DeleteAssignment(taskID, assignee)
	if err != nil {
		return fmt.Errorf("process: delete assignment: %w", err)
	}
	if !existed {
		return fmt.Errorf("process: task assignment does not exist: %w", ErrNotFound)
	}
	task.removeAssignment(assignee)
	return nil
}

// mayCloseProcess closes the process iff every owned task is closed. It is
// idempotent: an already-closed process or one with open tasks is a no-op.
// Callers must hold the process lock.
func (e *Engine) mayCloseProcess(proc *Process) error {
	if !proc.Running() {
		return nil
	}
	if !proc.AllTasksClosed() {
		return nil
	}
	closedAt := e.now()
	if err := e.store.CloseProcess(proc.ID, closedAt); err != nil {
		return fmt.Errorf("process: close process %d: %w", proc.ID, err)
	}
	proc.ClosedAt = closedAt
	e.logger.Printf("process: process %d closed, all tasks done", proc.ID)
	return nil
}

// Blocked reports whether the task currently has open predecessors. Read-only.
func (e *Engine) Blocked(taskID int) (bool, error) {
	ps, err := e.stateForTask(taskID)
	if err != nil {
		return false, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.proc.Blocked(*ps.proc.mustTask(taskID)), nil
}

// TaskClosed reports whether the task's necessary closing count has been
// reached. Read-only.
func (e *Engine) TaskClosed(taskID int) (bool, error) {
	ps, err := e.stateForTask(taskID)
	if err != nil {
		return false, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.proc.mustTask(taskID).Closed(), nil
}

// Process returns a snapshot copy of the process with the given id.
func (e *Engine) Process(id int) (Process, error) {
	e.mu.Lock()
	ps, ok := e.procs[id]
	e.mu.Unlock()
	if !ok {
		return Process{}, fmt.Errorf("process: process %d: %w", id, ErrNotFound)
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.proc.Clone(), nil
}

// Processes returns snapshot copies of every known process, ordered by id.
func (e *Engine) Processes() []Process {
	e.mu.Lock()
	states := make([]*procState, 0, len(e.procs))
	for _, ps := range e.procs {
		states = append(states, ps)
	}
	e.mu.Unlock()
	out := make([]Process, 0, len(states))
	for _, ps := range states {
		ps.mu.Lock()
		out = append(out, ps.proc.Clone())
		ps.mu.Unlock()
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (e *Engine) stateForTask(taskID int) (*procState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	procID, ok := e.taskIndex[taskID]
	if !ok {
		return nil, fmt.Errorf("process: task %d: %w", taskID, ErrNotFound)
	}
	ps, ok := e.procs[procID]
	if !ok {
		return nil, fmt.Errorf("process: process %d: %w", procID, ErrNotFound)
	}
	return ps, nil
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

// mustTask returns a pointer into the process's task slice. Only valid while
// the owning procState lock is held; the task index guarantees presence.
func (p *Process) mustTask(taskID int) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == taskID {
			return &p.Tasks[i]
		}
	}
	panic(fmt.Sprintf("process: task %d not owned by process %d", taskID, p.ID))
}

func (t *Task) setClosed(assignee string, closedAt time.Time) {
	for i := range t.Assignments {
		if t.Assignments[i].Assignee == assignee {
			t.Assignments[i].ClosedAt = closedAt
			return
		}
	}
}

func (t *Task) removeAssignment(assignee string) {
	for i := range t.Assignments {
		if t.Assignments[i].Assignee == assignee {
			t.Assignments = append(t.Assignments[:i], t.Assignments[i+1:]...)
			return
		}
	}
}
