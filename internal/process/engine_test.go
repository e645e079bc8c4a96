package process

import (
	"errors"
	"testing"
	"time"

	"github.com/procflow/procflow/internal/template"
)

// stubStore is an in-package Store that hands out sequential ids and lets
// tests force the lost-race paths of close and delete.
type stubStore struct {
	nextProcess    int
	nextTask       int
	nextAssignment int

	closeExisted  bool
	deleteExisted bool

	persisted       []Process
	closedProcesses []int
}

func newStubStore() *stubStore {
	return &stubStore{closeExisted: true, deleteExisted: true}
}

func (s *stubStore) CreateProcess(p Process) (Process, error) {
	s.nextProcess++
	p.ID = s.nextProcess
	for i := range p.Tasks {
		s.nextTask++
		p.Tasks[i].ID = s.nextTask
		p.Tasks[i].ProcessID = p.ID
	}
	return p, nil
}

func (s *stubStore) CloseProcess(processID int, closedAt time.Time) error {
	s.closedProcesses = append(s.closedProcesses, processID)
	return nil
}

func (s *stubStore) CreateAssignment(a Assignment) (int, error) {
	s.nextAssignment++
	return s.nextAssignment, nil
}

func (s *stubStore) CloseAssignment(taskID int, assignee string, closedAt time.Time) (bool, error) {
	return s.closeExisted, nil
}

func (s *stubStore) DeleteAssignment(taskID int, assignee string) (bool, error) {
	return s.deleteExisted, nil
}

func (s *stubStore) Processes() ([]Process, error) {
	return s.persisted, nil
}

type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.now = c.now.Add(time.Minute)
	return c.now
}

// chainTemplate declares task 1 -> task 2, each needing a single closing.
func chainTemplate() template.ProcessTemplate {
	return template.ProcessTemplate{
		ID:    "review",
		Title: "Document review",
		Tasks: []template.TaskTemplate{
			{ID: 1, Name: "Draft", EstimatedDuration: 2, NecessaryClosings: 1},
			{ID: 2, Name: "Approve", EstimatedDuration: 1, NecessaryClosings: 1, Predecessors: []int{1}},
		},
	}
}

func newTestEngine(t *testing.T, def template.ProcessTemplate) (*Engine, *stubStore, Process) {
	t.Helper()
	store := newStubStore()
	engine, err := NewEngine(store, WithClock(newTestClock().Now))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	proc, err := engine.StartProcess(def)
	if err != nil {
		t.Fatalf("start process: %v", err)
	}
	return engine, store, proc
}

func TestStartProcessAssignsIDs(t *testing.T) {
	engine, _, proc := newTestEngine(t, chainTemplate())
	if proc.ID == 0 {
		t.Fatalf("expected generated process id")
	}
	if len(proc.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(proc.Tasks))
	}
	for _, task := range proc.Tasks {
		if task.ID == 0 || task.ProcessID != proc.ID {
			t.Fatalf("task ids not filled in: %+v", task)
		}
	}
	if !proc.Running() {
		t.Fatalf("fresh process must be running")
	}
	got, err := engine.Process(proc.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.TemplateID != "review" {
		t.Fatalf("unexpected template id %q", got.TemplateID)
	}
}

func TestStartProcessRejectsInvalidTemplate(t *testing.T) {
	store := newStubStore()
	engine, err := NewEngine(store)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	def := chainTemplate()
	def.Title = ""
	if _, err := engine.StartProcess(def); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad template, got %v", err)
	}
	cyclic := chainTemplate()
	cyclic.Tasks[0].Predecessors = []int{2}
	if _, err := engine.StartProcess(cyclic); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for cyclic template, got %v", err)
	}
}

func TestCreateAssignment(t *testing.T) {
	engine, _, proc := newTestEngine(t, chainTemplate())
	draft := proc.Tasks[0]

	id, err := engine.CreateAssignment(Assignment{TaskID: draft.ID, Assignee: "alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected generated assignment id")
	}

	if _, err := engine.CreateAssignment(Assignment{TaskID: draft.ID, Assignee: "alice"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for duplicate assignee, got %v", err)
	}
	if _, err := engine.CreateAssignment(Assignment{TaskID: draft.ID, Assignee: ""}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty assignee, got %v", err)
	}
	if _, err := engine.CreateAssignment(Assignment{TaskID: 9999, Assignee: "bob"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown task, got %v", err)
	}
}

func TestCreateAssignmentOnBlockedTask(t *testing.T) {
	engine, _, proc := newTestEngine(t, chainTemplate())
	approve := proc.Tasks[1]

	// Assigning someone to a blocked task is fine; only closing is gated.
	if _, err := engine.CreateAssignment(Assignment{TaskID: approve.ID, Assignee: "bob"}); err != nil {
		t.Fatalf("create on blocked task: %v", err)
	}

	preClosed := Assignment{TaskID: approve.ID, Assignee: "carol", ClosedAt: time.Now()}
	if _, err := engine.CreateAssignment(preClosed); !errors.Is(err, ErrUnsatisfiedPrecondition) {
		t.Fatalf("expected ErrUnsatisfiedPrecondition for pre-closed on blocked task, got %v", err)
	}
}

func TestCloseAssignmentBlockedByPredecessor(t *testing.T) {
	engine, _, proc := newTestEngine(t, chainTemplate())
	approve := proc.Tasks[1]

	if _, err := engine.CreateAssignment(Assignment{TaskID: approve.ID, Assignee: "bob"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.CloseAssignment(approve.ID, "bob"); !errors.Is(err, ErrUnsatisfiedPrecondition) {
		t.Fatalf("expected ErrUnsatisfiedPrecondition, got %v", err)
	}
	blocked, err := engine.Blocked(approve.ID)
	if err != nil {
		t.Fatalf("blocked: %v", err)
	}
	if !blocked {
		t.Fatalf("approve task must be blocked while draft is open")
	}
}

func TestAutoCloseCascade(t *testing.T) {
	engine, store, proc := newTestEngine(t, chainTemplate())
	draft, approve := proc.Tasks[0], proc.Tasks[1]

	if _, err := engine.CreateAssignment(Assignment{TaskID: draft.ID, Assignee: "alice"}); err != nil {
		t.Fatalf("assign draft: %v", err)
	}
	if err := engine.CloseAssignment(draft.ID, "alice"); err != nil {
		t.Fatalf("close draft: %v", err)
	}

	closed, err := engine.TaskClosed(draft.ID)
	if err != nil || !closed {
		t.Fatalf("draft must be closed, got %v %v", closed, err)
	}
	blocked, err := engine.Blocked(approve.ID)
	if err != nil || blocked {
		t.Fatalf("approve must be unblocked after draft closed, got %v %v", blocked, err)
	}

	if _, err := engine.CreateAssignment(Assignment{TaskID: approve.ID, Assignee: "bob"}); err != nil {
		t.Fatalf("assign approve: %v", err)
	}
	if err := engine.CloseAssignment(approve.ID, "bob"); err != nil {
		t.Fatalf("close approve: %v", err)
	}

	got, err := engine.Process(proc.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Running() {
		t.Fatalf("process must auto-close once every task is closed")
	}
	if len(store.closedProcesses) != 1 || store.closedProcesses[0] != proc.ID {
		t.Fatalf("expected exactly one persisted process close, got %v", store.closedProcesses)
	}

	// Nothing mutates a closed process.
	if _, err := engine.CreateAssignment(Assignment{TaskID: draft.ID, Assignee: "dave"}); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed on create, got %v", err)
	}
	if err := engine.CloseAssignment(approve.ID, "bob"); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed on close, got %v", err)
	}
	if err := engine.DeleteAssignment(draft.ID, "alice"); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed on delete, got %v", err)
	}
}

func TestPreClosedAssignmentCountsTowardClosing(t *testing.T) {
	def := template.ProcessTemplate{
		ID:    "solo",
		Title: "Single step",
		Tasks: []template.TaskTemplate{
			{ID: 1, Name: "Only", EstimatedDuration: 1, NecessaryClosings: 1},
		},
	}
	engine, store, proc := newTestEngine(t, def)

	done := Assignment{TaskID: proc.Tasks[0].ID, Assignee: "alice", ClosedAt: time.Now()}
	if _, err := engine.CreateAssignment(done); err != nil {
		t.Fatalf("create pre-closed: %v", err)
	}
	got, err := engine.Process(proc.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Running() {
		t.Fatalf("pre-closed assignment must count toward the closing total")
	}
	if len(store.closedProcesses) != 1 {
		t.Fatalf("expected process close to be persisted, got %v", store.closedProcesses)
	}
}

func TestNecessaryClosingsGate(t *testing.T) {
	def := template.ProcessTemplate{
		ID:    "signoff",
		Title: "Dual signoff",
		Tasks: []template.TaskTemplate{
			{ID: 1, Name: "Sign", EstimatedDuration: 1, NecessaryClosings: 2},
		},
	}
	engine, _, proc := newTestEngine(t, def)
	taskID := proc.Tasks[0].ID

	for _, assignee := range []string{"alice", "bob"} {
		if _, err := engine.CreateAssignment(Assignment{TaskID: taskID, Assignee: assignee}); err != nil {
			t.Fatalf("assign %s: %v", assignee, err)
		}
	}
	if err := engine.CloseAssignment(taskID, "alice"); err != nil {
		t.Fatalf("close alice: %v", err)
	}
	closed, err := engine.TaskClosed(taskID)
	if err != nil || closed {
		t.Fatalf("one closing of two must not close the task, got %v %v", closed, err)
	}
	if err := engine.CloseAssignment(taskID, "bob"); err != nil {
		t.Fatalf("close bob: %v", err)
	}
	closed, err = engine.TaskClosed(taskID)
	if err != nil || !closed {
		t.Fatalf("second closing must close the task, got %v %v", closed, err)
	}
}

func TestCloseAssignmentEdgeCases(t *testing.T) {
	def := template.ProcessTemplate{
		ID:    "pair",
		Title: "Pair of closings",
		Tasks: []template.TaskTemplate{
			{ID: 1, Name: "Work", EstimatedDuration: 1, NecessaryClosings: 2},
		},
	}
	engine, _, proc := newTestEngine(t, def)
	taskID := proc.Tasks[0].ID

	if err := engine.CloseAssignment(taskID, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown assignee, got %v", err)
	}
	if _, err := engine.CreateAssignment(Assignment{TaskID: taskID, Assignee: "alice"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := engine.CloseAssignment(taskID, "alice"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := engine.CloseAssignment(taskID, "alice"); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed for double close, got %v", err)
	}
}

func TestCloseAssignmentLostRace(t *testing.T) {
	engine, store, proc := newTestEngine(t, chainTemplate())
	draft := proc.Tasks[0]
	if _, err := engine.CreateAssignment(Assignment{TaskID: draft.ID, Assignee: "alice"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	store.closeExisted = false
	if err := engine.CloseAssignment(draft.ID, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound when the row vanished, got %v", err)
	}
	// Memory must not have been mutated after the failed persistence round trip.
	closed, err := engine.TaskClosed(draft.ID)
	if err != nil || closed {
		t.Fatalf("task must stay open after a lost close race, got %v %v", closed, err)
	}
}

func TestDeleteAssignment(t *testing.T) {
	engine, _, proc := newTestEngine(t, chainTemplate())
	draft := proc.Tasks[0]

	if err := engine.DeleteAssignment(draft.ID, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any assignment exists, got %v", err)
	}
	if _, err := engine.CreateAssignment(Assignment{TaskID: draft.ID, Assignee: "alice"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := engine.DeleteAssignment(draft.ID, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := engine.Process(proc.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	task, _ := got.Task(draft.ID)
	if len(task.Assignments) != 0 {
		t.Fatalf("expected assignment removed, got %+v", task.Assignments)
	}

	// A closed assignment is no longer deletable.
	if _, err := engine.CreateAssignment(Assignment{TaskID: draft.ID, Assignee: "bob"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := engine.CloseAssignment(draft.ID, "bob"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := engine.DeleteAssignment(draft.ID, "bob"); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed for closed assignment, got %v", err)
	}
}

func TestNewEngineHydratesPersistedProcesses(t *testing.T) {
	store := newStubStore()
	first, err := func() (Process, error) {
		engine, err := NewEngine(store)
		if err != nil {
			return Process{}, err
		}
		return engine.StartProcess(chainTemplate())
	}()
	if err != nil {
		t.Fatalf("seed process: %v", err)
	}
	store.persisted = []Process{first}

	engine, err := NewEngine(store, WithClock(newTestClock().Now))
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	got, err := engine.Process(first.ID)
	if err != nil {
		t.Fatalf("lookup after hydration: %v", err)
	}
	if len(got.Tasks) != 2 {
		t.Fatalf("hydrated process lost its tasks: %+v", got)
	}
	// Hydrated tasks are addressable through the task index.
	if _, err := engine.CreateAssignment(Assignment{TaskID: first.Tasks[0].ID, Assignee: "alice"}); err != nil {
		t.Fatalf("assign on hydrated task: %v", err)
	}
}

func TestStatusSnapshot(t *testing.T) {
	engine, _, proc := newTestEngine(t, chainTemplate())
	draft, approve := proc.Tasks[0], proc.Tasks[1]

	status, err := engine.Status(proc.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running || len(status.Tasks) != 2 {
		t.Fatalf("unexpected snapshot: %+v", status)
	}
	byTask := map[int]TaskStatus{}
	for _, ts := range status.Tasks {
		byTask[ts.TaskID] = ts
	}
	if byTask[draft.ID].State != TaskStateReady {
		t.Fatalf("draft must be ready, got %s", byTask[draft.ID].State)
	}
	if byTask[approve.ID].State != TaskStateBlocked {
		t.Fatalf("approve must be blocked, got %s", byTask[approve.ID].State)
	}
	if got := byTask[approve.ID].BlockedBy; len(got) != 1 || got[0] != draft.Template.ID {
		t.Fatalf("expected blocked_by [%d], got %v", draft.Template.ID, got)
	}

	if _, err := engine.CreateAssignment(Assignment{TaskID: draft.ID, Assignee: "alice"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := engine.CloseAssignment(draft.ID, "alice"); err != nil {
		t.Fatalf("close: %v", err)
	}
	status, err = engine.Status(proc.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, ts := range status.Tasks {
		switch ts.TaskID {
		case draft.ID:
			if ts.State != TaskStateClosed || ts.Closings != 1 {
				t.Fatalf("draft snapshot wrong: %+v", ts)
			}
		case approve.ID:
			if ts.State != TaskStateReady || len(ts.BlockedBy) != 0 {
				t.Fatalf("approve snapshot wrong: %+v", ts)
			}
		}
	}

	if _, err := engine.Status(9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown process, got %v", err)
	}
}

func TestProcessSnapshotsAreIsolated(t *testing.T) {
	engine, _, proc := newTestEngine(t, chainTemplate())
	got, err := engine.Process(proc.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	got.Tasks[0].Assignments = append(got.Tasks[0].Assignments, Assignment{Assignee: "intruder"})
	again, err := engine.Process(proc.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(again.Tasks[0].Assignments) != 0 {
		t.Fatalf("snapshot mutation leaked into engine state")
	}
}
