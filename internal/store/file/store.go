// Package file persists processes as a JSON snapshot on disk so engine state
// survives across CLI invocations.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/procflow/procflow/internal/process"
)

const snapshotName = "processes.json"

// Store implements process.Store on top of a single JSON snapshot file with
// best-effort atomic writes. Every mutation rewrites the snapshot before it
// reports success, preserving the engine's persist-then-mutate ordering.
type Store struct {
	mu   sync.Mutex
	path string
}

type snapshot struct {
	NextProcessID    int               `json:"next_process_id"`
	NextTaskID       int               `json:"next_task_id"`
	NextAssignmentID int               `json:"next_assignment_id"`
	Processes        []process.Process `json:"processes"`
}

// New creates a store rooted at the given data directory.
func New(dataDir string) *Store {
	return &Store{path: filepath.Join(dataDir, snapshotName)}
}

// CreateProcess assigns ids from the snapshot counters and persists.
func (s *Store) CreateProcess(p process.Process) (process.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load()
	if err != nil {
		return process.Process{}, err
	}
	snap.NextProcessID++
	p.ID = snap.NextProcessID
	for i := range p.Tasks {
		snap.NextTaskID++
		p.Tasks[i].ID = snap.NextTaskID
		p.Tasks[i].ProcessID = p.ID
	}
	snap.Processes = append(snap.Processes, p.Clone())
	if err := s.save(snap); err != nil {
		return process.Process{}, err
	}
	return p, nil
}

// CloseProcess records the closing timestamp and persists.
func (s *Store) CloseProcess(processID int, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load()
	if err != nil {
		return err
	}
	for i := range snap.Processes {
		if snap.Processes[i].ID == processID {
			snap.Processes[i].ClosedAt = closedAt
			return s.save(snap)
		}
	}
	return nil
}

// CreateAssignment appends the assignment to its task and persists, returning
// the generated id.
func (s *Store) CreateAssignment(a process.Assignment) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load()
	if err != nil {
		return 0, err
	}
	task := findTask(&snap, a.TaskID)
	if task == nil {
		return 0, fmt.Errorf("store: task %d not found", a.TaskID)
	}
	snap.NextAssignmentID++
	a.ID = snap.NextAssignmentID
	task.Assignments = append(task.Assignments, a)
	if err := s.save(snap); err != nil {
		return 0, err
	}
	return a.ID, nil
}

// CloseAssignment stamps the stored row and persists. The boolean reports
// whether the row existed.
func (s *Store) CloseAssignment(taskID int, assignee string, closedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load()
	if err != nil {
		return false, err
	}
	task := findTask(&snap, taskID)
	if task == nil {
		return false, nil
	}
	for i := range task.Assignments {
		if task.Assignments[i].Assignee == assignee {
			task.Assignments[i].ClosedAt = closedAt
			return true, s.save(snap)
		}
	}
	return false, nil
}

// DeleteAssignment removes the stored row and persists. The boolean reports
// whether it existed.
func (s *Store) DeleteAssignment(taskID int, assignee string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load()
	if err != nil {
		return false, err
	}
	task := findTask(&snap, taskID)
	if task == nil {
		return false, nil
	}
	for i := range task.Assignments {
		if task.Assignments[i].Assignee == assignee {
			task.Assignments = append(task.Assignments[:i], task.Assignments[i+1:]...)
			return true, s.save(snap)
		}
	}
	return false, nil
}

// Processes returns every persisted process.
func (s *Store) Processes() ([]process.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]process.Process, 0, len(snap.Processes))
	for _, proc := range snap.Processes {
		out = append(out, proc.Clone())
	}
	return out, nil
}

func findTask(snap *snapshot, taskID int) *process.Task {
	for i := range snap.Processes {
		for j := range snap.Processes[i].Tasks {
			if snap.Processes[i].Tasks[j].ID == taskID {
				return &snap.Processes[i].Tasks[j]
			}
		}
	}
	return nil
}

func (s *Store) load() (snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return snapshot{}, nil
		}
		return snapshot{}, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot{}, fmt.Errorf("store: decode %s: %w", s.path, err)
	}
	return snap, nil
}

func (s *Store) save(snap snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("store: ensure data dir: %w", err)
	}
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append(encoded, '\n'), 0o644)
}
