// Package memory provides an in-memory process store, used by tests and by
// commands that do not need persistence across runs.
package memory

import (
	"sync"
	"time"

	"github.com/procflow/procflow/internal/process"
)

// Store keeps processes and assignments in mutex-guarded maps and hands out
// sequential ids. It implements process.Store.
type Store struct {
	mu             sync.Mutex
	nextProcessID  int
	nextTaskID     int
	nextAssignment int
	processes      map[int]process.Process
	taskProcess    map[int]int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		processes:   make(map[int]process.Process),
		taskProcess: make(map[int]int),
	}
}

// CreateProcess assigns process and task ids and stores a copy.
func (s *Store) CreateProcess(p process.Process) (process.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProcessID++
	p.ID = s.nextProcessID
	for i := range p.Tasks {
		s.nextTaskID++
		p.Tasks[i].ID = s.nextTaskID
		p.Tasks[i].ProcessID = p.ID
		s.taskProcess[s.nextTaskID] = p.ID
	}
	s.processes[p.ID] = p.Clone()
	return p, nil
}

// CloseProcess records the closing timestamp.
func (s *Store) CloseProcess(processID int, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	proc, ok := s.processes[processID]
	if !ok {
		return nil
	}
	proc.ClosedAt = closedAt
	s.processes[processID] = proc
	return nil
}

// CreateAssignment stores the assignment under its task and returns the
// generated id.
func (s *Store) CreateAssignment(a process.Assignment) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	procID, ok := s.taskProcess[a.TaskID]
	if !ok {
		return 0, nil
	}
	s.nextAssignment++
	a.ID = s.nextAssignment
	proc := s.processes[procID]
	for i := range proc.Tasks {
		if proc.Tasks[i].ID == a.TaskID {
			proc.Tasks[i].Assignments = append(proc.Tasks[i].Assignments, a)
			break
		}
	}
	s.processes[procID] = proc
	return a.ID, nil
}

// CloseAssignment sets the closing timestamp on the stored row. The boolean
// reports whether the row existed.
func (s *Store) CloseAssignment(taskID int, assignee string, closedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	procID, ok := s.taskProcess[taskID]
	if !ok {
		return false, nil
	}
	proc := s.processes[procID]
	for i := range proc.Tasks {
		if proc.Tasks[i].ID != taskID {
			continue
		}
		for j := range proc.Tasks[i].Assignments {
			if proc.Tasks[i].Assignments[j].Assignee == assignee {
				proc.Tasks[i].Assignments[j].ClosedAt = closedAt
				s.processes[procID] = proc
				return true, nil
			}
		}
	}
	return false, nil
}

// DeleteAssignment removes the stored row. The boolean reports whether it
// existed.
func (s *Store) DeleteAssignment(taskID int, assignee string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	procID, ok := s.taskProcess[taskID]
	if !ok {
		return false, nil
	}
	proc := s.processes[procID]
	for i := range proc.Tasks {
		if proc.Tasks[i].ID != taskID {
			continue
		}
		for j := range proc.Tasks[i].Assignments {
			if proc.Tasks[i].Assignments[j].Assignee == assignee {
				proc.Tasks[i].Assignments = append(proc.Tasks[i].Assignments[:j], proc.Tasks[i].Assignments[j+1:]...)
				s.processes[procID] = proc
				return true, nil
			}
		}
	}
	return false, nil
}

// Processes returns copies of every stored process.
func (s *Store) Processes() ([]process.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]process.Process, 0, len(s.processes))
	for _, proc := range s.processes {
		out = append(out, proc.Clone())
	}
	return out, nil
}
