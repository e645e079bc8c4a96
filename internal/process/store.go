package process

import "time"

// Store is the persistence collaborator the engine writes through. Creation
// calls return generated ids; close and delete calls return an existence
// boolean so the engine can tell "no such row" apart from success after a
// lost race. The engine never mutates its in-memory state before the matching
// store call has succeeded.
type Store interface {
	// CreateProcess persists a new process with its tasks atomically and
	// returns the process with generated process and task ids filled in.
	CreateProcess(p Process) (Process, error)
	// CloseProcess records the closing timestamp for a process.
	CloseProcess(processID int, closedAt time.Time) error
	// CreateAssignment persists a new assignment and returns its generated id.
	CreateAssignment(a Assignment) (int, error)
	// CloseAssignment records the closing timestamp for an assignment. The
	// boolean reports whether the row existed.
	CloseAssignment(taskID int, assignee string, closedAt time.Time) (bool, error)
	// DeleteAssignment removes an assignment. The boolean reports whether the
	// row existed.
	DeleteAssignment(taskID int, assignee string) (bool, error)
	// Processes returns every persisted process, used to rebuild the engine's
	// in-memory index on startup.
	Processes() ([]Process, error)
}
