// Package schedule computes start/finish dates and the critical path for a
// process template's task graph. All functions are pure: they read the task
// templates and return a fresh Result without touching any runtime state.
package schedule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/procflow/procflow/internal/template"
)

// ErrCycle is returned when the predecessor relation is not a DAG.
var ErrCycle = errors.New("schedule: dependency graph contains a cycle")

// TaskSchedule holds the computed dates for a single task template.
type TaskSchedule struct {
	ID         int  `json:"id"`
	Start      int  `json:"start"`
	Finish     int  `json:"finish"`
	LateStart  int  `json:"late_start"`
	LateFinish int  `json:"late_finish"`
	Slack      int  `json:"slack"`
	Critical   bool `json:"critical"`
}

// Result is the outcome of a full scheduling pass. Tasks are sorted by start
// date, ties broken by template declaration order, which is the order charts
// render rows in.
type Result struct {
	Tasks    []TaskSchedule `json:"tasks"`
	Makespan int            `json:"makespan"`

	byID map[int]TaskSchedule
}

// Task looks up the schedule for a task id.
func (r Result) Task(id int) (TaskSchedule, bool) {
	ts, ok := r.byID[id]
	return ts, ok
}

// CriticalEdge reports whether the dependency pred -> succ lies on a longest
// path: both endpoints must be critical and there must be no idle gap between
// them.
func (r Result) CriticalEdge(pred, succ int) bool {
	p, okP := r.byID[pred]
	s, okS := r.byID[succ]
	if !okP || !okS {
		return false
	}
	return p.Critical && s.Critical && p.Finish == s.Start
}

// DetectCycle reports whether the predecessor relation over the given tasks
// contains a cycle, including self-references and references to unknown ids
// (which can never be satisfied).
func DetectCycle(tasks []template.TaskTemplate) bool {
	_, err := topoOrder(tasks)
	return err != nil
}

// Compute runs the critical path method over the tasks: a topological sort,
// a forward pass assigning earliest start/finish dates, and a backward pass
// assigning latest dates and zero-slack criticality. An empty task set yields
// an empty result with makespan 0.
func Compute(tasks []template.TaskTemplate) (Result, error) {
	if len(tasks) == 0 {
		return Result{byID: map[int]TaskSchedule{}}, nil
	}
	order, err := topoOrder(tasks)
	if err != nil {
		return Result{}, err
	}
	byID := make(map[int]template.TaskTemplate, len(tasks))
	successors := make(map[int][]int, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	for _, task := range tasks {
		for _, pred := range task.Predecessors {
			successors[pred] = append(successors[pred], task.ID)
		}
	}

	// Forward pass: a task starts once its latest-finishing predecessor is done.
	schedules := make(map[int]TaskSchedule, len(tasks))
	makespan := 0
	for _, id := range order {
		task := byID[id]
		start := 0
		for _, pred := range task.Predecessors {
			if finish := schedules[pred].Finish; finish > start {
				start = finish
			}
		}
		ts := TaskSchedule{ID: id, Start: start, Finish: start + task.EstimatedDuration}
		schedules[id] = ts
		if ts.Finish > makespan {
			makespan = ts.Finish
		}
	}

	// Backward pass in reverse topological order. Sinks finish at the makespan;
	// everything else must finish before its earliest-starting successor.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		ts := schedules[id]
		lateFinish := makespan
		for _, succ := range successors[id] {
			if ls := schedules[succ].LateStart; ls < lateFinish {
				lateFinish = ls
			}
		}
		ts.LateFinish = lateFinish
		ts.LateStart = lateFinish - byID[id].EstimatedDuration
		ts.Slack = ts.LateStart - ts.Start
		ts.Critical = ts.Slack == 0
		schedules[id] = ts
	}

	result := Result{
		Tasks:    make([]TaskSchedule, 0, len(tasks)),
		Makespan: makespan,
		byID:     schedules,
	}
	for _, task := range tasks {
		result.Tasks = append(result.Tasks, schedules[task.ID])
	}
	sort.SliceStable(result.Tasks, func(a, b int) bool {
		return result.Tasks[a].Start < result.Tasks[b].Start
	})
	return result, nil
}

// topoOrder runs Kahn's algorithm. The queue is seeded and extended in
// declaration order so equal-start tasks keep a deterministic layout.
func topoOrder(tasks []template.TaskTemplate) ([]int, error) {
	known := make(map[int]struct{}, len(tasks))
	for _, task := range tasks {
		known[task.ID] = struct{}{}
	}
	inDegree := make(map[int]int, len(tasks))
	successors := make(map[int][]int, len(tasks))
	for _, task := range tasks {
		for _, pred := range task.Predecessors {
			if _, ok := known[pred]; !ok {
				return nil, fmt.Errorf("schedule: task %d references unknown predecessor %d", task.ID, pred)
			}
			inDegree[task.ID]++
			successors[pred] = append(successors[pred], task.ID)
		}
	}
	var queue []int
	for _, task := range tasks {
		if inDegree[task.ID] == 0 {
			queue = append(queue, task.ID)
		}
	}
	order := make([]int, 0, len(tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, succ := range successors[id] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if len(order) != len(tasks) {
		return nil, fmt.Errorf("schedule: sorted %d of %d tasks: %w", len(order), len(tasks), ErrCycle)
	}
	return order, nil
}
