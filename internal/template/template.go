package template

import (
	"fmt"
	"sort"
	"strings"
)

// TaskTemplate declares one step of a process template. Predecessors reference
// other task ids within the same template and form the dependency graph the
// scheduler evaluates.
type TaskTemplate struct {
	ID                int    `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	Description       string `json:"description,omitempty" yaml:"description,omitempty"`
	EstimatedDuration int    `json:"estimated_duration" yaml:"estimated_duration"`
	NecessaryClosings int    `json:"necessary_closings" yaml:"necessary_closings"`
	ResponsibleRole   string `json:"responsible_role,omitempty" yaml:"responsible_role,omitempty"`
	Predecessors      []int  `json:"predecessors,omitempty" yaml:"predecessors,omitempty"`
}

// Clone returns a deep copy of the task template.
func (t TaskTemplate) Clone() TaskTemplate {
	clone := t
	if len(t.Predecessors) > 0 {
		clone.Predecessors = make([]int, len(t.Predecessors))
		copy(clone.Predecessors, t.Predecessors)
	}
	return clone
}

// Validate checks the fields a single task template controls on its own.
// Cross-task rules (predecessor existence, cycles) belong to ProcessTemplate.
func (t TaskTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template: task %d: name is required", t.ID)
	}
	if t.EstimatedDuration <= 0 {
		return fmt.Errorf("template: task %d: estimated_duration must be positive", t.ID)
	}
	if t.NecessaryClosings < 1 {
		return fmt.Errorf("template: task %d: necessary_closings must be at least 1", t.ID)
	}
	preds := append([]int{}, t.Predecessors...)
	sort.Ints(preds)
	for i := 1; i < len(preds); i++ {
		if preds[i] == preds[i-1] {
			return fmt.Errorf("template: task %d: duplicate predecessor %d", t.ID, preds[i])
		}
	}
	for _, pred := range t.Predecessors {
		if pred == t.ID {
			return fmt.Errorf("template: task %d: references itself as predecessor", t.ID)
		}
	}
	return nil
}

// ProcessTemplate declares a complete workflow: a titled set of task templates
// whose predecessor relation must be acyclic. Templates are edited in draft and
// frozen by copy once a process is started from them.
type ProcessTemplate struct {
	ID            string         `json:"id" yaml:"id"`
	Title         string         `json:"title" yaml:"title"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	DurationLimit int            `json:"duration_limit,omitempty" yaml:"duration_limit,omitempty"`
	Owner         string         `json:"owner,omitempty" yaml:"owner,omitempty"`
	Tasks         []TaskTemplate `json:"tasks" yaml:"tasks"`
}

// Clone returns a deep copy of the process template.
func (def ProcessTemplate) Clone() ProcessTemplate {
	clone := def
	if len(def.Tasks) > 0 {
		clone.Tasks = make([]TaskTemplate, len(def.Tasks))
		for i, task := range def.Tasks {
			clone.Tasks[i] = task.Clone()
		}
	}
	return clone
}

// Task looks up a task template by id.
func (def ProcessTemplate) Task(id int) (TaskTemplate, bool) {
	for _, task := range def.Tasks {
		if task.ID == id {
			return task, true
		}
	}
	return TaskTemplate{}, false
}

// Validate ensures the template is self-consistent: non-empty identity, unique
// task ids, per-task field rules, and predecessor references that resolve
// within the template. Acyclicity is checked by the schedule package, which
// callers invoke alongside Validate.
func (def ProcessTemplate) Validate() error {
	if strings.TrimSpace(def.ID) == "" {
		return fmt.Errorf("template: id is required")
	}
	if strings.TrimSpace(def.Title) == "" {
		return fmt.Errorf("template %s: title is required", def.ID)
	}
	if len(def.Tasks) == 0 {
		return fmt.Errorf("template %s: at least one task is required", def.ID)
	}
	if def.DurationLimit < 0 {
		return fmt.Errorf("template %s: duration_limit must be >= 0", def.ID)
	}
	seen := make(map[int]struct{}, len(def.Tasks))
	for idx, task := range def.Tasks {
		if err := task.Validate(); err != nil {
			return fmt.Errorf("template %s task[%d]: %w", def.ID, idx, err)
		}
		if _, exists := seen[task.ID]; exists {
			return fmt.Errorf("template %s: duplicate task id %d", def.ID, task.ID)
		}
		seen[task.ID] = struct{}{}
	}
	for _, task := range def.Tasks {
		for _, pred := range task.Predecessors {
			if _, ok := seen[pred]; !ok {
				return fmt.Errorf("template %s: task %d references unknown predecessor %d", def.ID, task.ID, pred)
			}
		}
	}
	return nil
}

// TaskIDs returns the task ids in declaration order.
func (def ProcessTemplate) TaskIDs() []int {
	ids := make([]int, 0, len(def.Tasks))
	for _, task := range def.Tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

// Successors returns the ids of tasks that list the given task as predecessor,
// in declaration order.
func (def ProcessTemplate) Successors(id int) []int {
	var succs []int
	for _, task := range def.Tasks {
		for _, pred := range task.Predecessors {
			if pred == id {
				succs = append(succs, task.ID)
				break
			}
		}
	}
	return succs
}
