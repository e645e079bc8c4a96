package schedule

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/procflow/procflow/internal/template"
)

// randomDAG draws a task set whose predecessors only point at earlier
// declarations, which guarantees acyclicity by construction.
func randomDAG(t *rapid.T) []template.TaskTemplate {
	count := rapid.IntRange(1, 12).Draw(t, "count")
	tasks := make([]template.TaskTemplate, 0, count)
	for i := 0; i < count; i++ {
		var preds []int
		for j := 0; j < i; j++ {
			if rapid.Bool().Draw(t, "edge") {
				preds = append(preds, tasks[j].ID)
			}
		}
		tasks = append(tasks, template.TaskTemplate{
			ID:                i + 1,
			Name:              "task",
			EstimatedDuration: rapid.IntRange(1, 20).Draw(t, "duration"),
			NecessaryClosings: 1,
			Predecessors:      preds,
		})
	}
	return tasks
}

func TestComputeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tasks := randomDAG(t)
		result, err := Compute(tasks)
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		if len(result.Tasks) != len(tasks) {
			t.Fatalf("expected %d scheduled tasks, got %d", len(tasks), len(result.Tasks))
		}
		maxFinish := 0
		sawCritical := false
		for _, task := range tasks {
			ts, ok := result.Task(task.ID)
			if !ok {
				t.Fatalf("missing schedule for task %d", task.ID)
			}
			if ts.Finish-ts.Start != task.EstimatedDuration {
				t.Fatalf("task %d: duration %d does not match [%d,%d]", task.ID, task.EstimatedDuration, ts.Start, ts.Finish)
			}
			// The earliest start is exactly the latest predecessor finish.
			wantStart := 0
			for _, pred := range task.Predecessors {
				ps, _ := result.Task(pred)
				if ps.Finish > wantStart {
					wantStart = ps.Finish
				}
			}
			if ts.Start != wantStart {
				t.Fatalf("task %d: expected start %d, got %d", task.ID, wantStart, ts.Start)
			}
			if ts.Slack < 0 {
				t.Fatalf("task %d: negative slack %d", task.ID, ts.Slack)
			}
			if ts.Critical != (ts.Slack == 0) {
				t.Fatalf("task %d: criticality disagrees with slack %d", task.ID, ts.Slack)
			}
			if ts.LateFinish-ts.LateStart != task.EstimatedDuration {
				t.Fatalf("task %d: late window does not match duration", task.ID)
			}
			if ts.Finish > maxFinish {
				maxFinish = ts.Finish
			}
			if ts.Critical {
				sawCritical = true
			}
		}
		if result.Makespan != maxFinish {
			t.Fatalf("expected makespan %d, got %d", maxFinish, result.Makespan)
		}
		if !sawCritical {
			t.Fatalf("every non-empty schedule has at least one critical task")
		}
	})
}

func TestDetectCycleOnShuffledBackEdge(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tasks := randomDAG(t)
		if len(tasks) < 2 {
			t.Skip("need at least two tasks to close a cycle")
		}
		// Adding an edge from the last declaration back to the first closes a
		// cycle whenever a forward path first -> last exists; force one.
		first, last := 0, len(tasks)-1
		tasks[last].Predecessors = append(tasks[last].Predecessors, tasks[first].ID)
		tasks[first].Predecessors = append(tasks[first].Predecessors, tasks[last].ID)
		if !DetectCycle(tasks) {
			t.Fatalf("expected cycle after adding back edge")
		}
		if _, err := Compute(tasks); err == nil {
			t.Fatalf("expected compute to reject cyclic graph")
		}
	})
}
