package dag

import (
	"fmt"
	"sort"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// ComputeBatches runs Kahn-style topological leveling: each batch is
// the current set of tasks with no unsatisfied dependencies. A
// non-empty remainder with no ready tasks means a cycle.
func ComputeBatches(tasks map[string]*models.SubTask) ([][]string, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("empty task set")
	}

	remaining := make(map[string][]string, len(tasks))
	for id, t := range tasks {
		deps := make([]string, 0, len(t.Dependencies))
		for _, dep := range t.Dependencies {
			if _, ok := tasks[dep]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task %s", id, dep)
			}
			deps = append(deps, dep)
		}
		remaining[id] = deps
	}

	done := make(map[string]struct{}, len(tasks))
	var batches [][]string
	for len(done) < len(tasks) {
		var ready []string
		for id, deps := range remaining {
			if _, finished := done[id]; finished {
				continue
			}
			satisfied := true
			for _, dep := range deps {
				if _, ok := done[dep]; !ok {
					satisfied = false
					break
				}
			}
			if satisfied {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, fmt.Errorf("dependency cycle among remaining tasks")
		}
		sort.Strings(ready)
		batches = append(batches, ready)
		for _, id := range ready {
			done[id] = struct{}{}
		}
	}
	return batches, nil
}

// Validate checks the DAG contract: non-empty, closed dependencies,
// batches partitioning the task set exactly, no intra-batch dependency,
// and topological batch order. Cycles surface as a partition mismatch
// because a cyclic task can never be scheduled.
func Validate(d *models.TaskDAG) error {
	if d == nil || len(d.Tasks) == 0 {
		return fmt.Errorf("DAG has no tasks")
	}
	if _, ok := d.Tasks[d.RootTask]; d.RootTask != "" && !ok {
		return fmt.Errorf("root task %s not in DAG", d.RootTask)
	}

	for id, t := range d.Tasks {
		for _, dep := range t.Dependencies {
			if _, ok := d.Tasks[dep]; !ok {
				return fmt.Errorf("task %s depends on unknown task %s", id, dep)
			}
			if dep == id {
				return fmt.Errorf("task %s depends on itself", id)
			}
		}
	}

	scheduled := make(map[string]int, len(d.Tasks))
	for i, batch := range d.Batches {
		for _, id := range batch {
			if _, ok := d.Tasks[id]; !ok {
				return fmt.Errorf("batch %d schedules unknown task %s", i, id)
			}
			if prev, dup := scheduled[id]; dup {
				return fmt.Errorf("task %s scheduled in batches %d and %d", id, prev, i)
			}
			scheduled[id] = i
		}
	}
	if len(scheduled) != len(d.Tasks) {
		return fmt.Errorf("batches cover %d of %d tasks", len(scheduled), len(d.Tasks))
	}

	for id, t := range d.Tasks {
		for _, dep := range t.Dependencies {
			if scheduled[dep] >= scheduled[id] {
				return fmt.Errorf("task %s in batch %d depends on %s in batch %d", id, scheduled[id], dep, scheduled[dep])
			}
		}
	}
	return nil
}
