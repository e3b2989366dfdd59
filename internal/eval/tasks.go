package eval

import (
	"fmt"
	"sort"

	"github.com/parallax-robotics/splatview/internal/rubric"
)

// Task bundles a rubric with its default natural-language instruction.
type Task struct {
	Name        string
	Instruction string
	Rubric      *rubric.Rubric
}

// Thresholds for the built-in kitchen-table tasks. The cup rests at z=0.05
// and the tray sits at (0.45, -0.2).
const (
	reachThreshold = 0.08
	liftHeight     = 0.08
	cupRestZ       = 0.05
	trayX          = 0.45
	trayY          = -0.2
	trayRadius     = 0.10
)

var builtinTasks = map[string]func() *Task{
	"reach": func() *Task {
		return &Task{
			Name:        "reach",
			Instruction: "reach for the cup",
			Rubric: &rubric.Rubric{
				Task: "reach",
				Criteria: []rubric.Criterion{
					{Name: "reach cup", Check: rubric.Reach("cup", reachThreshold)},
				},
			},
		}
	},
	"lift": func() *Task {
		return &Task{
			Name:        "lift",
			Instruction: "pick up the cup",
			Rubric: &rubric.Rubric{
				Task: "lift",
				Criteria: []rubric.Criterion{
					{Name: "reach cup", Check: rubric.Reach("cup", reachThreshold)},
					{Name: "lift cup", Check: rubric.Lift("cup", cupRestZ, liftHeight), DependsOn: []int{0}},
				},
			},
		}
	},
	"place": func() *Task {
		return &Task{
			Name:        "place",
			Instruction: "put the cup on the tray",
			Rubric: &rubric.Rubric{
				Task: "place",
				Criteria: []rubric.Criterion{
					{Name: "reach cup", Check: rubric.Reach("cup", reachThreshold)},
					{Name: "lift cup", Check: rubric.Lift("cup", cupRestZ, liftHeight), DependsOn: []int{0}},
					{Name: "cup over tray", Check: rubric.WithinXY("cup", trayX, trayY, trayRadius), DependsOn: []int{1}},
				},
			},
		}
	},
}

// LookupTask returns a built-in task by name.
func LookupTask(name string) (*Task, error) {
	build, ok := builtinTasks[name]
	if !ok {
		return nil, fmt.Errorf("unknown task %q (available: %v)", name, TaskNames())
	}
	return build(), nil
}

// TaskNames lists the built-in tasks in sorted order.
func TaskNames() []string {
	names := make([]string, 0, len(builtinTasks))
	for name := range builtinTasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
