package dispatch

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/ruleflow/pkg/models"
)

// Plan is the load-time schedule of a workflow's actions: actions sorted by
// Order, index-addressed dependency adjacency and the waves derived from it.
type Plan struct {
	Actions      []models.Action
	Dependencies [][]int
	Waves        [][]int

	index map[string]int
}

// NewPlan validates the action dependency graph and computes its waves. A
// wave holds every action whose dependencies all sit in earlier waves. With
// sequential set, each wave holds exactly one action.
func NewPlan(workflowID string, actions []models.Action, sequential bool) (*Plan, error) {
	sorted := slices.Clone(actions)
	slices.SortStableFunc(sorted, func(a, b models.Action) int { return a.Order - b.Order })

	plan := &Plan{
		Actions:      sorted,
		Dependencies: make([][]int, len(sorted)),
		index:        make(map[string]int, len(sorted)),
	}

	for i, action := range sorted {
		if action.ID == "" {
			return nil, models.NewDefinitionError(workflowID, fmt.Sprintf("action at position %d has no id", i))
		}

		if _, dup := plan.index[action.ID]; dup {
			return nil, models.NewDefinitionError(workflowID, fmt.Sprintf("duplicate action id %q", action.ID))
		}

		plan.index[action.ID] = i
	}

	for i, action := range sorted {
		for _, dep := range action.Dependencies {
			if dep == action.ID {
				return nil, models.NewDefinitionError(workflowID, fmt.Sprintf("action %q depends on itself", action.ID))
			}

			j, ok := plan.index[dep]
			if !ok {
				return nil, models.NewDefinitionError(workflowID, fmt.Sprintf("action %q depends on unknown action %q", action.ID, dep))
			}

			if !slices.Contains(plan.Dependencies[i], j) {
				plan.Dependencies[i] = append(plan.Dependencies[i], j)
			}
		}
	}

	levels, err := plan.levels(workflowID)
	if err != nil {
		return nil, err
	}

	for i, level := range levels {
		for len(plan.Waves) <= level {
			plan.Waves = append(plan.Waves, nil)
		}

		plan.Waves[level] = append(plan.Waves[level], i)
	}

	if sequential {
		var serial [][]int

		for _, wave := range plan.Waves {
			for _, i := range wave {
				serial = append(serial, []int{i})
			}
		}

		plan.Waves = serial
	}

	return plan, nil
}

// levels assigns each action its wave with Kahn's algorithm; anything left
// unprocessed sits on a cycle.
func (p *Plan) levels(workflowID string) ([]int, error) {
	n := len(p.Actions)
	indegree := make([]int, n)
	dependents := make([][]int, n)

	for i, deps := range p.Dependencies {
		indegree[i] = len(deps)
		for _, j := range deps {
			dependents[j] = append(dependents[j], i)
		}
	}

	levels := make([]int, n)
	queue := make([]int, 0, n)

	for i := range n {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	processed := 0

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		processed++

		for _, k := range dependents[i] {
			levels[k] = max(levels[k], levels[i]+1)

			indegree[k]--
			if indegree[k] == 0 {
				queue = append(queue, k)
			}
		}
	}

	if processed < n {
		var cyclic []string

		for i := range n {
			if indegree[i] > 0 {
				cyclic = append(cyclic, p.Actions[i].ID)
			}
		}

		return nil, models.NewDefinitionError(workflowID, "dependency cycle among actions "+strings.Join(cyclic, ", "))
	}

	return levels, nil
}

// Index returns the position of an action in Actions.
func (p *Plan) Index(actionID string) (int, bool) {
	i, ok := p.index[actionID]

	return i, ok
}

// Action returns an action by id.
func (p *Plan) Action(actionID string) (models.Action, bool) {
	i, ok := p.index[actionID]
	if !ok {
		return models.Action{}, false
	}

	return p.Actions[i], true
}
