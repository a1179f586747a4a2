package services

import (
	"fmt"

	"github.com/Sen667/JDE-sub004/pkg/models"
)

// stepGraph indexes a template's steps by id with their typed outgoing
// edges (linear, decision-yes, decision-no, parallel). Authored step data
// references sibling ids directly, so the graph is validated before any
// traversal: a cycle in authored data must surface as an error, never as an
// infinite loop.
type stepGraph struct {
	steps map[string]*models.WorkflowStep
}

func newStepGraph(steps []*models.WorkflowStep) *stepGraph {
	g := &stepGraph{steps: make(map[string]*models.WorkflowStep, len(steps))}
	for _, s := range steps {
		g.steps[s.ID] = s
	}
	return g
}

// successors returns all outgoing edges of a step, regardless of edge type.
func (g *stepGraph) successors(id string) []string {
	s, ok := g.steps[id]
	if !ok {
		return nil
	}
	var out []string
	for _, next := range []*string{s.NextStepID, s.DecisionYesNextStepID, s.DecisionNoNextStepID} {
		if next != nil {
			out = append(out, *next)
		}
	}
	out = append(out, s.ParallelSteps...)
	return out
}

// validate checks that the graph is acyclic. Edges pointing at steps
// outside the template are ignored rather than rejected; authored data may
// reference steps of a newer template version.
func (g *stepGraph) validate() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.steps))

	var visit func(id string) error
	visit = func(id string) error {
		if _, ok := g.steps[id]; !ok {
			return nil
		}
		switch state[id] {
		case visiting:
			return fmt.Errorf("workflow step graph contains a cycle through step %s", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, next := range g.successors(id) {
			if err := visit(next); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for id := range g.steps {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// reachableFrom returns the set of step ids reachable from start, excluding
// start itself. Used by the rollback eligibility check.
func (g *stepGraph) reachableFrom(start string) map[string]bool {
	seen := map[string]bool{}
	stack := g.successors(start)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] || id == start {
			continue
		}
		if _, ok := g.steps[id]; !ok {
			continue
		}
		seen[id] = true
		stack = append(stack, g.successors(id)...)
	}
	return seen
}

// ValidateStepGraph checks a template's steps for cycles across all edge
// types. The seeder and the transfer fast-forward both run it before
// trusting authored step data.
func ValidateStepGraph(steps []*models.WorkflowStep) error {
	return newStepGraph(steps).validate()
}
