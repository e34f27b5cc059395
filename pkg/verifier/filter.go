package verifier

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getpactd/pactd/pkg/contract"
)

// interactionFilter selects interactions by an expr-lang expression over
// description, provider state names, and consumer name. An empty expression
// keeps everything.
//
// Example: `description contains "order" and "no orders exist" in states`.
type interactionFilter struct {
	program *vm.Program
}

func newInteractionFilter(expression string) (*interactionFilter, error) {
	if strings.TrimSpace(expression) == "" {
		return &interactionFilter{}, nil
	}
	program, err := expr.Compile(expression, expr.Env(filterEnv("", nil, "")), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("filter expression: %w", err)
	}
	return &interactionFilter{program: program}, nil
}

func filterEnv(description string, states []string, consumer string) map[string]any {
	if states == nil {
		states = []string{}
	}
	return map[string]any{
		"description": description,
		"states":      states,
		"consumer":    consumer,
	}
}

func (f *interactionFilter) keepInteraction(i *contract.Interaction, consumer string) bool {
	if f.program == nil {
		return true
	}
	return f.eval(i.Description, i.StateNames(), consumer)
}

func (f *interactionFilter) keepMessage(m *contract.Message, consumer string) bool {
	if f.program == nil {
		return true
	}
	states := make([]string, len(m.ProviderStates))
	for idx, ps := range m.ProviderStates {
		states[idx] = ps.Name
	}
	return f.eval(m.Description, states, consumer)
}

func (f *interactionFilter) eval(description string, states []string, consumer string) bool {
	out, err := expr.Run(f.program, filterEnv(description, states, consumer))
	if err != nil {
		return false
	}
	keep, ok := out.(bool)
	return ok && keep
}
