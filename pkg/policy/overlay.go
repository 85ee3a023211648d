package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// OverlayRule is an operator-defined deny rule expressed in CEL. The
// expression sees `subject`, `action` and `resource` and must evaluate to a
// bool; true means the action is denied.
type OverlayRule struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

type compiledRule struct {
	name string
	prg  cel.Program
}

// Overlay holds deny rules compiled once at construction. Evaluation is
// read-only and safe for concurrent use.
type Overlay struct {
	rules []compiledRule
}

// NewOverlay compiles the given rules. A rule that does not compile is a
// configuration error; the overlay refuses to start rather than skipping it.
func NewOverlay(rules []OverlayRule) (*Overlay, error) {
	env, err := cel.NewEnv(
		cel.Variable("subject", cel.DynType),
		cel.Variable("action", cel.StringType),
		cel.Variable("resource", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("overlay env: %w", err)
	}

	o := &Overlay{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("overlay rule %q: compile: %w", r.Name, issues.Err())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("overlay rule %q: program: %w", r.Name, err)
		}
		o.rules = append(o.rules, compiledRule{name: r.Name, prg: prg})
	}
	return o, nil
}

// Match evaluates all rules against the triple and returns the name of the
// first rule that fires. Evaluation errors surface so the engine can fail
// closed.
func (o *Overlay) Match(s Subject, a Action, r Resource) (string, bool, error) {
	input := map[string]any{
		"action": string(a),
		"subject": map[string]any{
			"id":   s.ID,
			"role": string(s.Role),
		},
		"resource": map[string]any{
			"kind":        string(r.Kind),
			"owner_id":    r.OwnerID,
			"claim_state": r.ClaimState,
		},
	}
	for _, cr := range o.rules {
		out, _, err := cr.prg.Eval(input)
		if err != nil {
			return cr.name, false, fmt.Errorf("overlay rule %q: eval: %w", cr.name, err)
		}
		val, ok := out.Value().(bool)
		if !ok {
			return cr.name, false, fmt.Errorf("overlay rule %q: result not bool", cr.name)
		}
		if val {
			return cr.name, true, nil
		}
	}
	return "", false, nil
}
