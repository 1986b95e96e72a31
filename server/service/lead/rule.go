package lead

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/officialmortgage/livbridge/store"
)

// HotRule decides whether a lead's flags make it a hot lead.
// The rule is a CEL expression over boolean flag variables, e.g.
// "ACCOUNT_CREATED && APP_COMPLETED && CREDIT_AUTHORIZED".
type HotRule struct {
	expr    string
	flags   []string
	program cel.Program
}

// CompileHotRule compiles expr with every flag declared as a bool variable.
// VALUATION_COMPLETE is always declared.
func CompileHotRule(expr string, flags []string) (*HotRule, error) {
	declared := map[string]bool{}
	var names []string
	for _, f := range append(append([]string{}, flags...), store.FlagValuationComplete) {
		if f == "" || declared[f] {
			continue
		}
		declared[f] = true
		names = append(names, f)
	}

	opts := make([]cel.EnvOption, 0, len(names))
	for _, name := range names {
		opts = append(opts, cel.Variable(name, cel.BoolType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid hot lead rule %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("hot lead rule %q must evaluate to a bool, got %s", expr, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build hot lead rule: %w", err)
	}
	return &HotRule{expr: expr, flags: names, program: program}, nil
}

// String returns the rule expression.
func (r *HotRule) String() string {
	return r.expr
}

// Eval evaluates the rule against the lead's flags. Unset flags are false.
func (r *HotRule) Eval(lead *store.Lead) (bool, error) {
	vars := make(map[string]any, len(r.flags))
	for _, f := range r.flags {
		vars[f] = lead.HasFlag(f)
	}
	out, _, err := r.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate hot lead rule: %w", err)
	}
	hot, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("hot lead rule returned %T", out.Value())
	}
	return hot, nil
}
