package binding

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// CompilePredicate compiles a boolean expr-lang expression over the
// variables prev and next, e.g. `prev.userID != next.userID`.
//
// A runtime evaluation error counts as false.
func CompilePredicate(src string) (Predicate, error) {
	if src == "" {
		return nil, fmt.Errorf("predicate expression must not be empty")
	}

	program, err := expr.Compile(src,
		expr.Env(predicateEnv(nil, nil)),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile predicate %q: %w", src, err)
	}

	return func(prev, next Props) bool {
		return runPredicate(program, prev, next)
	}, nil
}

func runPredicate(program *vm.Program, prev, next Props) bool {
	out, err := expr.Run(program, predicateEnv(prev, next))
	if err != nil {
		return false
	}
	b, _ := out.(bool)
	return b
}

func predicateEnv(prev, next Props) map[string]any {
	if prev == nil {
		prev = Props{}
	}
	if next == nil {
		next = Props{}
	}
	return map[string]any{
		"prev": map[string]any(prev),
		"next": map[string]any(next),
	}
}
