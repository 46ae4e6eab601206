package expression

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/autobrr/dupelink/pkg/paths"
)

func CheckFileSingleMatch(ctx context.Context, p paths.Path, expressions []CompiledExpression) (bool, error) {
	match, _, err := CheckFileSingleMatchWithReason(ctx, p, expressions)
	return match, err
}

func CheckFileSingleMatchWithReason(ctx context.Context, p paths.Path, expressions []CompiledExpression) (bool, string, error) {
	env := newEvalContext(p)

	for _, expression := range expressions {
		if err := ctx.Err(); err != nil {
			return false, "", err
		}

		result, err := expr.Run(expression.Program, env)
		if err != nil {
			return false, "", fmt.Errorf("check expression: %w", err)
		}

		expResult, ok := result.(bool)
		if !ok {
			return false, "", fmt.Errorf("type assert expression result: %T", result)
		}

		if expResult {
			return true, expression.Text, nil
		}
	}

	return false, "", nil
}

// FilterPaths drops every path matching one of the expressions and returns the rest
// in their original order, along with the number dropped.
func FilterPaths(ctx context.Context, candidates []paths.Path, expressions []CompiledExpression) ([]paths.Path, int, error) {
	if len(expressions) == 0 {
		return candidates, 0, nil
	}

	kept := make([]paths.Path, 0, len(candidates))
	ignored := 0

	for _, p := range candidates {
		match, reason, err := CheckFileSingleMatchWithReason(ctx, p, expressions)
		if err != nil {
			return nil, 0, fmt.Errorf("filter %s: %w", p.Path, err)
		}

		if match {
			log.Tracef("Ignoring %s, matched: %s", p.Path, reason)
			ignored++
			continue
		}

		kept = append(kept, p)
	}

	return kept, ignored, nil
}
