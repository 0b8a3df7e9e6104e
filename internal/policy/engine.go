package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine evaluates the failure-handling decision table. The table lives in a
// rego policy so the mapping stays in one auditable place; call sites never
// special-case status codes themselves.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares the engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.notify_policy.decision"),
		rego.Module("notify_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: query}, nil
}

// Evaluate maps a coarse error kind to a decision string.
func (e *Engine) Evaluate(ctx context.Context, kind string) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(map[string]any{"kind": kind}))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decisionDiagnose, nil
	}
	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return decisionDiagnose, nil
}

// Decision strings produced by the policy.
const (
	decisionRetry        = "retry"         // surface retryable message, manual retry allowed
	decisionLogout       = "logout"        // tear down session, redirect to login
	decisionSurface      = "surface"       // show the server's field-level message, no retry
	decisionCooldown     = "cooldown"      // block the triggering control for a fixed interval
	decisionGenericRetry = "generic_retry" // generic failure message, manual retry allowed
	decisionDiagnose     = "diagnose"      // generic failure message, log for diagnostics
)

// DefaultPolicy is the deterministic kind-to-decision table.
const DefaultPolicy = `
package notify_policy

import rego.v1

default decision := "diagnose"

decision := "retry" if input.kind == "network"

decision := "logout" if input.kind == "authentication"

decision := "surface" if input.kind == "validation"

decision := "cooldown" if input.kind == "rate_limited"

decision := "generic_retry" if input.kind == "server_fault"
`
