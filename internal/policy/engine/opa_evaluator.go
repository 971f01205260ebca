package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const allowQuery = "data.kriptoproyek.authz.allow"

// DefaultPolicy grants access when the caller holds at least one of the required roles.
const DefaultPolicy = `package kriptoproyek.authz

default allow := false

allow if {
	count(input.required) == 0
}

allow if {
	some role in input.required
	role in input.roles
}
`

// ErrNoResult is returned when the policy query yields no boolean decision.
var ErrNoResult = errors.New("policy: query returned no result")

// RoleEvaluator evaluates role requirements with an in-process OPA Rego policy.
// The policy is compiled once; Allow is safe for concurrent use.
type RoleEvaluator struct {
	query rego.PreparedEvalQuery
}

var _ Authorizer = (*RoleEvaluator)(nil)

// NewRoleEvaluator compiles policy, or DefaultPolicy when policy is empty.
// The module must define data.kriptoproyek.authz.allow.
func NewRoleEvaluator(ctx context.Context, policy string) (*RoleEvaluator, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"authz.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &RoleEvaluator{query: q}, nil
}

// Allow evaluates the policy for the caller's roles against the required roles.
func (e *RoleEvaluator) Allow(ctx context.Context, roles, required []string) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"roles":    toInterfaces(roles),
		"required": toInterfaces(required),
	}))
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, ErrNoResult
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, ErrNoResult
	}
	return allowed, nil
}

// HealthCheck verifies that the in-process OPA Rego engine can evaluate the compiled policy.
// Does not touch the database. Returns nil on success.
func (e *RoleEvaluator) HealthCheck(ctx context.Context) error {
	if _, err := e.Allow(ctx, []string{"health"}, []string{"health"}); err != nil {
		return err
	}
	return nil
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
