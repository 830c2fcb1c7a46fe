package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"attendance-verification-engine/internal/policy/repository"
)

const defaultPolicyPackage = "attendance.override"

// Default Rego policy: an override needs a written justification, an approver
// other than the student, an approver role allowed to grant overrides, and an
// active lecture.
const defaultRegoPolicy = `package attendance.override

default allow = false
default reason = "override_denied"

allow if {
	input.request.justification != ""
	input.request.approver_id != ""
	input.request.approver_id != input.student.id
	input.request.approver_role in {"lecturer", "admin"}
	input.lecture.active
}

reason = "missing_justification" if {
	input.request.justification == ""
}

reason = "self_approval" if {
	input.request.justification != ""
	input.request.approver_id == input.student.id
}

reason = "approver_not_permitted" if {
	input.request.justification != ""
	input.request.approver_id != input.student.id
	not input.request.approver_role in {"lecturer", "admin"}
}

reason = "lecture_inactive" if {
	input.request.justification != ""
	input.request.approver_id != input.student.id
	input.request.approver_role in {"lecturer", "admin"}
	not input.lecture.active
}

reason = "allowed" if {
	allow
}
`

// OPAEvaluator evaluates override policies using OPA Rego.
type OPAEvaluator struct {
	policyRepo repository.Repository
}

// NewOPAEvaluator returns an OPA-based override evaluator.
// policyRepo may be nil; then only the built-in default policy applies.
func NewOPAEvaluator(policyRepo repository.Repository) *OPAEvaluator {
	return &OPAEvaluator{policyRepo: policyRepo}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Does not call the policy repo or database. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	modules := map[string]string{"policy_0.rego": defaultRegoPolicy}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	q := rego.New(
		rego.Query("data."+defaultPolicyPackage+".allow"),
		rego.Compiler(compiler),
		rego.Input(buildRegoInput(OverrideInput{})),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// EvaluateOverride evaluates enabled lecture policies, falling back to the default policy
// when none are configured. Evaluation failures deny the override.
func (e *OPAEvaluator) EvaluateOverride(ctx context.Context, input OverrideInput) (OverrideResult, error) {
	var policies []string
	if e.policyRepo != nil {
		enabled, err := e.policyRepo.ListEnabledForLecture(ctx, input.LectureID)
		if err != nil {
			log.Printf("policy: failed to load policies for lecture %s: %v", input.LectureID, err)
		} else {
			for _, p := range enabled {
				if p.Enabled && p.Rules != "" {
					policies = append(policies, p.Rules)
				}
			}
		}
	}
	if len(policies) == 0 {
		policies = []string{defaultRegoPolicy}
	}

	result, err := e.evaluatePolicies(ctx, policies, buildRegoInput(input))
	if err != nil {
		return OverrideResult{Allowed: false, Reason: "policy_evaluation_failed"}, err
	}
	return result, nil
}

func buildRegoInput(in OverrideInput) map[string]interface{} {
	return map[string]interface{}{
		"student": map[string]interface{}{
			"id": in.StudentID,
		},
		"lecture": map[string]interface{}{
			"id":     in.LectureID,
			"active": in.LectureActive,
		},
		"request": map[string]interface{}{
			"approver_id":   in.ApproverID,
			"approver_role": in.ApproverRole,
			"justification": in.Justification,
		},
	}
}

func (e *OPAEvaluator) evaluatePolicies(ctx context.Context, policies []string, input map[string]interface{}) (OverrideResult, error) {
	modules := make(map[string]string)
	for i, policy := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = policy
	}

	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return OverrideResult{}, fmt.Errorf("compile policies: %w", err)
	}

	out := OverrideResult{Allowed: false, Reason: "override_denied"}

	allowQuery := rego.New(
		rego.Query("data."+defaultPolicyPackage+".allow"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	allowRS, err := allowQuery.Eval(ctx)
	if err != nil {
		return OverrideResult{}, fmt.Errorf("eval allow: %w", err)
	}
	if len(allowRS) > 0 && len(allowRS[0].Expressions) > 0 {
		if v, ok := allowRS[0].Expressions[0].Value.(bool); ok {
			out.Allowed = v
		}
	}

	reasonQuery := rego.New(
		rego.Query("data."+defaultPolicyPackage+".reason"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	reasonRS, err := reasonQuery.Eval(ctx)
	if err == nil && len(reasonRS) > 0 && len(reasonRS[0].Expressions) > 0 {
		if v, ok := reasonRS[0].Expressions[0].Value.(string); ok && v != "" {
			out.Reason = v
		}
	}

	return out, nil
}
