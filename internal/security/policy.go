package security

import "github.com/agentcore/nexuscore/pkg/models"

// Evaluate applies a SecurityPolicy to a command string in the fixed
// order: blocklist, then allowlist, then approval_required, then
// default_action.
func Evaluate(policy models.SecurityPolicy, command string) models.PolicyDecision {
	if pattern, ok := MatchAny(policy.Blocklist, command); ok {
		return models.PolicyDecision{
			Action:         models.PolicyActionBlock,
			MatchedPattern: pattern,
			Reason:         "matched blocklist pattern",
		}
	}
	if pattern, ok := MatchAny(policy.Allowlist, command); ok {
		return models.PolicyDecision{
			Action:         models.PolicyActionAllow,
			MatchedPattern: pattern,
		}
	}
	if pattern, ok := MatchAny(policy.ApprovalRequired, command); ok {
		return models.PolicyDecision{
			Action:         models.PolicyActionRequireApproval,
			MatchedPattern: pattern,
			Reason:         "matched approval_required pattern",
		}
	}
	return models.PolicyDecision{Action: policy.DefaultAction}
}
