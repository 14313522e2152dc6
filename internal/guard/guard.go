package guard

import (
	"github.com/bmatcuk/doublestar/v4"
)

// Policy defines the limits and scopes for an agent run.
type Policy struct {
	MaxIterations   int      `json:"max_iterations"`
	MaxPromptTokens int      `json:"max_prompt_tokens"`
	AllowedTools    []string `json:"allowed_tools"`
	DeniedTools     []string `json:"denied_tools"`
}

// DefaultPolicy provides safe defaults.
var DefaultPolicy = Policy{
	MaxIterations:   10,
	MaxPromptTokens: 100000,
	AllowedTools:    []string{"*"},
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
	Fatal   bool
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultPolicy.MaxIterations
	}
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckIteration reports whether starting iteration n would exceed the ceiling.
func (g *Guard) CheckIteration(n int) *Violation {
	if n > g.policy.MaxIterations {
		return &Violation{Rule: "max_iterations", Message: "Iteration limit exceeded", Fatal: true}
	}
	return nil
}

// CheckTokens flags a conversation whose estimated size is over budget.
// The estimate is advisory, so the violation is never fatal.
func (g *Guard) CheckTokens(estimate int) *Violation {
	if g.policy.MaxPromptTokens > 0 && estimate > g.policy.MaxPromptTokens {
		return &Violation{Rule: "max_prompt_tokens", Message: "Prompt token estimate over budget"}
	}
	return nil
}

// CheckTool verifies a tool name against the allow and deny globs.
// Deny patterns win over allow patterns.
func (g *Guard) CheckTool(name string) *Violation {
	for _, pattern := range g.policy.DeniedTools {
		if match, err := doublestar.Match(pattern, name); err == nil && match {
			return &Violation{Rule: "denied_tools", Message: "Tool denied by policy: " + name}
		}
	}

	if len(g.policy.AllowedTools) == 0 {
		return nil
	}
	for _, pattern := range g.policy.AllowedTools {
		if match, err := doublestar.Match(pattern, name); err == nil && match {
			return nil
		}
	}
	return &Violation{Rule: "allowed_tools", Message: "Tool not allowed: " + name}
}
