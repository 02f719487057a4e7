package domain

import "time"

// StepKind tags the behavior of a flow step. Unknown kinds are
// rejected at load time, never silently ignored.
type StepKind string

const (
	StepPrompt   StepKind = "prompt"   // emit prompt, unconditional next
	StepInput    StepKind = "input"    // emit prompt, capture the reply into a variable
	StepBranch   StepKind = "branch"   // emit prompt, pick next step by matching the reply
	StepTerminal StepKind = "terminal" // emit closing prompt, complete the flow
)

// TransitionRule selects the next step when the client's reply matches.
// Rules are evaluated in declaration order; the first match wins.
// Matching is case-insensitive; Equals takes precedence over Contains
// within a single rule.
type TransitionRule struct {
	Equals   string `yaml:"equals,omitempty" json:"equals,omitempty"`
	Contains string `yaml:"contains,omitempty" json:"contains,omitempty"`
	Next     string `yaml:"next" json:"next"`
}

// Step is one unit of a flow: a prompt plus rules for choosing the
// next step. Prompts may reference captured variables as {name}.
type Step struct {
	ID     string           `yaml:"id" json:"id"`
	Kind   StepKind         `yaml:"kind" json:"kind"`
	Prompt string           `yaml:"prompt" json:"prompt"`
	Var    string           `yaml:"var,omitempty" json:"var,omitempty"`     // input capture target
	Rules  []TransitionRule `yaml:"rules,omitempty" json:"rules,omitempty"` // branch steps
	Next   string           `yaml:"next,omitempty" json:"next,omitempty"`   // default next step
}

// FlowDefinition is a named multi-step conversation script. At most
// one flow is marked default; an inactive flow is never selected as a
// new session's starting point.
type FlowDefinition struct {
	Name    string `yaml:"name" json:"name"`
	Version int    `yaml:"version,omitempty" json:"version,omitempty"`
	Trigger string `yaml:"trigger,omitempty" json:"trigger,omitempty"` // start command, matched case-insensitively
	Active  bool   `yaml:"active" json:"active"`
	Default bool   `yaml:"default,omitempty" json:"default,omitempty"`
	Entry   string `yaml:"entry" json:"entry"`
	Steps   []Step `yaml:"steps" json:"steps"`
}

// Step returns the step with the given id, or nil.
func (f *FlowDefinition) Step(id string) *Step {
	for i := range f.Steps {
		if f.Steps[i].ID == id {
			return &f.Steps[i]
		}
	}
	return nil
}

// Session is the ephemeral per-client state while traversing a flow.
// At most one session exists per client.
type Session struct {
	ClientID   int64             `json:"client_id"`
	FlowName   string            `json:"flow_name"`
	StepID     string            `json:"step_id"`
	Vars       map[string]string `json:"vars"`
	StartedAt  time.Time         `json:"started_at"`
	LastActive time.Time         `json:"last_active"`
}
