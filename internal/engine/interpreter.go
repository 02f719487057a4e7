package engine

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"deskbot/internal/domain"
)

// TerminalSignal is a first-class interpreter outcome, not an error.
type TerminalSignal string

const (
	// SignalNone means the session stays in the flow awaiting input.
	SignalNone TerminalSignal = ""
	// SignalCompleted means the flow reached a terminal step.
	SignalCompleted TerminalSignal = "completed"
	// SignalAborted means the session was ended by timeout or override.
	SignalAborted TerminalSignal = "aborted"
	// SignalUnhandled means the current step had no matching and no
	// default transition; the router converts this into an escalation.
	SignalUnhandled TerminalSignal = "unhandled"
)

// StepResult is the outcome of advancing a session by one turn.
type StepResult struct {
	Prompt string // rendered prompt or closing text; may be empty
	Signal TerminalSignal
}

// Interpreter executes one step of a flow definition against a
// session. It mutates only the session passed in; callers own
// persistence and locking.
type Interpreter struct {
	logger *slog.Logger
}

func NewInterpreter(logger *slog.Logger) *Interpreter {
	return &Interpreter{logger: logger}
}

// Enter positions a fresh session on the flow's entry step and emits
// its prompt. A terminal entry step completes the flow immediately.
func (it *Interpreter) Enter(def *domain.FlowDefinition, sess *domain.Session) StepResult {
	step := def.Step(def.Entry)
	if step == nil {
		it.logger.Error("flow entry step missing", "flow", def.Name, "entry", def.Entry)
		return StepResult{Signal: SignalUnhandled}
	}

	sess.LastActive = time.Now()
	if step.Kind == domain.StepTerminal {
		return StepResult{Prompt: renderPrompt(step.Prompt, sess.Vars), Signal: SignalCompleted}
	}

	sess.StepID = step.ID
	return StepResult{Prompt: renderPrompt(step.Prompt, sess.Vars)}
}

// Advance evaluates the current step's transition rule against the
// input and moves the session to the next step. Rules are evaluated in
// declaration order; the first matching predicate wins; otherwise the
// step's default next is used; a step with neither yields Unhandled.
func (it *Interpreter) Advance(def *domain.FlowDefinition, sess *domain.Session, input string) StepResult {
	step := def.Step(sess.StepID)
	if step == nil {
		it.logger.Warn("session points at missing step", "flow", def.Name, "step", sess.StepID)
		return StepResult{Signal: SignalUnhandled}
	}

	// Captured values merge into the session before advancing so later
	// prompts can reference them.
	if step.Kind == domain.StepInput && step.Var != "" {
		if sess.Vars == nil {
			sess.Vars = make(map[string]string)
		}
		sess.Vars[step.Var] = strings.TrimSpace(input)
	}

	nextID := resolveNext(step, input)
	if nextID == "" {
		return StepResult{Signal: SignalUnhandled}
	}

	next := def.Step(nextID)
	if next == nil {
		it.logger.Warn("transition targets missing step", "flow", def.Name, "from", step.ID, "to", nextID)
		return StepResult{Signal: SignalUnhandled}
	}

	sess.LastActive = time.Now()
	if next.Kind == domain.StepTerminal {
		return StepResult{Prompt: renderPrompt(next.Prompt, sess.Vars), Signal: SignalCompleted}
	}

	sess.StepID = next.ID
	return StepResult{Prompt: renderPrompt(next.Prompt, sess.Vars)}
}

// resolveNext picks the next step id for the given input.
func resolveNext(step *domain.Step, input string) string {
	if step.Kind == domain.StepBranch {
		lower := strings.ToLower(strings.TrimSpace(input))
		for _, rule := range step.Rules {
			if rule.Equals != "" && strings.ToLower(rule.Equals) == lower {
				return rule.Next
			}
			if rule.Contains != "" && strings.Contains(lower, strings.ToLower(rule.Contains)) {
				return rule.Next
			}
		}
	}
	return step.Next
}

// placeholderPattern matches {varName} references inside prompt text.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// renderPrompt substitutes {varName} with captured values. Missing
// variables render as empty string, never an error.
func renderPrompt(prompt string, vars map[string]string) string {
	if !strings.Contains(prompt, "{") {
		return prompt
	}
	return placeholderPattern.ReplaceAllStringFunc(prompt, func(match string) string {
		name := match[1 : len(match)-1]
		return vars[name]
	})
}
