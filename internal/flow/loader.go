// Package flow loads and validates multi-step conversation scripts
// from YAML definitions and serves them to the routing engine through
// a refreshable registry.
package flow

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"deskbot/internal/domain"

	"gopkg.in/yaml.v3"
)

// LoadDirectory loads flow definitions from YAML files in a directory.
// Files must have .yaml or .yml extension. Invalid definitions fail the
// whole load: a broken flow must never be served partially.
func LoadDirectory(dir string, logger *slog.Logger) ([]domain.FlowDefinition, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("flows directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read flows dir: %w", err)
	}

	var flows []domain.FlowDefinition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read flow file %s: %w", path, err)
		}

		var def domain.FlowDefinition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse flow file %s: %w", path, err)
		}
		if def.Name == "" {
			def.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}

		if err := Validate(&def); err != nil {
			return nil, fmt.Errorf("flow %s (%s): %w", def.Name, path, err)
		}

		logger.Info("loaded flow", "name", def.Name, "steps", len(def.Steps), "active", def.Active)
		flows = append(flows, def)
	}

	if err := validateSet(flows); err != nil {
		return nil, err
	}
	return flows, nil
}

// Validate checks a single flow definition. Unknown step kinds, dangling
// transitions, and unreachable steps are load-time errors.
func Validate(def *domain.FlowDefinition) error {
	if len(def.Steps) == 0 {
		return fmt.Errorf("flow has no steps")
	}
	if def.Entry == "" {
		return fmt.Errorf("flow has no entry step")
	}

	byID := make(map[string]*domain.Step, len(def.Steps))
	for i := range def.Steps {
		step := &def.Steps[i]
		if step.ID == "" {
			return fmt.Errorf("step %d has no id", i)
		}
		if _, dup := byID[step.ID]; dup {
			return fmt.Errorf("duplicate step id %q", step.ID)
		}
		byID[step.ID] = step
	}

	if _, ok := byID[def.Entry]; !ok {
		return fmt.Errorf("entry step %q does not exist", def.Entry)
	}

	for i := range def.Steps {
		step := &def.Steps[i]
		switch step.Kind {
		case domain.StepPrompt, domain.StepInput:
			if step.Next == "" {
				return fmt.Errorf("step %q: %s step needs a next step", step.ID, step.Kind)
			}
		case domain.StepBranch:
			if len(step.Rules) == 0 && step.Next == "" {
				return fmt.Errorf("step %q: branch step needs rules or a default next", step.ID)
			}
		case domain.StepTerminal:
			if step.Next != "" || len(step.Rules) > 0 {
				return fmt.Errorf("step %q: terminal step must not declare transitions", step.ID)
			}
		default:
			return fmt.Errorf("step %q: unknown step kind %q", step.ID, step.Kind)
		}

		if step.Kind == domain.StepInput && step.Var == "" {
			return fmt.Errorf("step %q: input step needs a var name", step.ID)
		}

		if step.Next != "" {
			if _, ok := byID[step.Next]; !ok {
				return fmt.Errorf("step %q: next step %q does not exist", step.ID, step.Next)
			}
		}
		for j, rule := range step.Rules {
			if rule.Next == "" {
				return fmt.Errorf("step %q: rule %d has no next step", step.ID, j)
			}
			if _, ok := byID[rule.Next]; !ok {
				return fmt.Errorf("step %q: rule %d targets unknown step %q", step.ID, j, rule.Next)
			}
			if rule.Equals == "" && rule.Contains == "" {
				return fmt.Errorf("step %q: rule %d has no predicate", step.ID, j)
			}
		}
	}

	// Every step must be reachable from the entry step.
	reached := map[string]bool{def.Entry: true}
	queue := []string{def.Entry}
	for len(queue) > 0 {
		step := byID[queue[0]]
		queue = queue[1:]
		targets := make([]string, 0, len(step.Rules)+1)
		for _, rule := range step.Rules {
			targets = append(targets, rule.Next)
		}
		if step.Next != "" {
			targets = append(targets, step.Next)
		}
		for _, id := range targets {
			if !reached[id] {
				reached[id] = true
				queue = append(queue, id)
			}
		}
	}
	for id := range byID {
		if !reached[id] {
			return fmt.Errorf("step %q is unreachable from entry %q", id, def.Entry)
		}
	}

	return nil
}

// validateSet enforces invariants across a full set of definitions.
func validateSet(flows []domain.FlowDefinition) error {
	seen := make(map[string]bool, len(flows))
	defaultName := ""
	for i := range flows {
		def := &flows[i]
		if seen[def.Name] {
			return fmt.Errorf("duplicate flow name %q", def.Name)
		}
		seen[def.Name] = true
		if def.Default {
			if defaultName != "" {
				return fmt.Errorf("flows %q and %q are both marked default", defaultName, def.Name)
			}
			defaultName = def.Name
		}
	}
	return nil
}
