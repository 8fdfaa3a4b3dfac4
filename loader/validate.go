package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/nathoo/npcmind/engine/state"
)

// ValidationError collects all validation errors found in a roster.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (ve *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d error(s):", len(ve.Errors))
	for _, e := range ve.Errors {
		b.WriteString("\n  ")
		b.WriteString(e)
	}
	return b.String()
}

func (ve *ValidationError) addError(format string, args ...any) {
	ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
}

func (ve *ValidationError) addWarning(format string, args ...any) {
	ve.Warnings = append(ve.Warnings, fmt.Sprintf(format, args...))
}

// validate checks the compiled roster. Warnings go to stderr; only errors
// fail the load.
func validate(defs *state.Defs) error {
	ve := check(defs)
	for _, w := range ve.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func check(defs *state.Defs) *ValidationError {
	ve := &ValidationError{}
	limits := state.DefaultLimits()

	s := defs.Settings
	if s.MaxFacts < 0 {
		ve.addError("settings: max_facts must not be negative, got %d", s.MaxFacts)
	}
	if s.MaxTags < 0 {
		ve.addError("settings: max_tags must not be negative, got %d", s.MaxTags)
	}
	if s.Exploration < 0 || s.Exploration > 1 {
		ve.addError("settings: exploration must be in [0, 1], got %g", s.Exploration)
	}

	if len(defs.Order) == 0 {
		ve.addError("no NPC definitions found")
	}

	for _, id := range defs.Order {
		npc := defs.NPCs[id]
		if strings.TrimSpace(id) == "" {
			ve.addError("npc with empty id")
			continue
		}
		if strings.ContainsAny(id, " \t\n") {
			ve.addError("npc %q: id must not contain whitespace", id)
		}
		if npc.Name == "" {
			ve.addWarning("npc %q has no name", id)
		}
		if npc.Affinity < limits.AffinityMin || npc.Affinity > limits.AffinityMax {
			ve.addError("npc %q: affinity must be in [%g, %g], got %g",
				id, limits.AffinityMin, limits.AffinityMax, npc.Affinity)
		}
		if !state.ValidMood(npc.Mood) {
			ve.addError("npc %q: unknown mood %q", id, npc.Mood)
		}
		if npc.Exploration < 0 || npc.Exploration > 1 {
			ve.addError("npc %q: exploration must be in [0, 1], got %g", id, npc.Exploration)
		}
		if npc.Trust < 0 || npc.Trust > 1 {
			ve.addError("npc %q: trust must be in [0, 1], got %g", id, npc.Trust)
		}

		maxFacts := limits.MaxFacts
		if s.MaxFacts > 0 {
			maxFacts = s.MaxFacts
		}
		if len(npc.Facts) > maxFacts {
			ve.addWarning("npc %q: %d facts exceed the cap of %d; the oldest will be dropped",
				id, len(npc.Facts), maxFacts)
		}
		for i, f := range npc.Facts {
			if strings.TrimSpace(f) == "" {
				ve.addError("npc %q: fact %d is empty", id, i+1)
			}
		}
	}
	return ve
}
