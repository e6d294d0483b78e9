// -----------------------------------------------------------------------
// FixPlan / BuildHints - Schema-validated oracle payloads
// All fields are validated using go-playground/validator tags; a payload
// that fails validation is rejected at the boundary, never partially trusted
// -----------------------------------------------------------------------

package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// FixPlan is the oracle's structured suggestion after a failed attempt.
// FixCommands are candidates for automatic execution, subject to the guard.
// ManualSteps are informational only and are never executed.
type FixPlan struct {
	FixCommands     []string `json:"fix_commands"`
	ManualSteps     []string `json:"manual_steps"`
	NewBuildCommand string   `json:"new_build_command,omitempty"`
	Explanation     string   `json:"explanation" validate:"required"`
}

// IsEmpty reports whether the plan carries nothing actionable
func (p *FixPlan) IsEmpty() bool {
	return len(p.FixCommands) == 0 && p.NewBuildCommand == ""
}

// BuildHints is the oracle's parse of README-style build instructions
type BuildHints struct {
	BuildSystem  string   `json:"build_system"`
	BuildCommand string   `json:"build_command"`
	Dependencies []string `json:"dependencies"`
	Language     string   `json:"language"`
	Notes        string   `json:"notes,omitempty"`
}

// HasContent reports whether the hints carry anything usable
func (h *BuildHints) HasContent() bool {
	return h.BuildSystem != "" || h.BuildCommand != "" || len(h.Dependencies) > 0
}

var validate = validator.New()

// ValidateFixPlan validates a fix plan against its schema
func ValidateFixPlan(plan *FixPlan) error {
	if plan == nil {
		return fmt.Errorf("fix plan is nil")
	}
	if err := validate.Struct(plan); err != nil {
		return fmt.Errorf("fix plan failed schema validation: %w", err)
	}
	return nil
}

// ValidateBuildHints validates README-derived build hints against the schema
func ValidateBuildHints(hints *BuildHints) error {
	if hints == nil {
		return fmt.Errorf("build hints are nil")
	}
	if err := validate.Struct(hints); err != nil {
		return fmt.Errorf("build hints failed schema validation: %w", err)
	}
	return nil
}
