// Package labrules evaluates the clinical-significance rule catalog for
// laboratory findings. Rules are plain data: a parameter list plus tagged
// conditions, interpreted by Evaluate.
package labrules

import (
	"github.com/tox-signal-mcp-server/internal/domain"
)

// ParamRole marks a rule parameter as required or supporting.
type ParamRole string

const (
	ParamRequired   ParamRole = "required"
	ParamSupporting ParamRole = "supporting"
)

// Param is a canonical analyte expected to move in a direction.
type Param struct {
	Canonical string           `json:"canonical"`
	Direction domain.Direction `json:"direction"`
	Role      ParamRole        `json:"role"`
}

// ConditionKind tags a rule condition.
type ConditionKind string

const (
	// CondFoldChangeAtLeast holds when Analyte's fold change (or its |g|
	// proxy) is at least Value.
	CondFoldChangeAtLeast ConditionKind = "fold_change_at_least"
	// CondEffectAtLeast holds when Analyte's |g| is at least Value.
	CondEffectAtLeast ConditionKind = "effect_at_least"
	// CondNotMoving holds when Analyte is absent or not moving in Direction.
	CondNotMoving ConditionKind = "not_moving"
	// CondOrganCoherence holds when System has at least Value domains.
	CondOrganCoherence ConditionKind = "organ_coherence"
	// CondSyndrome holds when SyndromeID was detected.
	CondSyndrome ConditionKind = "syndrome_detected"
	// CondSpeciesOutside holds when the study species is not in Species.
	CondSpeciesOutside ConditionKind = "species_outside"
	// CondSingleSexAdverse holds when an adverse lab endpoint affects one
	// sex while the other sex was measured.
	CondSingleSexAdverse ConditionKind = "single_sex_adverse"
	// CondAnyLabSignal holds when any significant lab endpoint exists.
	CondAnyLabSignal ConditionKind = "any_lab_signal"
)

// Condition is one tagged predicate of a rule.
type Condition struct {
	Kind       ConditionKind    `json:"kind"`
	Analyte    string           `json:"analyte,omitempty"`
	Direction  domain.Direction `json:"direction,omitempty"`
	Value      float64          `json:"value,omitempty"`
	System     string           `json:"system,omitempty"`
	SyndromeID string           `json:"syndrome_id,omitempty"`
	Species    []string         `json:"species,omitempty"`
}

// Rule is one catalog entry.
type Rule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Category         domain.RuleCategory `json:"category"`
	Severity         domain.LabSeverity  `json:"severity"`
	OrganSystem      string              `json:"organ_system,omitempty"`
	Params           []Param             `json:"params,omitempty"`
	MinSupporting    int                 `json:"min_supporting,omitempty"`
	Conditions       []Condition         `json:"conditions,omitempty"`
	Species          []string            `json:"species,omitempty"`
	RelatedSyndromes []string            `json:"related_syndromes,omitempty"`
	Source           string              `json:"source"`
}

func req(canonical string, dir domain.Direction) Param {
	return Param{Canonical: canonical, Direction: dir, Role: ParamRequired}
}

func sup(canonical string, dir domain.Direction) Param {
	return Param{Canonical: canonical, Direction: dir, Role: ParamSupporting}
}

func foldAtLeast(canonical string, v float64) Condition {
	return Condition{Kind: CondFoldChangeAtLeast, Analyte: canonical, Value: v}
}
