package domain

// NormalizationMode selects the denominator used to interpret an organ weight.
type NormalizationMode string

const (
	ModeAbsolute    NormalizationMode = "absolute"
	ModeBodyWeight  NormalizationMode = "body_weight"
	ModeBrainWeight NormalizationMode = "brain_weight"
	ModeANCOVA      NormalizationMode = "ancova"
)

// IsValid reports whether m is a known mode.
func (m NormalizationMode) IsValid() bool {
	switch m {
	case ModeAbsolute, ModeBodyWeight, ModeBrainWeight, ModeANCOVA:
		return true
	default:
		return false
	}
}

func (m NormalizationMode) String() string {
	return string(m)
}

// EffectDecomposition splits a total organ-weight effect into the direct
// organ effect and the part mediated through body-weight change.
type EffectDecomposition struct {
	Organ            string   `json:"organ" yaml:"organ"`
	DoseLevel        int      `json:"dose_level" yaml:"dose_level"`
	TotalEffect      float64  `json:"total_effect" yaml:"total_effect"`
	DirectEffect     float64  `json:"direct_effect" yaml:"direct_effect"`
	IndirectEffect   float64  `json:"indirect_effect" yaml:"indirect_effect"`
	ProportionDirect float64  `json:"proportion_direct" yaml:"proportion_direct"`
	DirectG          float64  `json:"direct_g" yaml:"direct_g"`
	DirectP          *float64 `json:"direct_p,omitempty" yaml:"direct_p,omitempty"`
}

// NormalizationOverride is a reviewer-forced mode for one organ, optionally
// restricted to one dose level (DoseLevel 0 applies to every level).
type NormalizationOverride struct {
	Organ     string            `json:"organ" yaml:"organ"`
	DoseLevel int               `json:"dose_level,omitempty" yaml:"dose_level,omitempty"`
	Mode      NormalizationMode `json:"mode" yaml:"mode"`
	Reviewer  string            `json:"reviewer,omitempty" yaml:"reviewer,omitempty"`
	Rationale string            `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// NormalizationContext is the body-weight confounding assessment for one
// organ at one dose level. Tier is in 1..4.
type NormalizationContext struct {
	Organ          string               `json:"organ"`
	DoseLevel      int                  `json:"dose_level"`
	Mode           NormalizationMode    `json:"mode"`
	Tier           int                  `json:"tier"`
	BodyWeightG    float64              `json:"body_weight_g"`
	BrainWeightG   *float64             `json:"brain_weight_g,omitempty"`
	Decomposition  *EffectDecomposition `json:"decomposition,omitempty"`
	Rationale      []string             `json:"rationale"`
	Warnings       []string             `json:"warnings,omitempty"`
	UserOverridden bool                 `json:"user_overridden"`
}

// HasDecomposition reports whether covariate-adjusted data is attached.
func (c NormalizationContext) HasDecomposition() bool {
	return c.Decomposition != nil
}

// NormalizationDecision summarises the contexts of one organ.
type NormalizationDecision struct {
	Organ            string            `json:"organ"`
	Mode             NormalizationMode `json:"mode"`
	MaxTier          int               `json:"max_tier"`
	DrivingDoseLevel int               `json:"driving_dose_level"`
	Rationale        string            `json:"rationale"`
	UserOverridden   bool              `json:"user_overridden"`
}

// FloorCheck is the outcome of the magnitude floor check for one endpoint.
// Violation is empty when Passed is true.
type FloorCheck struct {
	Passed           bool    `json:"passed"`
	Violation        string  `json:"violation,omitempty"`
	ConfoundingNote  string  `json:"confounding_note,omitempty"`
	Tier             int     `json:"tier,omitempty"`
	EffectUsed       float64 `json:"effect_used"`
	UsedDirectEffect bool    `json:"used_direct_effect"`
}

// Annotation returns the violation or, for a passing check, the
// confounding note.
func (f FloorCheck) Annotation() string {
	if !f.Passed {
		return f.Violation
	}
	return f.ConfoundingNote
}

// AssessmentConfidence grades heuristic verdicts.
type AssessmentConfidence string

const (
	ConfidenceHigh   AssessmentConfidence = "high"
	ConfidenceMedium AssessmentConfidence = "medium"
	ConfidenceLow    AssessmentConfidence = "low"
)

// SecondaryToBW is the verdict on whether an organ-weight change is a
// consequence of systemic body-weight loss.
type SecondaryToBW struct {
	Organ       string               `json:"organ"`
	IsSecondary bool                 `json:"is_secondary"`
	Confidence  AssessmentConfidence `json:"confidence"`
	Rationale   string               `json:"rationale"`
}
