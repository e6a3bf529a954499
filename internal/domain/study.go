package domain

import "time"

// StudyInput is everything the pipeline needs for one study. It is read
// only; the core never mutates any field.
type StudyInput struct {
	StudyID        string                  `json:"study_id" yaml:"study_id"`
	Metadata       StudyMetadata           `json:"metadata" yaml:"metadata"`
	Findings       []RawFindingRow         `json:"findings" yaml:"findings"`
	BodyWeights    []BodyWeightStat        `json:"body_weights,omitempty" yaml:"body_weights,omitempty"`
	OrganWeights   []OrganWeightStat       `json:"organ_weights,omitempty" yaml:"organ_weights,omitempty"`
	Decompositions []EffectDecomposition   `json:"decompositions,omitempty" yaml:"decompositions,omitempty"`
	Overrides      []NormalizationOverride `json:"overrides,omitempty" yaml:"overrides,omitempty"`
	Recovery       []RecoveryObservation   `json:"recovery,omitempty" yaml:"recovery,omitempty"`
	Mortality      []MortalityRecord       `json:"mortality,omitempty" yaml:"mortality,omitempty"`
	Tumors         []TumorFinding          `json:"tumors,omitempty" yaml:"tumors,omitempty"`
}

// Validate checks the bundle shape at the transport boundary.
func (in StudyInput) Validate() error {
	if in.StudyID == "" {
		return NewValidationError("study_id", ErrMissingStudyID.Error(), in.StudyID)
	}
	for i, row := range in.Findings {
		if err := row.Validate(); err != nil {
			return NewValidationError("findings", err.Error(), i)
		}
	}
	for _, o := range in.Overrides {
		if !o.Mode.IsValid() {
			return NewValidationError("overrides.mode", ErrInvalidMode.Error(), o.Mode)
		}
	}
	return nil
}

// StudyAnalysis is the full pipeline output for one study. Maps are keyed by
// organ (coherence by organ system); ordered slices carry the deterministic
// order of each stage.
type StudyAnalysis struct {
	StudyID                string                           `json:"study_id"`
	Endpoints              []EndpointSummary                `json:"endpoints"`
	OrganCoherence         map[string]OrganCoherence        `json:"organ_coherence"`
	NormalizationContexts  []NormalizationContext           `json:"normalization_contexts"`
	NormalizationDecisions map[string]NormalizationDecision `json:"normalization_decisions"`
	LabMatches             []LabClinicalMatch               `json:"lab_matches"`
	GovernanceMatches      []LabClinicalMatch               `json:"governance_matches"`
	Syndromes              []CrossDomainSyndrome            `json:"syndromes"`
	TermReports            []SyndromeTermReport             `json:"term_reports"`
	Interpretations        []SyndromeInterpretation         `json:"interpretations"`
	FloorChecks            map[string]FloorCheck            `json:"floor_checks,omitempty"`
	SecondaryToBW          map[string]SecondaryToBW         `json:"secondary_to_bw,omitempty"`
	InputDigest            string                           `json:"input_digest,omitempty"`
	AnalyzedAt             time.Time                        `json:"analyzed_at"`
}

// AnalysisRun is a persisted record of one pipeline execution.
type AnalysisRun struct {
	ID               string         `json:"id"`
	StudyID          string         `json:"study_id"`
	InputDigest      string         `json:"input_digest"`
	EndpointCount    int            `json:"endpoint_count"`
	SyndromeCount    int            `json:"syndrome_count"`
	LabMatchCount    int            `json:"lab_match_count"`
	ProcessingTimeMs int            `json:"processing_time_ms"`
	Result           *StudyAnalysis `json:"result,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
