package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/summary"
)

// AnalysisDigest is the summary form of a StudyAnalysis.
type AnalysisDigest struct {
	StudyID         string                                  `json:"study_id"`
	InputDigest     string                                  `json:"input_digest,omitempty"`
	EndpointCount   int                                     `json:"endpoint_count"`
	CoherentOrgans  []string                                `json:"coherent_organs,omitempty"`
	Syndromes       []SyndromeDigest                        `json:"syndromes"`
	LabMatches      []LabMatchDigest                        `json:"lab_matches"`
	GovernanceFlags []string                                `json:"governance_flags,omitempty"`
	FloorViolations map[string]string                       `json:"floor_violations,omitempty"`
	SecondaryToBW   []string                                `json:"secondary_to_bw,omitempty"`
	Normalization   map[string]domain.NormalizationDecision `json:"normalization,omitempty"`
	AnalyzedAt      string                                  `json:"analyzed_at"`
}

// SyndromeDigest is one detected syndrome with its interpretation verdicts.
type SyndromeDigest struct {
	ID                   string                      `json:"id"`
	Name                 string                      `json:"name"`
	Confidence           domain.SyndromeConfidence   `json:"confidence"`
	Domains              []domain.Domain             `json:"domains"`
	TreatmentRelatedness domain.TreatmentRelatedness `json:"treatment_relatedness,omitempty"`
	Certainty            domain.Certainty            `json:"certainty,omitempty"`
	Severity             domain.Adversity            `json:"severity,omitempty"`
}

// LabMatchDigest is one matched lab rule.
type LabMatchDigest struct {
	RuleID     string             `json:"rule_id"`
	Name       string             `json:"name"`
	Severity   domain.LabSeverity `json:"severity"`
	Confidence int                `json:"confidence"`
}

// Digest condenses an analysis to its verdicts.
func Digest(a *domain.StudyAnalysis) AnalysisDigest {
	digest := AnalysisDigest{
		StudyID:       a.StudyID,
		InputDigest:   a.InputDigest,
		EndpointCount: len(a.Endpoints),
		Syndromes:     make([]SyndromeDigest, 0, len(a.Syndromes)),
		LabMatches:    make([]LabMatchDigest, 0, len(a.LabMatches)),
		Normalization: a.NormalizationDecisions,
		AnalyzedAt:    a.AnalyzedAt.UTC().Format(time.RFC3339),
	}

	for _, organ := range summary.SortedOrgans(a.OrganCoherence) {
		if a.OrganCoherence[organ].Coherent() {
			digest.CoherentOrgans = append(digest.CoherentOrgans, organ)
		}
	}

	interps := make(map[string]domain.SyndromeInterpretation, len(a.Interpretations))
	for _, in := range a.Interpretations {
		interps[in.SyndromeID] = in
	}
	for _, syn := range a.Syndromes {
		sd := SyndromeDigest{
			ID:         syn.ID,
			Name:       syn.Name,
			Confidence: syn.Confidence,
			Domains:    syn.DomainsCovered,
		}
		if in, ok := interps[syn.ID]; ok {
			sd.TreatmentRelatedness = in.TreatmentRelatedness.Overall
			sd.Certainty = in.Certainty
			sd.Severity = in.OverallSeverity
		}
		digest.Syndromes = append(digest.Syndromes, sd)
	}

	for _, m := range a.LabMatches {
		digest.LabMatches = append(digest.LabMatches, LabMatchDigest{
			RuleID:     m.RuleID,
			Name:       m.Name,
			Severity:   m.Severity,
			Confidence: m.Confidence,
		})
	}
	for _, m := range a.GovernanceMatches {
		digest.GovernanceFlags = append(digest.GovernanceFlags, fmt.Sprintf("%s %s", m.RuleID, m.Name))
	}

	for label, check := range a.FloorChecks {
		if check.Passed {
			continue
		}
		if digest.FloorViolations == nil {
			digest.FloorViolations = make(map[string]string)
		}
		digest.FloorViolations[label] = check.Violation
	}
	for organ, verdict := range a.SecondaryToBW {
		if verdict.IsSecondary {
			digest.SecondaryToBW = append(digest.SecondaryToBW, organ)
		}
	}
	sort.Strings(digest.SecondaryToBW)
	return digest
}

// String renders the digest as a short report.
func (d AnalysisDigest) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Study %s: %d endpoints, %d syndromes, %d lab rules matched", d.StudyID, d.EndpointCount, len(d.Syndromes), len(d.LabMatches))
	for _, syn := range d.Syndromes {
		fmt.Fprintf(&b, "\n- %s %s (%s)", syn.ID, syn.Name, syn.Confidence)
		if syn.TreatmentRelatedness != "" {
			fmt.Fprintf(&b, ": %s, %s certainty, %s", syn.TreatmentRelatedness, syn.Certainty, syn.Severity)
		}
	}
	if len(d.CoherentOrgans) > 0 {
		fmt.Fprintf(&b, "\nCoherent organ systems: %s", strings.Join(d.CoherentOrgans, ", "))
	}
	if len(d.GovernanceFlags) > 0 {
		fmt.Fprintf(&b, "\nGovernance flags: %s", strings.Join(d.GovernanceFlags, "; "))
	}
	return b.String()
}
