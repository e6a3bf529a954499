package domain

// LabSeverity grades the clinical significance of a lab rule match.
type LabSeverity string

const (
	LabS1 LabSeverity = "S1"
	LabS2 LabSeverity = "S2"
	LabS3 LabSeverity = "S3"
	LabS4 LabSeverity = "S4"
)

// Rank orders grades S1=1 .. S4=4.
func (s LabSeverity) Rank() int {
	switch s {
	case LabS1:
		return 1
	case LabS2:
		return 2
	case LabS3:
		return 3
	case LabS4:
		return 4
	default:
		return 0
	}
}

// IsValid reports whether s is S1..S4.
func (s LabSeverity) IsValid() bool {
	return s.Rank() > 0
}

// IsSevere covers S3 and S4.
func (s LabSeverity) IsSevere() bool {
	return s.Rank() >= 3
}

func (s LabSeverity) String() string {
	return string(s)
}

// RuleCategory groups lab rules.
type RuleCategory string

const (
	CategoryLiver      RuleCategory = "liver"
	CategoryGraded     RuleCategory = "graded"
	CategoryGovernance RuleCategory = "governance"
)

// CanonicalFoldChange pairs a canonical analyte with its observed fold change.
type CanonicalFoldChange struct {
	Canonical  string  `json:"canonical"`
	FoldChange float64 `json:"fold_change"`
}

// ConfidenceModifier is one itemized adjustment to a confidence score.
type ConfidenceModifier struct {
	Label  string `json:"label"`
	Points int    `json:"points"`
}

// LabClinicalMatch is a lab rule whose predicate held for the study.
type LabClinicalMatch struct {
	RuleID           string                `json:"rule_id"`
	Name             string                `json:"name"`
	Category         RuleCategory          `json:"category"`
	Severity         LabSeverity           `json:"severity"`
	OrganSystem      string                `json:"organ_system,omitempty"`
	MatchedEndpoints []string              `json:"matched_endpoints"`
	FoldChanges      []CanonicalFoldChange `json:"fold_changes"`
	Confidence       int                   `json:"confidence"`
	Modifiers        []ConfidenceModifier  `json:"modifiers"`
	Source           string                `json:"source,omitempty"`
}

// MaxFoldChange returns the largest fold change among the matched parameters.
func (m LabClinicalMatch) MaxFoldChange() float64 {
	max := 0.0
	for _, fc := range m.FoldChanges {
		if fc.FoldChange > max {
			max = fc.FoldChange
		}
	}
	return max
}

// SyndromeConfidence is the detector's confidence label.
type SyndromeConfidence string

const (
	SyndromeHigh     SyndromeConfidence = "HIGH"
	SyndromeModerate SyndromeConfidence = "MODERATE"
	SyndromeLow      SyndromeConfidence = "LOW"
)

// TermRole distinguishes required from supporting syndrome terms.
type TermRole string

const (
	RoleRequired   TermRole = "required"
	RoleSupporting TermRole = "supporting"
)

// SyndromeEndpoint is an endpoint that satisfied a syndrome term.
type SyndromeEndpoint struct {
	EndpointLabel string    `json:"endpoint_label"`
	Domain        Domain    `json:"domain"`
	Role          TermRole  `json:"role"`
	Direction     Direction `json:"direction"`
	Severity      Severity  `json:"severity"`
	TermID        string    `json:"term_id"`
}

// CrossDomainSyndrome is a detected named syndrome.
type CrossDomainSyndrome struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	MatchedEndpoints []SyndromeEndpoint `json:"matched_endpoints"`
	DomainsCovered   []Domain           `json:"domains_covered"`
	Confidence       SyndromeConfidence `json:"confidence"`
	SupportScore     float64            `json:"support_score"`
	Sexes            []Sex              `json:"sexes"`
}

// HasDomain reports whether any matched endpoint belongs to d.
func (s CrossDomainSyndrome) HasDomain(d Domain) bool {
	for _, dc := range s.DomainsCovered {
		if dc == d {
			return true
		}
	}
	return false
}

// TermMatchStatus is the outcome of matching one syndrome term.
type TermMatchStatus string

const (
	TermMatched        TermMatchStatus = "matched"
	TermOpposite       TermMatchStatus = "opposite"
	TermNotMeasured    TermMatchStatus = "not_measured"
	TermNotSignificant TermMatchStatus = "not_significant"
)

// TermReport is the per-term line of a SyndromeTermReport.
type TermReport struct {
	TermID          string          `json:"term_id"`
	Label           string          `json:"label"`
	Role            TermRole        `json:"role"`
	Status          TermMatchStatus `json:"status"`
	EndpointLabel   string          `json:"endpoint_label,omitempty"`
	FoundDirection  *Direction      `json:"found_direction,omitempty"`
	PValue          *float64        `json:"p_value,omitempty"`
	FloorAnnotation string          `json:"floor_annotation,omitempty"`
}

// SyndromeTermReport lists every term of one syndrome definition.
type SyndromeTermReport struct {
	SyndromeID string       `json:"syndrome_id"`
	Terms      []TermReport `json:"terms"`
}

// DoseResponseStrength of a syndrome's matched endpoints.
type DoseResponseStrength string

const (
	DoseResponseStrong DoseResponseStrength = "strong"
	DoseResponseWeak   DoseResponseStrength = "weak"
	DoseResponseAbsent DoseResponseStrength = "absent"
)

// Concordance across endpoints.
type Concordance string

const (
	Concordant Concordance = "concordant"
	Isolated   Concordance = "isolated"
)

// Significance bins the minimum p-value of matched endpoints.
type Significance string

const (
	HighlySignificant   Significance = "highly_significant"
	Significant         Significance = "significant"
	NotSignificant      Significance = "not_significant"
	SignificanceUnknown Significance = "unknown"
)

// TreatmentRelatedness is the combined verdict.
type TreatmentRelatedness string

const (
	TreatmentRelated         TreatmentRelatedness = "treatment_related"
	PossiblyTreatmentRelated TreatmentRelatedness = "possibly_treatment_related"
	NotTreatmentRelated      TreatmentRelatedness = "not_treatment_related"
)

// TreatmentRelatednessScore is derived purely from matched endpoint statistics.
type TreatmentRelatednessScore struct {
	DoseResponse               DoseResponseStrength `json:"dose_response"`
	CrossEndpoint              Concordance          `json:"cross_endpoint"`
	StatisticalSignificance    Significance         `json:"statistical_significance"`
	ClinicalObservationSupport bool                 `json:"clinical_observation_support"`
	Overall                    TreatmentRelatedness `json:"overall"`
	Points                     int                  `json:"points"`
}

// Certainty of the mechanistic interpretation.
type Certainty string

const (
	CertaintyHigh     Certainty = "high"
	CertaintyModerate Certainty = "moderate"
	CertaintyLow      Certainty = "low"
)

// Rank orders certainty levels.
func (c Certainty) Rank() int {
	switch c {
	case CertaintyHigh:
		return 3
	case CertaintyModerate:
		return 2
	case CertaintyLow:
		return 1
	default:
		return 0
	}
}

// Adversity is the overall severity of a syndrome.
type Adversity string

const (
	Adverse            Adversity = "adverse"
	PotentiallyAdverse Adversity = "potentially_adverse"
	NonAdverse         Adversity = "non_adverse"
)

// RecoveryAssessment summarises reversibility of the matched endpoints.
type RecoveryAssessment struct {
	Status    string   `json:"status"`
	Recovered []string `json:"recovered,omitempty"`
	Partial   []string `json:"partial,omitempty"`
	Persisted []string `json:"persisted,omitempty"`
}

// ClinicalObservationAssessment lists correlating clinical signs.
type ClinicalObservationAssessment struct {
	Supported bool     `json:"supported"`
	Signs     []string `json:"signs,omitempty"`
}

// MortalityContext counts treatment-related deaths relevant to the syndrome.
type MortalityContext struct {
	TreatmentRelatedDeaths int    `json:"treatment_related_deaths"`
	DoseLevels             []int  `json:"dose_levels,omitempty"`
	Note                   string `json:"note,omitempty"`
}

// SyndromeInterpretation is the full interpretive record of one syndrome.
type SyndromeInterpretation struct {
	SyndromeID           string                        `json:"syndrome_id"`
	TreatmentRelatedness TreatmentRelatednessScore     `json:"treatment_relatedness"`
	Certainty            Certainty                     `json:"certainty"`
	CertaintyRationale   []string                      `json:"certainty_rationale"`
	Recovery             RecoveryAssessment            `json:"recovery"`
	ClinicalObservations ClinicalObservationAssessment `json:"clinical_observations"`
	Mortality            MortalityContext              `json:"mortality"`
	FoodConsumption      string                        `json:"food_consumption,omitempty"`
	TumorContext         string                        `json:"tumor_context,omitempty"`
	OverallSeverity      Adversity                     `json:"overall_severity"`
	SecondaryToBW        *SecondaryToBW                `json:"secondary_to_bw,omitempty"`
}
