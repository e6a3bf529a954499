package domain

import "fmt"

// RawFindingRow is one (endpoint, dose group, sex) statistical observation as
// delivered by the external analysis collaborator. Rows are never mutated.
type RawFindingRow struct {
	StudyID          string    `json:"study_id" yaml:"study_id"`
	Domain           Domain    `json:"domain" yaml:"domain"`
	TestCode         string    `json:"test_code,omitempty" yaml:"test_code,omitempty"`
	TestName         string    `json:"test_name,omitempty" yaml:"test_name,omitempty"`
	Specimen         string    `json:"specimen,omitempty" yaml:"specimen,omitempty"`
	Finding          string    `json:"finding,omitempty" yaml:"finding,omitempty"`
	EndpointLabel    string    `json:"endpoint_label,omitempty" yaml:"endpoint_label,omitempty"`
	OrganSystem      string    `json:"organ_system,omitempty" yaml:"organ_system,omitempty"`
	Sex              Sex       `json:"sex" yaml:"sex"`
	DoseLevel        int       `json:"dose_level" yaml:"dose_level"`
	DoseValue        *float64  `json:"dose_value,omitempty" yaml:"dose_value,omitempty"`
	DoseUnit         string    `json:"dose_unit,omitempty" yaml:"dose_unit,omitempty"`
	Day              int       `json:"day,omitempty" yaml:"day,omitempty"`
	Direction        Direction `json:"direction" yaml:"direction"`
	PValue           *float64  `json:"p_value,omitempty" yaml:"p_value,omitempty"`
	TrendPValue      *float64  `json:"trend_p_value,omitempty" yaml:"trend_p_value,omitempty"`
	EffectSize       *float64  `json:"effect_size,omitempty" yaml:"effect_size,omitempty"`
	FoldChange       *float64  `json:"fold_change,omitempty" yaml:"fold_change,omitempty"`
	Pattern          Pattern   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Severity         Severity  `json:"severity" yaml:"severity"`
	TreatmentRelated bool      `json:"treatment_related" yaml:"treatment_related"`
	Incidence        *float64  `json:"incidence,omitempty" yaml:"incidence,omitempty"`
}

// NoaelTier places the no-observed-adverse-effect level relative to the
// tested dose range.
type NoaelTier string

const (
	NoaelBelowLowestDose  NoaelTier = "below_lowest_dose"
	NoaelAtTestedDose     NoaelTier = "at_tested_dose"
	NoaelAboveHighestDose NoaelTier = "above_highest_dose"
)

// EndpointSummary aggregates every row of one biological endpoint.
type EndpointSummary struct {
	EndpointLabel    string     `json:"endpoint_label"`
	OrganSystem      string     `json:"organ_system"`
	Domain           Domain     `json:"domain"`
	TestCode         string     `json:"test_code,omitempty"`
	Specimen         string     `json:"specimen,omitempty"`
	Finding          string     `json:"finding,omitempty"`
	WorstSeverity    Severity   `json:"worst_severity"`
	TreatmentRelated bool       `json:"treatment_related"`
	Pattern          Pattern    `json:"pattern"`
	MinPValue        *float64   `json:"min_p_value"`
	MaxEffectSize    *float64   `json:"max_effect_size"`
	Direction        *Direction `json:"direction"`
	Sexes            []Sex      `json:"sexes"`
	MaxFoldChange    *float64   `json:"max_fold_change"`
	PeakDoseLevel    int        `json:"peak_dose_level"`
	LoaelDoseLevel   *int       `json:"loael_dose_level,omitempty"`
	NoaelDoseLevel   *int       `json:"noael_dose_level,omitempty"`
	NoaelDoseValue   *float64   `json:"noael_dose_value,omitempty"`
	NoaelTier        *NoaelTier `json:"noael_tier,omitempty"`
}

// IsSignificant reports whether the endpoint carries a notable signal.
func (e EndpointSummary) IsSignificant() bool {
	return e.WorstSeverity.IsNotable() || e.TreatmentRelated
}

// DirectionValue returns the consensus direction or DirectionNone.
func (e EndpointSummary) DirectionValue() Direction {
	if e.Direction == nil {
		return DirectionNone
	}
	return *e.Direction
}

// AbsEffect returns |MaxEffectSize| or 0 when unknown.
func (e EndpointSummary) AbsEffect() float64 {
	if e.MaxEffectSize == nil {
		return 0
	}
	if *e.MaxEffectSize < 0 {
		return -*e.MaxEffectSize
	}
	return *e.MaxEffectSize
}

// OrganCoherence counts the distinct domains implicating one organ system.
type OrganCoherence struct {
	OrganSystem    string   `json:"organ_system"`
	DomainCount    int      `json:"domain_count"`
	Domains        []Domain `json:"domains"`
	EndpointLabels []string `json:"endpoint_labels"`
}

// Coherent is true once three or more domains converge on the organ.
func (o OrganCoherence) Coherent() bool {
	return o.DomainCount >= 3
}

// StudyMetadata describes the study design.
type StudyMetadata struct {
	Species        string `json:"species" yaml:"species"`
	Strain         string `json:"strain,omitempty" yaml:"strain,omitempty"`
	StudyType      string `json:"study_type,omitempty" yaml:"study_type,omitempty"`
	HasEstrousData bool   `json:"has_estrous_data" yaml:"has_estrous_data"`
}

// GroupStat holds the summary statistics of one treated dose group against
// concurrent control. EffectSize is Hedges' g when pre-computed.
type GroupStat struct {
	DoseLevel   int      `json:"dose_level" yaml:"dose_level"`
	Sex         Sex      `json:"sex" yaml:"sex"`
	Day         int      `json:"day,omitempty" yaml:"day,omitempty"`
	EffectSize  *float64 `json:"effect_size,omitempty" yaml:"effect_size,omitempty"`
	Mean        *float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	SD          *float64 `json:"sd,omitempty" yaml:"sd,omitempty"`
	N           int      `json:"n,omitempty" yaml:"n,omitempty"`
	ControlMean *float64 `json:"control_mean,omitempty" yaml:"control_mean,omitempty"`
	ControlSD   *float64 `json:"control_sd,omitempty" yaml:"control_sd,omitempty"`
	ControlN    int      `json:"control_n,omitempty" yaml:"control_n,omitempty"`

	// Per-animal values, used when no effect size is supplied.
	Values        []float64 `json:"values,omitempty" yaml:"values,omitempty"`
	ControlValues []float64 `json:"control_values,omitempty" yaml:"control_values,omitempty"`
}

// BodyWeightStat is a body-weight group statistic on one study day.
type BodyWeightStat struct {
	GroupStat `yaml:",inline"`
}

// OrganWeightStat is an organ-weight group statistic for one specimen.
type OrganWeightStat struct {
	GroupStat  `yaml:",inline"`
	Specimen   string   `json:"specimen" yaml:"specimen"`
	FoldChange *float64 `json:"fold_change,omitempty" yaml:"fold_change,omitempty"`
}

// RecoveryStatus of an endpoint after the treatment-free period.
type RecoveryStatus string

const (
	RecoveryRecovered RecoveryStatus = "recovered"
	RecoveryPartial   RecoveryStatus = "partial"
	RecoveryNone      RecoveryStatus = "not_recovered"
)

// RecoveryObservation reports reversibility of an endpoint.
type RecoveryObservation struct {
	EndpointLabel string         `json:"endpoint_label" yaml:"endpoint_label"`
	Status        RecoveryStatus `json:"status" yaml:"status"`
}

// MortalityRecord is an unscheduled death in a dose group.
type MortalityRecord struct {
	DoseLevel        int    `json:"dose_level" yaml:"dose_level"`
	Sex              Sex    `json:"sex" yaml:"sex"`
	Cause            string `json:"cause,omitempty" yaml:"cause,omitempty"`
	OrganSystem      string `json:"organ_system,omitempty" yaml:"organ_system,omitempty"`
	TreatmentRelated bool   `json:"treatment_related" yaml:"treatment_related"`
}

// TumorFinding is a neoplastic finding reported by the pathology collaborator.
type TumorFinding struct {
	Specimen         string `json:"specimen" yaml:"specimen"`
	Finding          string `json:"finding" yaml:"finding"`
	OrganSystem      string `json:"organ_system,omitempty" yaml:"organ_system,omitempty"`
	DoseLevel        int    `json:"dose_level" yaml:"dose_level"`
	Malignant        bool   `json:"malignant" yaml:"malignant"`
	TreatmentRelated bool   `json:"treatment_related" yaml:"treatment_related"`
}

// Validate checks the shape of a raw row. The core never calls it; it is
// used at the transport boundary.
func (r RawFindingRow) Validate() error {
	if !r.Domain.IsValid() {
		return fmt.Errorf("finding row validation: %w", ErrInvalidDomain)
	}
	if r.Direction != "" && !r.Direction.IsValid() {
		return fmt.Errorf("finding row validation: %w", ErrInvalidDirection)
	}
	if r.Severity != "" && !r.Severity.IsValid() {
		return fmt.Errorf("finding row validation: %w", ErrInvalidSeverity)
	}
	return nil
}
