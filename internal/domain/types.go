// Package domain contains the value types shared by the toxicology signal
// interpretation pipeline: raw per-dose-group finding rows, the derived
// endpoint summaries, and every interpretive output built on top of them.
//
// All types here are plain, serializable values. Nothing in this package
// holds behavior beyond validation and ordering helpers.
package domain

import (
	"errors"
	"strings"
)

// Domain is the SEND data domain a finding originates from.
type Domain string

const (
	DomainLB Domain = "LB" // laboratory (clinical chemistry, hematology, urinalysis)
	DomainBW Domain = "BW" // body weight
	DomainOM Domain = "OM" // organ weight
	DomainMI Domain = "MI" // microscopic histopathology
	DomainMA Domain = "MA" // macroscopic pathology
	DomainCL Domain = "CL" // clinical observations
	DomainFW Domain = "FW" // food and water consumption
	DomainTF Domain = "TF" // tumor findings
	DomainDD Domain = "DD" // death diagnosis
)

// Direction is the direction of change of a treated group versus control.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionNone  Direction = "none"
	DirectionMixed Direction = "mixed"
	// DirectionAny is only used by catalog terms that accept either direction.
	DirectionAny Direction = "any"
)

// Severity is the per-row classification supplied by the analysis collaborator.
type Severity string

const (
	SeverityAdverse Severity = "adverse"
	SeverityWarning Severity = "warning"
	SeverityNormal  Severity = "normal"
)

// Pattern is the dose-response pattern of an endpoint across dose groups.
type Pattern string

const (
	PatternMonotonicIncrease Pattern = "monotonic_increase"
	PatternMonotonicDecrease Pattern = "monotonic_decrease"
	PatternThresholdIncrease Pattern = "threshold_increase"
	PatternThresholdDecrease Pattern = "threshold_decrease"
	PatternLinear            Pattern = "linear"
	PatternNonMonotonic      Pattern = "non_monotonic"
	PatternFlat              Pattern = "flat"
	PatternInsufficient      Pattern = "insufficient_data"
)

// Sex of the animals in a dose group.
type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidDomain    = errors.New("invalid data domain")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidSeverity  = errors.New("invalid severity")
	ErrInvalidMode      = errors.New("invalid normalization mode")
	ErrMissingStudyID   = errors.New("study identifier is required")
)

// IsValid reports whether d is a known SEND domain.
func (d Domain) IsValid() bool {
	switch d {
	case DomainLB, DomainBW, DomainOM, DomainMI, DomainMA, DomainCL, DomainFW, DomainTF, DomainDD:
		return true
	default:
		return false
	}
}

func (d Domain) String() string {
	return string(d)
}

// ParseDomain parses a domain code case-insensitively.
func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToUpper(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", ErrInvalidDomain
	}
	return d, nil
}

// IsIncidence reports whether the domain carries incidence rather than
// continuous group statistics.
func (d Domain) IsIncidence() bool {
	switch d {
	case DomainMI, DomainMA, DomainCL, DomainTF, DomainDD:
		return true
	default:
		return false
	}
}

// IsValid accepts the three row-level directions.
func (d Direction) IsValid() bool {
	switch d {
	case DirectionUp, DirectionDown, DirectionNone:
		return true
	default:
		return false
	}
}

func (d Direction) String() string {
	return string(d)
}

// Opposite returns the reverse direction for up and down, and d otherwise.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	default:
		return d
	}
}

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityAdverse, SeverityWarning, SeverityNormal:
		return true
	default:
		return false
	}
}

// Rank orders severities: adverse=3, warning=2, normal=1, unknown=0.
func (s Severity) Rank() int {
	switch s {
	case SeverityAdverse:
		return 3
	case SeverityWarning:
		return 2
	case SeverityNormal:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string {
	return string(s)
}

// IsNotable is true for adverse and warning.
func (s Severity) IsNotable() bool {
	return s == SeverityAdverse || s == SeverityWarning
}

// IsValid reports whether p is a known pattern.
func (p Pattern) IsValid() bool {
	switch p {
	case PatternMonotonicIncrease, PatternMonotonicDecrease, PatternThresholdIncrease,
		PatternThresholdDecrease, PatternLinear, PatternNonMonotonic, PatternFlat, PatternInsufficient:
		return true
	default:
		return false
	}
}

// IsDoseDependent is false for flat and insufficient-data patterns.
func (p Pattern) IsDoseDependent() bool {
	return p.IsValid() && p != PatternFlat && p != PatternInsufficient
}

// IsMonotonic covers both monotonic patterns.
func (p Pattern) IsMonotonic() bool {
	return p == PatternMonotonicIncrease || p == PatternMonotonicDecrease
}

// IsThreshold covers both threshold patterns.
func (p Pattern) IsThreshold() bool {
	return p == PatternThresholdIncrease || p == PatternThresholdDecrease
}

// IsStrongDoseResponse covers monotonic, threshold and linear patterns.
func (p Pattern) IsStrongDoseResponse() bool {
	return p.IsMonotonic() || p.IsThreshold() || p == PatternLinear
}

func (p Pattern) String() string {
	return string(p)
}

// IsValid reports whether s is M or F.
func (s Sex) IsValid() bool {
	return s == SexMale || s == SexFemale
}

func (s Sex) String() string {
	return string(s)
}
