// Package summary aggregates raw per-dose-group finding rows into endpoint
// summaries and derives organ coherence from them.
package summary

import (
	"sort"
	"strings"

	"github.com/tox-signal-mcp-server/internal/analyte"
	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/stats"
)

// EndpointLabel returns the label a row is grouped under.
func EndpointLabel(row domain.RawFindingRow) string {
	if label := strings.TrimSpace(row.EndpointLabel); label != "" {
		return label
	}
	specimen := strings.TrimSpace(row.Specimen)
	switch row.Domain {
	case domain.DomainMI, domain.DomainMA, domain.DomainTF:
		finding := strings.TrimSpace(row.Finding)
		switch {
		case specimen != "" && finding != "":
			return specimen + " - " + finding
		case specimen != "":
			return specimen
		case finding != "":
			return finding
		}
	case domain.DomainOM:
		if specimen != "" {
			return specimen + " weight"
		}
	}
	if name := strings.TrimSpace(row.TestName); name != "" {
		return name
	}
	if code := strings.TrimSpace(row.TestCode); code != "" {
		return code
	}
	if finding := strings.TrimSpace(row.Finding); finding != "" {
		return finding
	}
	return row.Domain.String()
}

// OrganSystem returns the organ system of a row.
func OrganSystem(row domain.RawFindingRow) string {
	if sys := strings.TrimSpace(row.OrganSystem); sys != "" {
		return strings.ToLower(sys)
	}
	if sys, ok := analyte.SystemForSpecimen(row.Specimen); ok {
		return sys
	}
	if canonical, ok := analyte.Resolve(row.TestCode, EndpointLabel(row)); ok {
		if sys, ok := analyte.SystemForAnalyte(canonical); ok {
			return sys
		}
	}
	return analyte.SystemGeneral
}

// RowDirection infers a row's direction from the sign of its effect size,
// falling back to the stated direction when the effect is absent or zero.
func RowDirection(row domain.RawFindingRow) domain.Direction {
	if row.EffectSize != nil {
		switch {
		case *row.EffectSize > 0:
			return domain.DirectionUp
		case *row.EffectSize < 0:
			return domain.DirectionDown
		}
	}
	if row.Direction == domain.DirectionUp || row.Direction == domain.DirectionDown {
		return row.Direction
	}
	return domain.DirectionNone
}

type group struct {
	label string
	rows  []domain.RawFindingRow
}

// BuildEndpointSummaries groups rows by endpoint label and returns one
// summary per label in first-seen order. Missing statistics yield nil
// fields.
func BuildEndpointSummaries(rows []domain.RawFindingRow) []domain.EndpointSummary {
	index := make(map[string]int)
	var groups []*group
	for _, row := range rows {
		label := EndpointLabel(row)
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, &group{label: label})
		}
		groups[i].rows = append(groups[i].rows, row)
	}

	summaries := make([]domain.EndpointSummary, 0, len(groups))
	for _, g := range groups {
		summaries = append(summaries, summarize(g))
	}
	return summaries
}

func summarize(g *group) domain.EndpointSummary {
	first := g.rows[0]
	s := domain.EndpointSummary{
		EndpointLabel: g.label,
		OrganSystem:   OrganSystem(first),
		Domain:        first.Domain,
		TestCode:      first.TestCode,
		Specimen:      first.Specimen,
		Finding:       first.Finding,
		WorstSeverity: domain.SeverityNormal,
	}

	bestAbsG := -1.0
	for _, row := range g.rows {
		if s.OrganSystem == analyte.SystemGeneral && strings.TrimSpace(row.OrganSystem) != "" {
			s.OrganSystem = strings.ToLower(strings.TrimSpace(row.OrganSystem))
		}
		if row.Severity.Rank() > s.WorstSeverity.Rank() {
			s.WorstSeverity = row.Severity
		}
		if row.TreatmentRelated {
			s.TreatmentRelated = true
		}
		if row.PValue != nil && (s.MinPValue == nil || *row.PValue < *s.MinPValue) {
			p := stats.ClampP(*row.PValue)
			s.MinPValue = &p
		}
		if row.EffectSize != nil {
			if abs := stats.Abs(*row.EffectSize); abs > bestAbsG {
				bestAbsG = abs
				es := *row.EffectSize
				s.MaxEffectSize = &es
				s.PeakDoseLevel = row.DoseLevel
			}
		}
		if row.FoldChange != nil {
			if fc, ok := stats.FoldChangeMagnitude(*row.FoldChange); ok && (s.MaxFoldChange == nil || fc > *s.MaxFoldChange) {
				s.MaxFoldChange = &fc
			}
		}
	}
	if s.MaxEffectSize == nil {
		s.PeakDoseLevel = peakByIncidence(g.rows)
	}

	s.Pattern = dominantPattern(g.rows)
	s.Direction = consensusDirection(g.rows)
	s.Sexes = affectedSexes(g.rows)
	applyNoael(&s, g.rows)
	return s
}

func peakByIncidence(rows []domain.RawFindingRow) int {
	peak := 0
	best := -1.0
	for _, row := range rows {
		if row.Incidence != nil && *row.Incidence > best {
			best = *row.Incidence
			peak = row.DoseLevel
		}
	}
	if best >= 0 {
		return peak
	}
	for _, row := range rows {
		if row.Severity.IsNotable() && row.DoseLevel > peak {
			peak = row.DoseLevel
		}
	}
	return peak
}

// dominantPattern votes among dose-dependent patterns; ties go to the
// pattern seen first.
func dominantPattern(rows []domain.RawFindingRow) domain.Pattern {
	var order []domain.Pattern
	counts := make(map[domain.Pattern]int)
	for _, row := range rows {
		if !row.Pattern.IsDoseDependent() {
			continue
		}
		if counts[row.Pattern] == 0 {
			order = append(order, row.Pattern)
		}
		counts[row.Pattern]++
	}
	if len(order) > 0 {
		best := order[0]
		for _, p := range order[1:] {
			if counts[p] > counts[best] {
				best = p
			}
		}
		return best
	}
	for _, row := range rows {
		if row.Pattern.IsValid() {
			return row.Pattern
		}
	}
	return domain.PatternInsufficient
}

// consensusDirection votes with notable or treatment-related rows, or with
// every row when none qualifies. Mixed requires both up and down.
func consensusDirection(rows []domain.RawFindingRow) *domain.Direction {
	var voters []domain.RawFindingRow
	for _, row := range rows {
		if row.Severity.IsNotable() || row.TreatmentRelated {
			voters = append(voters, row)
		}
	}
	if len(voters) == 0 {
		voters = rows
	}
	up, down := false, false
	for _, row := range voters {
		switch RowDirection(row) {
		case domain.DirectionUp:
			up = true
		case domain.DirectionDown:
			down = true
		}
	}
	var d domain.Direction
	switch {
	case up && down:
		d = domain.DirectionMixed
	case up:
		d = domain.DirectionUp
	case down:
		d = domain.DirectionDown
	default:
		return nil
	}
	return &d
}

func affectedSexes(rows []domain.RawFindingRow) []domain.Sex {
	seen := make(map[domain.Sex]bool)
	var sexes []domain.Sex
	for _, row := range rows {
		if row.Sex.IsValid() && !seen[row.Sex] {
			seen[row.Sex] = true
			sexes = append(sexes, row.Sex)
		}
	}
	sort.Slice(sexes, func(i, j int) bool { return sexes[i] < sexes[j] })
	return sexes
}

// applyNoael sets LOAEL as the lowest treated level with an adverse row and
// NOAEL as the highest treated level below it.
func applyNoael(s *domain.EndpointSummary, rows []domain.RawFindingRow) {
	levelSet := make(map[int]bool)
	doseValues := make(map[int]float64)
	loael := -1
	for _, row := range rows {
		if row.DoseLevel <= 0 {
			continue
		}
		levelSet[row.DoseLevel] = true
		if row.DoseValue != nil {
			if _, ok := doseValues[row.DoseLevel]; !ok {
				doseValues[row.DoseLevel] = *row.DoseValue
			}
		}
		if row.Severity == domain.SeverityAdverse && (loael < 0 || row.DoseLevel < loael) {
			loael = row.DoseLevel
		}
	}
	if len(levelSet) == 0 {
		return
	}
	levels := make([]int, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Ints(levels)

	setNoael := func(level int, tier domain.NoaelTier) {
		lv := level
		s.NoaelDoseLevel = &lv
		if v, ok := doseValues[level]; ok {
			s.NoaelDoseValue = &v
		}
		t := tier
		s.NoaelTier = &t
	}

	if loael < 0 {
		setNoael(levels[len(levels)-1], domain.NoaelAboveHighestDose)
		return
	}
	lo := loael
	s.LoaelDoseLevel = &lo
	noael := 0
	for _, l := range levels {
		if l < loael {
			noael = l
		}
	}
	if noael == 0 {
		t := domain.NoaelBelowLowestDose
		s.NoaelTier = &t
		return
	}
	setNoael(noael, domain.NoaelAtTestedDose)
}
