// Package normalization decides, per organ and dose group, whether an
// organ-weight change is confounded by systemic body-weight loss and applies
// the resulting tier to the magnitude floor check.
package normalization

import (
	"sort"

	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/stats"
)

// Policy holds the numeric thresholds of the engine. The zero value is not
// usable; build one with NewPolicy or DefaultPolicy.
type Policy struct {
	cfg domain.AnalysisConfig
}

// NewPolicy fills unset fields of cfg with the built-in defaults.
func NewPolicy(cfg domain.AnalysisConfig) Policy {
	def := domain.DefaultAnalysisConfig()
	if len(cfg.TierThresholds) != 3 || !ascending(cfg.TierThresholds) {
		cfg.TierThresholds = def.TierThresholds
	}
	if cfg.OrganWeightMinG <= 0 {
		cfg.OrganWeightMinG = def.OrganWeightMinG
	}
	if cfg.OrganWeightMinFC <= 0 {
		cfg.OrganWeightMinFC = def.OrganWeightMinFC
	}
	if cfg.LabMinG <= 0 {
		cfg.LabMinG = def.LabMinG
	}
	if cfg.LabMinFC <= 0 {
		cfg.LabMinFC = def.LabMinFC
	}
	if cfg.BodyWeightMinG <= 0 {
		cfg.BodyWeightMinG = def.BodyWeightMinG
	}
	if cfg.BrainUnaffectedG <= 0 {
		cfg.BrainUnaffectedG = def.BrainUnaffectedG
	}
	if cfg.SecondaryBWMinTier < 2 || cfg.SecondaryBWMinTier > 4 {
		cfg.SecondaryBWMinTier = def.SecondaryBWMinTier
	}
	thresholds := make([]float64, len(cfg.TierThresholds))
	copy(thresholds, cfg.TierThresholds)
	cfg.TierThresholds = thresholds
	return Policy{cfg: cfg}
}

// DefaultPolicy returns the policy with built-in thresholds.
func DefaultPolicy() Policy {
	return NewPolicy(domain.DefaultAnalysisConfig())
}

func ascending(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if v[i] <= v[i-1] {
			return false
		}
	}
	return len(v) > 0 && v[0] > 0
}

// Config returns a copy of the effective thresholds.
func (p Policy) Config() domain.AnalysisConfig {
	cfg := p.cfg
	cfg.TierThresholds = append([]float64(nil), p.cfg.TierThresholds...)
	return cfg
}

// AssignTier maps |body-weight g| to a confounding tier in 1..4. The
// mapping is monotonic: a larger magnitude never yields a lower tier.
func (p Policy) AssignTier(bodyWeightG float64) int {
	abs := stats.Abs(bodyWeightG)
	tier := 1
	for _, cut := range p.cfg.TierThresholds {
		if abs >= cut {
			tier++
		}
	}
	return tier
}

// AssignTier uses the default thresholds.
func AssignTier(bodyWeightG float64) int {
	return DefaultPolicy().AssignTier(bodyWeightG)
}

// BodyWeightPeak is the peak body-weight divergence of one dose level.
type BodyWeightPeak struct {
	DoseLevel int
	G         float64
	Day       int
	Sex       domain.Sex
}

// GroupEffect returns the Hedges' g of a group statistic. A pre-computed
// value wins, then per-animal values, then means and SDs.
func GroupEffect(s domain.GroupStat) (float64, bool) {
	if s.EffectSize != nil {
		return *s.EffectSize, true
	}
	if len(s.Values) > 0 && len(s.ControlValues) > 0 {
		return stats.HedgesGSamples(s.Values, s.ControlValues)
	}
	if s.Mean == nil || s.SD == nil || s.ControlMean == nil || s.ControlSD == nil {
		return 0, false
	}
	return stats.HedgesG(*s.Mean, *s.SD, s.N, *s.ControlMean, *s.ControlSD, s.ControlN)
}

// PeakBodyWeightEffect picks, per treated dose level, the body-weight row
// with the largest |g| after dropping the first (baseline) study day. Ties
// go to the later day, then to males. Output is ordered by dose level.
func PeakBodyWeightEffect(bodyWeights []domain.BodyWeightStat) []BodyWeightPeak {
	baseline, distinctDays := firstDay(bodyWeights)

	best := make(map[int]BodyWeightPeak)
	for _, bw := range bodyWeights {
		if bw.DoseLevel <= 0 {
			continue
		}
		if distinctDays > 1 && bw.Day == baseline {
			continue
		}
		g, ok := GroupEffect(bw.GroupStat)
		if !ok {
			continue
		}
		cand := BodyWeightPeak{DoseLevel: bw.DoseLevel, G: g, Day: bw.Day, Sex: bw.Sex}
		cur, seen := best[bw.DoseLevel]
		if !seen || beats(cand, cur) {
			best[bw.DoseLevel] = cand
		}
	}

	peaks := make([]BodyWeightPeak, 0, len(best))
	for _, p := range best {
		peaks = append(peaks, p)
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].DoseLevel < peaks[j].DoseLevel })
	return peaks
}

func beats(a, b BodyWeightPeak) bool {
	aa, ab := stats.Abs(a.G), stats.Abs(b.G)
	if aa != ab {
		return aa > ab
	}
	if a.Day != b.Day {
		return a.Day > b.Day
	}
	return a.Sex == domain.SexMale && b.Sex != domain.SexMale
}

func firstDay(bodyWeights []domain.BodyWeightStat) (int, int) {
	days := make(map[int]bool)
	first := 0
	for i, bw := range bodyWeights {
		if i == 0 || bw.Day < first {
			first = bw.Day
		}
		days[bw.Day] = true
	}
	return first, len(days)
}
