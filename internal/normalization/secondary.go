package normalization

import (
	"fmt"
	"strings"

	"github.com/tox-signal-mcp-server/internal/analyte"
	"github.com/tox-signal-mcp-server/internal/domain"
)

// OrganClass groups organs by how their weight responds to body-weight loss.
type OrganClass int

const (
	ClassOther OrganClass = iota
	ClassGonad
	ClassAndrogenDependent
	ClassFemaleReproductive
)

var organClasses = []struct {
	keyword string
	class   OrganClass
}{
	{"TESTIS", ClassGonad},
	{"TESTES", ClassGonad},
	{"PROSTATE", ClassAndrogenDependent},
	{"SEMINAL VESICLE", ClassAndrogenDependent},
	{"EPIDIDYM", ClassAndrogenDependent},
	{"OVARY", ClassFemaleReproductive},
	{"OVARIES", ClassFemaleReproductive},
	{"UTERUS", ClassFemaleReproductive},
	{"VAGINA", ClassFemaleReproductive},
	{"CERVIX", ClassFemaleReproductive},
}

// ClassifyOrgan returns the body-weight response class of an organ.
func ClassifyOrgan(organ string) OrganClass {
	key := analyte.OrganKey(organ)
	for _, oc := range organClasses {
		if strings.Contains(key, oc.keyword) {
			return oc.class
		}
	}
	return ClassOther
}

// AssessSecondaryToBodyWeight returns the verdict for one organ, or nil when
// the organ is not reproductive and its tier is below the secondary
// threshold. stressSyndrome reports a co-detected stress syndrome.
func (p Policy) AssessSecondaryToBodyWeight(organ string, tier int, bodyWeightG float64, stressSyndrome bool) *domain.SecondaryToBW {
	name := analyte.OrganKey(organ)
	switch ClassifyOrgan(organ) {
	case ClassGonad:
		return &domain.SecondaryToBW{
			Organ:       name,
			IsSecondary: false,
			Confidence:  domain.ConfidenceHigh,
			Rationale: fmt.Sprintf("%s weight shows body-weight sparing and is conserved during body-weight loss (body-weight g=%.2f, tier %d); the change is not attributed to body weight",
				name, bodyWeightG, tier),
		}
	case ClassAndrogenDependent:
		verdict := &domain.SecondaryToBW{
			Organ:       name,
			IsSecondary: false,
			Confidence:  domain.ConfidenceLow,
			Rationale: fmt.Sprintf("%s is androgen-dependent; weight changes are not attributed to body-weight loss (tier %d)",
				name, tier),
		}
		if stressSyndrome {
			verdict.Confidence = domain.ConfidenceMedium
			verdict.Rationale += "; a co-detected stress syndrome can suppress androgen-dependent organ weight"
		}
		return verdict
	case ClassFemaleReproductive:
		return &domain.SecondaryToBW{
			Organ:       name,
			IsSecondary: false,
			Confidence:  domain.ConfidenceLow,
			Rationale: fmt.Sprintf("%s weight is confounded by estrous-cycle variability; body-weight effect (g=%.2f, tier %d) cannot be separated",
				name, bodyWeightG, tier),
		}
	}
	if tier < p.cfg.SecondaryBWMinTier {
		return nil
	}
	return &domain.SecondaryToBW{
		Organ:       name,
		IsSecondary: true,
		Confidence:  domain.ConfidenceLow,
		Rationale: fmt.Sprintf("body-weight g=%.2f (tier %d) suggests the %s weight change is secondary to body-weight loss; heuristic, not statistically validated",
			bodyWeightG, tier, name),
	}
}

// AssessSecondaryToBodyWeight uses the default thresholds.
func AssessSecondaryToBodyWeight(organ string, tier int, bodyWeightG float64, stressSyndrome bool) *domain.SecondaryToBW {
	return DefaultPolicy().AssessSecondaryToBodyWeight(organ, tier, bodyWeightG, stressSyndrome)
}
