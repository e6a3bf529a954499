package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/interpret"
	"github.com/tox-signal-mcp-server/internal/labrules"
	"github.com/tox-signal-mcp-server/internal/normalization"
	"github.com/tox-signal-mcp-server/internal/summary"
	"github.com/tox-signal-mcp-server/internal/syndrome"
)

// Analyzer runs the interpretation pipeline for one study. It holds no
// per-study state and is safe for concurrent use.
type Analyzer struct {
	logger      *logrus.Logger
	policy      normalization.Policy
	detector    *syndrome.Detector
	interpreter *interpret.Interpreter
	now         func() time.Time
}

// NewAnalyzer creates an analyzer with the given numeric policy.
func NewAnalyzer(logger *logrus.Logger, cfg domain.AnalysisConfig) *Analyzer {
	policy := normalization.NewPolicy(cfg)
	return &Analyzer{
		logger:      logger,
		policy:      policy,
		detector:    syndrome.NewDetector(policy),
		interpreter: interpret.NewInterpreter(policy),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the normalization policy in effect.
func (a *Analyzer) Policy() normalization.Policy {
	return a.policy
}

// Analyze derives every interpretive signal of the study. Stages run in
// dependency order and never modify the input or earlier outputs.
func (a *Analyzer) Analyze(ctx context.Context, input *domain.StudyInput) (*domain.StudyAnalysis, error) {
	if input == nil {
		return nil, fmt.Errorf("analyze: %w", domain.NewValidationError("input", "study input is required", nil))
	}
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("analyze study %q: %w", input.StudyID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	startTime := time.Now()

	digest, err := InputDigest(input)
	if err != nil {
		return nil, fmt.Errorf("analyze study %q: %w", input.StudyID, err)
	}

	endpoints := summary.BuildEndpointSummaries(input.Findings)
	coherence := summary.DeriveOrganCoherence(endpoints)
	contexts, decisions := a.policy.BuildContexts(normalization.ContextInput{
		BodyWeights:    input.BodyWeights,
		OrganWeights:   input.OrganWeights,
		Decompositions: input.Decompositions,
		Overrides:      input.Overrides,
	})
	syndromes := a.detector.Detect(endpoints, contexts)
	ruleCtx := labrules.BuildRuleContext(endpoints, coherence, syndromes, input.Metadata)

	result := &domain.StudyAnalysis{
		StudyID:                input.StudyID,
		Endpoints:              endpoints,
		OrganCoherence:         coherence,
		NormalizationContexts:  contexts,
		NormalizationDecisions: decisions,
		LabMatches:             labrules.Evaluate(ruleCtx),
		GovernanceMatches:      labrules.EvaluateGovernance(ruleCtx),
		Syndromes:              syndromes,
		TermReports:            a.detector.BuildTermReports(syndromes, endpoints, contexts),
		Interpretations: a.interpreter.InterpretAll(interpret.Context{
			Summaries: endpoints,
			Contexts:  contexts,
			Syndromes: syndromes,
			Recovery:  input.Recovery,
			Mortality: input.Mortality,
			Tumors:    input.Tumors,
		}),
		FloorChecks:   a.floorChecks(endpoints, contexts),
		SecondaryToBW: a.secondaryVerdicts(contexts, decisions, syndromes),
		InputDigest:   digest,
		AnalyzedAt:    a.now(),
	}

	a.logger.WithFields(logrus.Fields{
		"study_id":        input.StudyID,
		"endpoints":       len(result.Endpoints),
		"syndromes":       len(result.Syndromes),
		"lab_matches":     len(result.LabMatches),
		"contexts":        len(result.NormalizationContexts),
		"processing_time": time.Since(startTime),
	}).Info("Study analysis completed")

	return result, nil
}

// CheckMagnitudeFloor applies the configured floor to a single endpoint.
func (a *Analyzer) CheckMagnitudeFloor(ep domain.EndpointSummary, contexts []domain.NormalizationContext) domain.FloorCheck {
	return a.policy.CheckMagnitudeFloor(ep, contexts)
}

// floorChecks records the floor outcome of every continuous endpoint.
func (a *Analyzer) floorChecks(endpoints []domain.EndpointSummary, contexts []domain.NormalizationContext) map[string]domain.FloorCheck {
	checks := make(map[string]domain.FloorCheck)
	for _, ep := range endpoints {
		switch ep.Domain {
		case domain.DomainOM, domain.DomainLB, domain.DomainBW:
			checks[ep.EndpointLabel] = a.policy.CheckMagnitudeFloor(ep, contexts)
		}
	}
	return checks
}

// secondaryVerdicts assesses each organ at the tier of its driving context.
func (a *Analyzer) secondaryVerdicts(contexts []domain.NormalizationContext, decisions map[string]domain.NormalizationDecision,
	syndromes []domain.CrossDomainSyndrome) map[string]domain.SecondaryToBW {
	stress := false
	for _, s := range syndromes {
		if s.ID == syndrome.StressSyndromeID {
			stress = true
		}
	}

	verdicts := make(map[string]domain.SecondaryToBW)
	for organ, decision := range decisions {
		ctx, ok := normalization.MatchContext(contexts, organ, decision.DrivingDoseLevel)
		if !ok {
			continue
		}
		if v := a.policy.AssessSecondaryToBodyWeight(organ, ctx.Tier, ctx.BodyWeightG, stress); v != nil {
			verdicts[organ] = *v
		}
	}
	return verdicts
}

// InputDigest is the hex SHA-256 of the canonical JSON encoding of input.
func InputDigest(input *domain.StudyInput) (string, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to encode study input: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
