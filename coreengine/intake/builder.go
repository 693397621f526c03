package intake

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

// Default scenario inputs before any document is applied.
var (
	DefaultConstraints = scenario.Constraints{Budget: 50000, Timeline: 30, QualityMin: 80, RiskMax: 20}
	DefaultPriorities  = scenario.Priorities{Budget: 5, Timeline: 5, Quality: 8, Risk: 7}

	VendorEvalConstraints = scenario.Constraints{Budget: 100000, Timeline: 90, QualityMin: 70, RiskMax: 30}
	VendorEvalPriorities  = scenario.Priorities{Budget: 5, Timeline: 5, Quality: 7, Risk: 8}
)

// Prediction is the expected trade-off given a priority profile.
type Prediction struct {
	LikelyWinner    scenario.Metric `json:"likely_winner"`
	LikelySacrifice scenario.Metric `json:"likely_sacrifice"`
}

// Predict names the metric the coordinator will favor and the one it will
// give up. Ties resolve in metric order.
func Predict(p scenario.Priorities) Prediction {
	return Prediction{LikelyWinner: p.Highest(), LikelySacrifice: p.Lowest()}
}

// ScenarioBuilder assembles a scenario from documents and vendor proposals.
// Facts override constraints one to one; later documents win.
type ScenarioBuilder struct {
	module      scenario.ModuleKind
	constraints scenario.Constraints
	priorities  scenario.Priorities
	documents   []scenario.Document
	vendors     []scenario.VendorProposal
}

// NewScenarioBuilder starts a builder with the defaults for module.
func NewScenarioBuilder(module scenario.ModuleKind) *ScenarioBuilder {
	b := &ScenarioBuilder{
		module:      module,
		constraints: DefaultConstraints,
		priorities:  DefaultPriorities,
	}
	if module == scenario.ModuleVendorEval {
		b.constraints = VendorEvalConstraints
		b.priorities = VendorEvalPriorities
	}
	return b
}

// AddDocument attaches doc and applies its facts to the constraints.
func (b *ScenarioBuilder) AddDocument(doc scenario.Document) *ScenarioBuilder {
	b.documents = append(b.documents, doc)
	for _, f := range doc.Facts {
		switch f.Field {
		case scenario.MetricBudget:
			b.constraints.Budget = f.Value
		case scenario.MetricTimeline:
			b.constraints.Timeline = f.Value
		case scenario.MetricQuality:
			b.constraints.QualityMin = f.Value
		case scenario.MetricRisk:
			b.constraints.RiskMax = f.Value
		}
	}
	return b
}

// AddVendor attaches a vendor proposal.
func (b *ScenarioBuilder) AddVendor(v scenario.VendorProposal) *ScenarioBuilder {
	b.vendors = append(b.vendors, v)
	return b
}

// AddVendorDocument attaches a vendor's proposal document and adds the vendor
// built from it. The document's facts describe the vendor, so they are not
// applied to the constraints.
func (b *ScenarioBuilder) AddVendorDocument(doc scenario.Document, vendorName string) *ScenarioBuilder {
	b.documents = append(b.documents, doc)
	return b.AddVendor(BuildVendorProposal(doc, vendorName, BaselineFromConstraints(b.constraints)))
}

// WithPriorities replaces the priority weights.
func (b *ScenarioBuilder) WithPriorities(p scenario.Priorities) *ScenarioBuilder {
	b.priorities = p
	return b
}

// Constraints returns the constraints as currently derived.
func (b *ScenarioBuilder) Constraints() scenario.Constraints {
	return b.constraints
}

// Predict applies Predict to the builder's priorities.
func (b *ScenarioBuilder) Predict() Prediction {
	return Predict(b.priorities)
}

// Build returns a validated scenario.
func (b *ScenarioBuilder) Build(title, description string) (*scenario.Scenario, error) {
	if strings.TrimSpace(title) == "" {
		title = "Untitled Decision"
	}
	if strings.TrimSpace(description) == "" {
		description = "No description provided"
	}
	s := &scenario.Scenario{
		Title:       title,
		Description: description,
		Module:      b.module,
		Documents:   append([]scenario.Document(nil), b.documents...),
		Vendors:     append([]scenario.VendorProposal(nil), b.vendors...),
		Constraints: b.constraints,
		Priorities:  b.priorities,
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// BuildVendorProposal turns a parsed proposal document into a vendor
// candidate: baseline metrics overwritten by the document's facts, which are
// kept as quotes.
func BuildVendorProposal(doc scenario.Document, vendorName string, baseline scenario.ProposalVector) scenario.VendorProposal {
	metrics := baseline
	facts := make([]scenario.VendorFact, 0, len(doc.Facts))
	for _, f := range doc.Facts {
		metrics = metrics.With(f.Field, f.Value)
		facts = append(facts, scenario.VendorFact{Field: f.Field, Value: f.Value, Quote: f.OriginalText})
	}
	return scenario.VendorProposal{
		ID:         uuid.New().String(),
		VendorName: vendorName,
		DocumentID: doc.ID,
		Metrics:    metrics,
		Facts:      facts,
	}
}

// BaselineFromConstraints is the vector a vendor is assumed to offer before
// its facts are applied: exactly the constraint values.
func BaselineFromConstraints(c scenario.Constraints) scenario.ProposalVector {
	return scenario.ProposalVector{Budget: c.Budget, Timeline: c.Timeline, Quality: c.QualityMin, Risk: c.RiskMax}
}
